package tokenrepofake

import (
	"sync"

	"github.com/markhive/go-auth/token"
)

var _ token.RefreshTokenRepo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]*token.StoredRefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*token.StoredRefreshToken),
	}
}

func (r *FakeRefreshTokenRepo) Upsert(refreshToken *token.StoredRefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[refreshToken.JTI] = refreshToken
	return nil
}

func (r *FakeRefreshTokenRepo) Get(jti string) (*token.StoredRefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tokens[jti]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (r *FakeRefreshTokenRepo) Delete(jti string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.tokens, jti)
	return nil
}

func (r *FakeRefreshTokenRepo) DeleteByUserID(userID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for jti, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, jti)
		}
	}
	return nil
}

// Count reports the number of stored tokens (test helper).
func (r *FakeRefreshTokenRepo) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.tokens)
}
