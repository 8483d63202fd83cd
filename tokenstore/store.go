// Package tokenstore persists the access/refresh token pair for a client
// session. It is purely local: no network access, and always safe to use
// before any session exists.
package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/markhive/go-auth/token"
	"github.com/pkg/errors"
)

// storedPair is the on-disk form of the token pair. A single file holds both
// tokens so readers never observe one updated and the other stale.
type storedPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store holds the session's token pair. The pair is set and cleared
// atomically: a partial state (one token present, the other absent) is never
// visible to readers or persisted.
type Store struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	filePath     string // Empty means in-memory only
	nowFunc      func() time.Time
}

type StoreOption func(*Store)

// WithFile enables file persistence. The file is written with 0600
// permissions; its directory is created with 0700 if missing.
func WithFile(path string) StoreOption {
	return func(s *Store) {
		s.filePath = path
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(options ...StoreOption) (*Store, error) {
	s := &Store{nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}

	if s.filePath != "" {
		if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
			return nil, errors.Wrap(err, "[tokenstore.New] create storage directory")
		}
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetTokens persists the pair. Both tokens must be present: the pair
// invariant is both-or-neither, never one.
func (s *Store) SetTokens(pair *token.TokenPair) error {
	if pair == nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		return errors.New("[Store.SetTokens] both access and refresh tokens are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	return s.persistLocked()
}

// GetAccessToken returns the stored access token, or "" if none is stored.
func (s *Store) GetAccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// GetRefreshToken returns the stored refresh token, or "" if none is stored.
func (s *Store) GetRefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// ClearTokens removes both tokens. Idempotent and always safe to call.
func (s *Store) ClearTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = ""
	s.refreshToken = ""

	if s.filePath != "" {
		if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
			// Memory state is already cleared; a stale file only means the
			// next load sees tokens the backend will reject anyway.
			return
		}
	}
}

// IsTokenExpired decodes the token's exp claim without verifying the
// signature (the backend is authoritative; this is only a local pre-check).
// Fails closed: a missing, unparseable, or past expiry claim reports true.
func (s *Store) IsTokenExpired(rawToken string) bool {
	if rawToken == "" {
		return true
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return true
	}

	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return true
	}

	return !s.nowFunc().Before(expiry.Time)
}

func (s *Store) persistLocked() error {
	if s.filePath == "" {
		return nil
	}

	data, err := json.Marshal(storedPair{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
	})
	if err != nil {
		return errors.Wrap(err, "[Store.persistLocked] marshal")
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return errors.Wrap(err, "[Store.persistLocked] write token file")
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Store.load] read token file")
	}

	var pair storedPair
	if err := json.Unmarshal(data, &pair); err != nil {
		// An unreadable token file is equivalent to no session.
		return nil
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil
	}

	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	return nil
}
