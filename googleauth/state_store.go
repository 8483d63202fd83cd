package googleauth

import (
	"sync"
	"time"
)

// StateStore tracks issued anti-forgery state values. A state is single-use:
// Consume reports whether the state was issued and unexpired, and removes it
// either way so a replayed callback cannot exchange twice.
type StateStore interface {
	Put(state string) error
	Consume(state string) bool
}

type InMemoryStateStore struct {
	lock    sync.Mutex
	states  map[string]time.Time // state -> issued at
	ttl     time.Duration
	nowFunc func() time.Time
}

var _ StateStore = (*InMemoryStateStore)(nil)

type StateStoreOption func(*InMemoryStateStore)

func WithStateNowFunc(now func() time.Time) StateStoreOption {
	return func(s *InMemoryStateStore) {
		s.nowFunc = now
	}
}

func NewInMemoryStateStore(ttl time.Duration, options ...StateStoreOption) *InMemoryStateStore {
	s := &InMemoryStateStore{
		states:  make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *InMemoryStateStore) Put(state string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.states[state] = s.nowFunc()
	s.cleanupLocked()
	return nil
}

func (s *InMemoryStateStore) Consume(state string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	issuedAt, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.nowFunc().Sub(issuedAt) <= s.ttl
}

func (s *InMemoryStateStore) cleanupLocked() {
	for state, issuedAt := range s.states {
		if s.nowFunc().Sub(issuedAt) > s.ttl {
			delete(s.states, state)
		}
	}
}
