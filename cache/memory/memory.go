// Package memory provides a thread-safe in-memory implementation of cache.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pgxcyu/ledgerd/cache"
)

// Store is a thread-safe in-memory implementation of cache.Store.
// Suitable for testing, demos, and single-process use cases.
type Store struct {
	mu   sync.Mutex
	data map[string]entry

	// now is overridable for tests.
	now func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

var _ cache.Store = (*Store)(nil)

// NewStore creates an empty in-memory Store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// NewStoreWithClock creates a Store with an injected clock, for tests that
// need to advance time across TTL boundaries.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		data: make(map[string]entry),
		now:  now,
	}
}

// liveLocked returns the entry for key if it exists and has not expired.
// Expired entries are removed lazily.
func (s *Store) liveLocked(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	if !ok {
		return "", cache.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.data[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	if !ok {
		return nil
	}
	e.expiresAt = s.expiry(ttl)
	s.data[key] = e
	return nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}
