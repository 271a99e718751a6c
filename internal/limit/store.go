// Package limit implements the cooldown and daily-usage stores.
//
// Both stores sit on a Store, a small expiring key/value contract. The stores
// are fail-open: when the backing Store returns an error the request is treated
// as not limited and the error is logged. Keeping the bot answering matters more
// than strict enforcement of rate limits.
//
// State is kept in memory and intentionally lost on restart.
package limit

import (
	"context"
	"sync"
	"time"
)

// Entry is a stored counter with its expiry
type Entry struct {
	Count     int
	ExpiresAt time.Time
}

// Store is an expiring key/value store
type Store interface {
	// Get returns the live entry for key
	Get(key string) (Entry, bool, error)
	// Set stores e, replacing any previous entry
	Set(key string, e Entry) error
	// Incr atomically increments the counter for key. A new window with the given
	// ttl is opened when no live entry exists; an existing entry keeps its expiry.
	// With ceiling > 0 the counter is only incremented while it is below ceiling
	// and the returned bool reports whether the increment happened.
	Incr(key string, ttl time.Duration, ceiling int) (Entry, bool, error)
}

// MemoryStore is an in-process Store guarded by a mutex
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	return e, ok, nil
}

func (s *MemoryStore) Set(key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Incr(key string, ttl time.Duration, ceiling int) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		e = Entry{ExpiresAt: s.now().Add(ttl)}
	}
	if ceiling > 0 && e.Count >= ceiling {
		return e, false, nil
	}
	e.Count++
	s.entries[key] = e
	return e, true, nil
}

// live returns the entry for key if it has not expired; expired entries are dropped.
// Caller must hold s.mu.
func (s *MemoryStore) live(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, key)
		return Entry{}, false
	}
	return e, true
}

// Sweep removes every expired entry and returns how many were dropped
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps expired entries every interval until ctx is cancelled
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
