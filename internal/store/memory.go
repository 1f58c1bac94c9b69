package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a concurrency-safe in-process KV with per-key expiry.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]memoryEntry

	// maxEntries bounds the map; 0 = unlimited.
	maxEntries int

	now func() time.Time
}

// NewMemoryStore creates a MemoryStore. If maxEntries is <= 0 the store is
// unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := s.data[key]; ok && cur.expired(s.now()) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key and enforces the entry bound.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	now := s.now()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = e

	if s.maxEntries > 0 && len(s.data) > s.maxEntries {
		s.evictLocked(now)
	}
	return nil
}

// Len reports the number of stored keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// evictLocked drops expired keys, then the keys closest to expiry until the
// bound holds. Keys without expiry are dropped last.
func (s *MemoryStore) evictLocked(now time.Time) {
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
	for len(s.data) > s.maxEntries {
		var (
			victim string
			soon   time.Time
			found  bool
		)
		for k, e := range s.data {
			if e.expiresAt.IsZero() {
				continue
			}
			if !found || e.expiresAt.Before(soon) {
				victim, soon, found = k, e.expiresAt, true
			}
		}
		if !found {
			for k := range s.data {
				victim = k
				break
			}
		}
		delete(s.data, victim)
	}
}

var _ KV = (*MemoryStore)(nil)
