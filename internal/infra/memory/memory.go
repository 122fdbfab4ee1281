// Package memory provides an in-memory cache store, used when Redis is not
// configured and as a fake in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/tokend/internal/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// Store implements cache.Store backed by a map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ cache.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Get returns the value for key, honoring TTL expiry.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Scan pages through keys matching a "prefix*" pattern in deterministic order.
// The cursor is a position into the sorted key list; 0 on return means done.
func (s *Store) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := strings.TrimSuffix(match, "*")
	all := make([]string, 0, len(s.entries))
	now := time.Now()
	for k, e := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		all = append(all, k)
	}
	sort.Strings(all)

	if count <= 0 {
		count = 10
	}
	start := int(cursor)
	if start >= len(all) {
		return nil, 0, nil
	}
	end := start + int(count)
	if end > len(all) {
		end = len(all)
	}

	next := uint64(end)
	if end == len(all) {
		next = 0
	}
	return all[start:end], next, nil
}

// SetBatch applies all writes atomically under one lock.
func (s *Store) SetBatch(ctx context.Context, entries []cache.BatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, be := range entries {
		e := entry{value: be.Value}
		if be.TTL > 0 {
			e.expiresAt = now.Add(be.TTL)
		}
		s.entries[be.Key] = e
	}
	return nil
}

// Len returns the number of stored entries, including expired ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
