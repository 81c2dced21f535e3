// Package cache provides a small typed cache-aside store. It replaces
// declarative cache annotations with explicit get/put/invalidate calls so
// the ordering of evictions is visible at the call site.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store is a typed, process-local cache with TTL-based expiry and LRU
// eviction. The zero value is not usable; construct with New.
type Store[V any] struct {
	lru *expirable.LRU[string, V]
}

// New creates a Store holding at most size entries, each expiring ttl after
// insertion. A ttl of zero disables expiry.
func New[V any](size int, ttl time.Duration) *Store[V] {
	return &Store[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (s *Store[V]) Get(key string) (V, bool) {
	return s.lru.Get(key)
}

// Put stores value under key, replacing any previous entry.
func (s *Store[V]) Put(key string, value V) {
	s.lru.Add(key, value)
}

// Invalidate removes the given keys.
func (s *Store[V]) Invalidate(keys ...string) {
	for _, k := range keys {
		s.lru.Remove(k)
	}
}

// Purge removes every entry.
func (s *Store[V]) Purge() {
	s.lru.Purge()
}

// Len returns the number of live entries.
func (s *Store[V]) Len() int {
	return s.lru.Len()
}
