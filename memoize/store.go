/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memoize

import (
	"sync"
	"time"
)

// Entry is a cached result.
type Entry[V any] struct {
	Value V
	// ExpiresAt is the moment after which the entry is stale. Zero value means it never expires.
	ExpiresAt time.Time
}

// Expired reports whether the entry is stale at the given moment.
func (e Entry[V]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is a pluggable storage for memoized entries.
// Implementations must be safe for concurrent use.
// lrucache.Cache[string, Entry[V]] satisfies this interface.
type Store[V any] interface {
	Get(key string) (Entry[V], bool)
	Set(key string, entry Entry[V])
	Has(key string) bool
	Delete(key string) bool
	Purge()
}

// MapStore is an unbounded Store backed by a map.
type MapStore[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

var _ Store[any] = (*MapStore[any])(nil)

// NewMapStore creates a new empty MapStore.
func NewMapStore[V any]() *MapStore[V] {
	return &MapStore[V]{entries: make(map[string]Entry[V])}
}

// Get returns the entry stored by the key.
func (s *MapStore[V]) Get(key string) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Set stores the entry by the key.
func (s *MapStore[V]) Set(key string, entry Entry[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

// Has reports whether an entry (possibly expired) is stored by the key.
func (s *MapStore[V]) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Delete removes the entry stored by the key.
func (s *MapStore[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Purge removes all entries.
func (s *MapStore[V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry[V])
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (s *MapStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
