// Package ttlstore provides an in-memory keyed map whose entries expire after
// a period without being touched.
//
// Expiry is lazy: an expired entry is never returned, and every read or write
// prunes the whole map before acting. There is no background goroutine and no
// size-based eviction.
package ttlstore

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	lastTouch time.Time
}

// Store is a TTL map safe for concurrent use.
type Store[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a Store whose entries expire ttl after their last touch.
// A non-positive ttl disables expiry.
func New[V any](ttl time.Duration, opts ...Option) *Store[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[V]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

// TTL returns the configured time-to-live.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// Get returns the value for key without refreshing it.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	e, ok := s.entries[key]
	if !ok || s.expired(e, now) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key and refreshes its last-touch time.
func (s *Store[V]) Put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.entries[key] = entry[V]{value: value, lastTouch: now}
}

// Touch refreshes the last-touch time of key. It reports false when key is
// absent or already expired.
func (s *Store[V]) Touch(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.lastTouch = now
	s.entries[key] = e
	return true
}

// Update runs fn on the current value of key (ok is false when the key is
// absent or expired) and stores the returned value with a fresh last-touch
// time. The whole read-modify-write happens under the store lock.
func (s *Store[V]) Update(key string, fn func(current V, ok bool) V) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	e, ok := s.entries[key]
	next := fn(e.value, ok)
	s.entries[key] = entry[V]{value: next, lastTouch: now}
	return next
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	delete(s.entries, key)
}

// Prune removes every entry untouched for longer than the TTL as of now and
// returns how many were removed.
func (s *Store[V]) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

// Len returns the number of live entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.entries)
}

func (s *Store[V]) pruneLocked(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *Store[V]) expired(e entry[V], now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastTouch) > s.ttl
}
