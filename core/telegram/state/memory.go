package state

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	started time.Time
	touched time.Time
}

// Options configures a Store.
type Options struct {
	// IdleTimeout discards sessions untouched for longer than this. Zero disables it.
	IdleTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store keeps at most one session per chat.
type Store[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]*entry[T]
	idle     time.Duration
	now      func() time.Time
}

// NewStore constructs an empty session store.
func NewStore[T any](opts Options) *Store[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store[T]{
		sessions: make(map[int64]*entry[T]),
		idle:     opts.IdleTimeout,
		now:      now,
	}
}

// Get returns the session of chatID. An idle-expired session is discarded and
// reported as absent.
func (s *Store[T]) Get(chatID int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[chatID]
	if !ok {
		var zero T
		return zero, false
	}
	if s.expired(e) {
		delete(s.sessions, chatID)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Start installs a fresh session for chatID, discarding any existing one.
// The discarded value is returned so callers can report the replacement.
func (s *Store[T]) Start(chatID int64, value T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	prev, replaced := s.sessions[chatID]
	s.sessions[chatID] = &entry[T]{value: value, started: now, touched: now}
	if !replaced || s.expired(prev) {
		var zero T
		return zero, false
	}
	return prev.value, true
}

// Put replaces the value of an existing session and refreshes its idle clock.
// It reports false when the session no longer exists.
func (s *Store[T]) Put(chatID int64, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[chatID]
	if !ok {
		return false
	}
	e.value = value
	e.touched = s.now()
	return true
}

// Discard removes the session of chatID and returns it.
func (s *Store[T]) Discard(chatID int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[chatID]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.sessions, chatID)
	if s.expired(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Active reports whether chatID has a live session.
func (s *Store[T]) Active(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[chatID]
	return ok && !s.expired(e)
}

// Len returns the number of stored sessions, including idle ones not yet collected.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store[T]) expired(e *entry[T]) bool {
	return s.idle > 0 && s.now().Sub(e.touched) > s.idle
}
