package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

type fixedWindow struct {
	start time.Time
	count int64
}

// RateLimitLocalStore is a degraded fixed-window counter kept in process memory.
//
// Counts reset at each window boundary instead of sliding, so up to twice the
// limit can be admitted across a boundary. It is meant for deployments without
// a shared store.
type RateLimitLocalStore struct {
	mu        sync.Mutex
	counters  map[string]fixedWindow
	lastSweep time.Time
}

// NewRateLimitLocalStore creates a new fixed-window rate limit store.
func NewRateLimitLocalStore() *RateLimitLocalStore {
	return &RateLimitLocalStore{
		counters: make(map[string]fixedWindow),
	}
}

func (s *RateLimitLocalStore) Reserve(
	_ context.Context, key string, now time.Time, window time.Duration, limit int64,
) (ratelimit.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.Truncate(window)
	s.sweep(start, window)

	w := s.counters[key]
	if !w.start.Equal(start) {
		w = fixedWindow{start: start}
	}

	// Oldest is the window start so the retry hint points at the next boundary.
	if w.count >= limit {
		return ratelimit.Reservation{Allowed: false, Count: w.count, Oldest: w.start}, nil
	}

	w.count++
	s.counters[key] = w

	return ratelimit.Reservation{Allowed: true, Count: w.count, Oldest: w.start}, nil
}

// sweep drops counters from past windows at most once per window.
func (s *RateLimitLocalStore) sweep(start time.Time, window time.Duration) {
	if start.Sub(s.lastSweep) < window {
		return
	}

	for key, w := range s.counters {
		if w.start.Before(start) {
			delete(s.counters, key)
		}
	}

	s.lastSweep = start
}

var _ ratelimit.Store = (*RateLimitLocalStore)(nil)
