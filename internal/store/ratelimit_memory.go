package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

// RateLimitMemoryStore is an in-memory sliding log implementation of ratelimit.Store.
// Counts are exact but local to one process.
//
// Keys idle for a whole window are swept so that client-controlled keys do not
// accumulate.
type RateLimitMemoryStore struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
	}
}

func (s *RateLimitMemoryStore) Reserve(
	_ context.Context, key string, now time.Time, window time.Duration, limit int64,
) (ratelimit.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	s.sweep(now, cutoff, window)

	// Prune entries at or before the cutoff; the window is (now-window, now].
	timestamps := s.requests[key]
	valid := make([]time.Time, 0, len(timestamps)+1)

	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if int64(len(valid)) >= limit {
		s.requests[key] = valid

		return ratelimit.Reservation{
			Allowed: false,
			Count:   int64(len(valid)),
			Oldest:  oldest(valid),
		}, nil
	}

	valid = append(valid, now)
	s.requests[key] = valid

	return ratelimit.Reservation{
		Allowed: true,
		Count:   int64(len(valid)),
		Oldest:  oldest(valid),
	}, nil
}

// sweep drops keys with no entry left in the window, at most once per window.
func (s *RateLimitMemoryStore) sweep(now, cutoff time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}

	for key, timestamps := range s.requests {
		live := slices.ContainsFunc(timestamps, func(ts time.Time) bool { return ts.After(cutoff) })
		if !live {
			delete(s.requests, key)
		}
	}

	s.lastSweep = now
}

// Len returns the number of keys currently tracked.
func (s *RateLimitMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

func oldest(timestamps []time.Time) time.Time {
	var earliest time.Time

	for i, ts := range timestamps {
		if i == 0 || ts.Before(earliest) {
			earliest = ts
		}
	}

	return earliest
}

var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)
