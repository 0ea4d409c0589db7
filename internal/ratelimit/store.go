package ratelimit

import (
	"context"
	"time"
)

// Reservation is the outcome of a single Reserve call.
type Reservation struct {
	// Allowed reports whether an entry was recorded for this attempt.
	Allowed bool
	// Count is the number of entries in the window after the call.
	Count int64
	// Oldest is the timestamp of the oldest entry still in the window.
	// It is the zero time when the window is empty.
	Oldest time.Time
}

// Store defines the interface for rate limit window storage.
type Store interface {
	// Reserve discards entries for key at or before now-window, then records a new
	// entry at now when fewer than limit entries remain.
	// The prune, count and record steps must be atomic per key.
	Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Reservation, error)
}
