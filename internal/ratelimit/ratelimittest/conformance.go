// Package ratelimittest provides a simulated clock and a conformance suite that
// every ratelimit.Store backend runs.
package ratelimittest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	limit  = 5
	window = time.Minute
)

// Start is the instant every suite clock starts at.
var Start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ratelimit.Store

// Options tunes the suite to a backend's guarantees.
type Options struct {
	// Sliding is true for backends that enforce a true trailing window.
	// Fixed-window backends skip the properties that only a sliding log satisfies.
	Sliding bool
}

func newLimiter(store ratelimit.Store, clock *Clock) *ratelimit.SlidingWindowLimiter {
	return ratelimit.NewSlidingWindowLimiter(store, limit, window, ratelimit.WithClock(clock.Now))
}

// RunStoreConformance runs the shared limiter properties against a store backend.
func RunStoreConformance(t *testing.T, newStore Factory, opts Options) {
	t.Helper()

	t.Run("admits up to limit then denies", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)
		ctx := context.Background()

		for i := range limit {
			d := limiter.Check(ctx, "u1")
			assert.True(t, d.Allowed, "write %d should be allowed", i+1)
			clock.Advance(2 * time.Second)
		}

		d := limiter.Check(ctx, "u1")

		assert.False(t, d.Allowed, "write over the limit should be denied")
		assert.False(t, d.Degraded)
		assert.GreaterOrEqual(t, d.RetryAfterSeconds, int64(1))
	})

	t.Run("retry after hint is honored", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)
		ctx := context.Background()

		for range limit {
			require.True(t, limiter.Check(ctx, "u1").Allowed)
			clock.Advance(2 * time.Second)
		}

		denied := limiter.Check(ctx, "u1")
		require.False(t, denied.Allowed)
		require.Positive(t, denied.RetryAfterSeconds)

		clock.Advance(time.Duration(denied.RetryAfterSeconds) * time.Second)

		assert.True(t, limiter.Check(ctx, "u1").Allowed, "retry after the hint should be admitted")
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)
		ctx := context.Background()

		for range limit {
			require.True(t, limiter.Check(ctx, "u1").Allowed)
		}

		assert.False(t, limiter.Check(ctx, "u1").Allowed, "u1 should be rate limited")
		assert.True(t, limiter.Check(ctx, "u2").Allowed, "u2 should still be allowed")
	})

	t.Run("concurrent burst admits at most limit", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)

		var (
			wg       sync.WaitGroup
			admitted atomic.Int64
		)

		for range 50 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if limiter.Check(context.Background(), "burst").Allowed {
					admitted.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, int64(limit), admitted.Load())
	})

	if !opts.Sliding {
		return
	}

	t.Run("trailing window never exceeds limit", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)
		ctx := context.Background()

		var admitted []time.Time

		for range 200 {
			if limiter.Check(ctx, "steady").Allowed {
				admitted = append(admitted, clock.Now())
			}

			clock.Advance(3 * time.Second)
		}

		require.NotEmpty(t, admitted)

		for i, at := range admitted {
			inWindow := 0

			for _, other := range admitted[:i+1] {
				if other.After(at.Add(-window)) {
					inWindow++
				}
			}

			assert.LessOrEqual(t, inWindow, limit, fmt.Sprintf("window ending at %s", at))
		}
	})

	t.Run("oldest entry expiry frees exactly one slot", func(t *testing.T) {
		clock := NewClock(Start)
		limiter := newLimiter(newStore(t), clock)
		ctx := context.Background()

		for range limit {
			require.True(t, limiter.Check(ctx, "u1").Allowed)
			clock.Advance(2 * time.Second)
		}

		// Denied attempts must not be recorded.
		for range 3 {
			require.False(t, limiter.Check(ctx, "u1").Allowed)
		}

		clock.Advance(window - time.Duration(limit)*2*time.Second)

		assert.True(t, limiter.Check(ctx, "u1").Allowed)
		assert.False(t, limiter.Check(ctx, "u1").Allowed)
	})
}
