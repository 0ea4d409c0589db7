package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"github.com/serroba/bookmarks-go/internal/ratelimit/ratelimittest"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("connection refused")

type mockStore struct {
	res     ratelimit.Reservation
	err     error
	keys    []string
	block   bool
	lastNow time.Time
}

func (m *mockStore) Reserve(
	ctx context.Context, key string, now time.Time, _ time.Duration, _ int64,
) (ratelimit.Reservation, error) {
	m.keys = append(m.keys, key)
	m.lastNow = now

	if m.block {
		<-ctx.Done()

		return ratelimit.Reservation{}, ctx.Err()
	}

	return m.res, m.err
}

type countingRecorder struct {
	outcomes map[string]int
}

func (c *countingRecorder) RecordDecision(outcome string) {
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}

	c.outcomes[outcome]++
}

func TestSlidingWindowLimiter_Decisions(t *testing.T) {
	clock := ratelimittest.NewClock(ratelimittest.Start)

	t.Run("allowed reservation allows", func(t *testing.T) {
		store := &mockStore{res: ratelimit.Reservation{Allowed: true, Count: 1}}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithClock(clock.Now))

		d := limiter.Check(context.Background(), "u1")

		assert.True(t, d.Allowed)
		assert.Zero(t, d.RetryAfterSeconds)
		assert.False(t, d.Degraded)
		assert.Equal(t, clock.Now(), store.lastNow)
	})

	t.Run("denied reservation computes retry from oldest entry", func(t *testing.T) {
		store := &mockStore{res: ratelimit.Reservation{
			Allowed: false,
			Count:   5,
			Oldest:  clock.Now().Add(-10 * time.Second),
		}}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithClock(clock.Now))

		d := limiter.Check(context.Background(), "u1")

		assert.False(t, d.Allowed)
		assert.Equal(t, int64(50), d.RetryAfterSeconds)
	})

	t.Run("retry rounds partial seconds up", func(t *testing.T) {
		store := &mockStore{res: ratelimit.Reservation{
			Count:  5,
			Oldest: clock.Now().Add(-59*time.Second - 900*time.Millisecond),
		}}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithClock(clock.Now))

		d := limiter.Check(context.Background(), "u1")

		assert.False(t, d.Allowed)
		assert.Equal(t, int64(1), d.RetryAfterSeconds)
	})

	t.Run("denied without oldest entry waits a full window", func(t *testing.T) {
		store := &mockStore{res: ratelimit.Reservation{Count: 5}}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithClock(clock.Now))

		d := limiter.Check(context.Background(), "u1")

		assert.Equal(t, int64(60), d.RetryAfterSeconds)
	})

	t.Run("prefixes keys", func(t *testing.T) {
		store := &mockStore{res: ratelimit.Reservation{Allowed: true}}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithKeyPrefix("writes:"))

		limiter.Check(context.Background(), "u1")

		assert.Equal(t, []string{"writes:u1"}, store.keys)
	})
}

func TestSlidingWindowLimiter_FailPolicy(t *testing.T) {
	t.Run("fail open allows and marks degraded", func(t *testing.T) {
		store := &mockStore{err: errStoreDown}
		recorder := &countingRecorder{}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute,
			ratelimit.WithFailPolicy(ratelimit.FailOpen),
			ratelimit.WithLogger(zap.NewNop()),
			ratelimit.WithRecorder(recorder),
		)

		d := limiter.Check(context.Background(), "u1")

		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
		assert.Equal(t, 1, recorder.outcomes[ratelimit.OutcomeDegraded])
	})

	t.Run("fail closed denies with a full window hint", func(t *testing.T) {
		store := &mockStore{err: errStoreDown}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute,
			ratelimit.WithFailPolicy(ratelimit.FailClosed),
		)

		d := limiter.Check(context.Background(), "u1")

		assert.False(t, d.Allowed)
		assert.True(t, d.Degraded)
		assert.Equal(t, int64(60), d.RetryAfterSeconds)
	})

	t.Run("store timeout resolves through the policy", func(t *testing.T) {
		store := &mockStore{block: true}
		limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute,
			ratelimit.WithFailPolicy(ratelimit.FailClosed),
			ratelimit.WithTimeout(10*time.Millisecond),
		)

		start := time.Now()
		d := limiter.Check(context.Background(), "u1")

		assert.Less(t, time.Since(start), time.Second)
		assert.False(t, d.Allowed)
		assert.True(t, d.Degraded)
	})

	t.Run("defaults to fail open", func(t *testing.T) {
		limiter := ratelimit.NewSlidingWindowLimiter(&mockStore{err: errStoreDown}, 5, time.Minute)

		assert.True(t, limiter.Check(context.Background(), "u1").Allowed)
	})
}

func TestSlidingWindowLimiter_Recorder(t *testing.T) {
	recorder := &countingRecorder{}
	store := &mockStore{res: ratelimit.Reservation{Allowed: true}}
	limiter := ratelimit.NewSlidingWindowLimiter(store, 5, time.Minute, ratelimit.WithRecorder(recorder))

	limiter.Check(context.Background(), "u1")

	store.res = ratelimit.Reservation{Count: 5}
	limiter.Check(context.Background(), "u1")

	assert.Equal(t, 1, recorder.outcomes[ratelimit.OutcomeAllowed])
	assert.Equal(t, 1, recorder.outcomes[ratelimit.OutcomeDenied])
	assert.Equal(t, int64(5), limiter.Limit())
	assert.Equal(t, time.Minute, limiter.Window())
}
