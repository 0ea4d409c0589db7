package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Decision is the uniform result of a rate limit check.
type Decision struct {
	Allowed bool
	// RetryAfterSeconds is the minimum wait until the oldest entry leaves the window.
	// It is only meaningful when Allowed is false, and is at least 1 then.
	RetryAfterSeconds int64
	// Degraded is set when the store could not be consulted and the fail policy decided.
	Degraded bool
}

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Check records an attempt for key and reports whether it is allowed.
	Check(ctx context.Context, key string) Decision
}

// Recorder receives decision outcomes, typically for metrics.
type Recorder interface {
	RecordDecision(outcome string)
}

// Decision outcomes passed to Recorder.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeDegraded = "degraded"
)

const defaultStoreTimeout = 500 * time.Millisecond

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string) {}

// SlidingWindowLimiter implements rate limiting using a sliding window log.
type SlidingWindowLimiter struct {
	store    Store
	limit    int64
	window   time.Duration
	policy   FailPolicy
	timeout  time.Duration
	prefix   string
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithFailPolicy sets the behavior when the store errors or times out.
func WithFailPolicy(policy FailPolicy) Option {
	return func(l *SlidingWindowLimiter) { l.policy = policy }
}

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(l *SlidingWindowLimiter) { l.timeout = d }
}

// WithKeyPrefix namespaces keys so several limiters can share one store.
func WithKeyPrefix(prefix string) Option {
	return func(l *SlidingWindowLimiter) { l.prefix = prefix }
}

// WithClock allows injection of a custom clock (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for degraded decisions.
func WithLogger(logger *zap.Logger) Option {
	return func(l *SlidingWindowLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder injects a decision recorder.
func WithRecorder(recorder Recorder) Option {
	return func(l *SlidingWindowLimiter) {
		if recorder != nil {
			l.recorder = recorder
		}
	}
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter that admits at most
// limit events per key in any trailing window.
func NewSlidingWindowLimiter(store Store, limit int64, window time.Duration, opts ...Option) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		store:    store,
		limit:    limit,
		window:   window,
		policy:   FailOpen,
		timeout:  defaultStoreTimeout,
		now:      time.Now,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *SlidingWindowLimiter) Check(ctx context.Context, key string) Decision {
	now := l.now()

	storeCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc

		storeCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	res, err := l.store.Reserve(storeCtx, l.prefix+key, now, l.window, l.limit)
	if err != nil {
		return l.degrade(key, err)
	}

	if res.Allowed {
		l.recorder.RecordDecision(OutcomeAllowed)

		return Decision{Allowed: true}
	}

	l.recorder.RecordDecision(OutcomeDenied)

	return Decision{
		Allowed:           false,
		RetryAfterSeconds: l.retryAfter(res.Oldest, now),
	}
}

// degrade applies the fail policy when the store is unavailable.
func (l *SlidingWindowLimiter) degrade(key string, err error) Decision {
	l.recorder.RecordDecision(OutcomeDegraded)

	if l.policy == FailClosed {
		l.logger.Error("rate limit store unavailable, denying",
			zap.String("key", key),
			zap.Error(err),
		)

		return Decision{
			Allowed:           false,
			RetryAfterSeconds: ceilSeconds(l.window),
			Degraded:          true,
		}
	}

	l.logger.Warn("rate limit store unavailable, allowing",
		zap.String("key", key),
		zap.Error(err),
	)

	return Decision{Allowed: true, Degraded: true}
}

func (l *SlidingWindowLimiter) retryAfter(oldest, now time.Time) int64 {
	if oldest.IsZero() {
		return ceilSeconds(l.window)
	}

	return ceilSeconds(oldest.Add(l.window).Sub(now))
}

// ceilSeconds rounds d up to whole seconds, never below one.
func ceilSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}

	return secs
}

// Limit returns the maximum events per window.
func (l *SlidingWindowLimiter) Limit() int64 {
	return l.limit
}

// Window returns the window duration.
func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}
