package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"go.uber.org/zap"
)

type limiterKey struct {
	limit  int64
	window time.Duration
}

// ClientGuard returns a Huma middleware that limits requests per client (IP and
// User-Agent) on operations carrying a ratelimit.EndpointConfig in their metadata.
// Operations without one pass through untouched.
//
// Counters are kept per client and operation, so each guarded endpoint has its
// own budget.
func ClientGuard(
	api huma.API,
	store ratelimit.Store,
	logger *zap.Logger,
	opts ...ratelimit.Option,
) func(ctx huma.Context, next func(huma.Context)) {
	limiterOpts := append(slices.Clone(opts), ratelimit.WithKeyPrefix("client:"))

	var limiters sync.Map

	limiterFor := func(cfg *ratelimit.EndpointConfig) ratelimit.Limiter {
		key := limiterKey{limit: cfg.Limit, window: cfg.Window}
		if l, ok := limiters.Load(key); ok {
			return l.(ratelimit.Limiter)
		}

		l, _ := limiters.LoadOrStore(key, ratelimit.NewSlidingWindowLimiter(store, cfg.Limit, cfg.Window, limiterOpts...))

		return l.(ratelimit.Limiter)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.GetEndpointConfig(ctx)
		if cfg == nil || cfg.Disabled {
			next(ctx)

			return
		}

		op := ctx.Operation()
		key := clientKey(ctx) + ":" + op.Method + " " + op.Path

		decision := limiterFor(cfg).Check(ctx.Context(), key)
		if decision.Allowed {
			next(ctx)

			return
		}

		ctx.SetHeader("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds, 10))

		if decision.Degraded {
			_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "rate limiter unavailable")

			return
		}

		logger.Warn("client rate limit exceeded",
			zap.String("path", op.Path),
			zap.String("method", ctx.Method()),
			zap.String("client_ip", clientIP(ctx)),
			zap.Int64("retry_after_seconds", decision.RetryAfterSeconds),
		)

		_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded")
	}
}

// clientKey reuses the request metadata when RequestMetaMiddleware ran first.
func clientKey(ctx huma.Context) string {
	meta, ok := ctx.Context().Value(requestMetaKey{}).(RequestMeta)
	if !ok {
		meta = metaFor(ctx)
	}

	return meta.ClientKey()
}
