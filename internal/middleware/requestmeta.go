package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// RequestMeta contains metadata about the incoming request.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
}

type requestMetaKey struct{}

// ContextWithRequestMeta adds request metadata to the context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext retrieves request metadata from the context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)

	return meta
}

// RequestMetaMiddleware adds client IP, user-agent, and referrer to the request context.
func RequestMetaMiddleware(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		next(huma.WithContext(ctx, ContextWithRequestMeta(ctx.Context(), metaFor(ctx))))
	}
}

// ClientKey identifies an anonymous client by hashing its IP and user agent.
func (m RequestMeta) ClientKey() string {
	hash := sha256.Sum256([]byte(m.ClientIP + "|" + m.UserAgent))

	return hex.EncodeToString(hash[:])
}

func metaFor(ctx huma.Context) RequestMeta {
	return RequestMeta{
		ClientIP:  clientIP(ctx),
		UserAgent: ctx.Header("User-Agent"),
		Referrer:  ctx.Header("Referer"),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	addr := ctx.RemoteAddr()

	if ip, _, err := net.SplitHostPort(addr); err == nil {
		return ip
	}

	return addr
}
