package middleware

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/bookmarks-go/internal/auth"
	"go.uber.org/zap"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// TokenParser verifies a session token.
type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

// Identity returns a Huma middleware that resolves the caller's identity and
// stores it in the request context. Resolution order: bearer token, session
// cookie, then the X-User-ID header when trustHeader is set.
//
// Requests without a valid identity continue unauthenticated; handlers decide
// whether that is allowed.
func Identity(parser TokenParser, trustHeader bool, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id, ok := resolveIdentity(ctx, parser, trustHeader, logger)
		if !ok {
			next(ctx)

			return
		}

		next(huma.WithContext(ctx, auth.WithIdentity(ctx.Context(), id)))
	}
}

func resolveIdentity(ctx huma.Context, parser TokenParser, trustHeader bool, logger *zap.Logger) (auth.Identity, bool) {
	if token, ok := bearerToken(ctx.Header("Authorization")); ok {
		return parse(parser, token, "bearer", logger)
	}

	if token := sessionCookie(ctx.Header("Cookie")); token != "" {
		return parse(parser, token, "cookie", logger)
	}

	if trustHeader {
		if userID := strings.TrimSpace(ctx.Header("X-User-ID")); userID != "" {
			return auth.Identity{
				UserID: userID,
				Email:  strings.TrimSpace(ctx.Header("X-User-Email")),
			}, true
		}
	}

	return auth.Identity{}, false
}

func parse(parser TokenParser, token, source string, logger *zap.Logger) (auth.Identity, bool) {
	id, err := parser.Parse(token)
	if err != nil {
		logger.Debug("rejected session token", zap.String("source", source), zap.Error(err))

		return auth.Identity{}, false
	}

	return id, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

func sessionCookie(header string) string {
	if header == "" {
		return ""
	}

	cookies, err := http.ParseCookie(header)
	if err != nil {
		return ""
	}

	for _, c := range cookies {
		if c.Name == SessionCookie {
			return c.Value
		}
	}

	return ""
}
