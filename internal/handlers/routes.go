package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

// RegisterRoutes registers the bookmark and session routes. topGuard is the
// per-client limit applied to the public top feed.
func RegisterRoutes(
	api huma.API,
	bookmarks *BookmarkHandler,
	sessions *AuthHandler,
	topGuard ratelimit.EndpointConfig,
) {
	// POST /items - Save a bookmark
	// Per-user write limits are enforced by the bookmark service
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Save bookmark",
		Description:   "Saves a bookmark for the authenticated user. Writes are limited per user in a sliding window.",
		Tags:          []string{"Items"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
		},
	}, bookmarks.CreateItem)

	// GET /items - List the caller's bookmarks
	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List my bookmarks",
		Description: "Lists the authenticated user's bookmarks, newest first.",
		Tags:        []string{"Items"},
		Errors:      []int{http.StatusUnauthorized},
	}, bookmarks.ListItems)

	// GET /items/top - Public feed, guarded per client
	huma.Register(api, huma.Operation{
		OperationID: "top-items",
		Method:      http.MethodGet,
		Path:        "/items/top",
		Summary:     "Top bookmarks",
		Description: "Returns the 10 most recent bookmarks across all users.",
		Tags:        []string{"Items"},
		Errors:      []int{http.StatusTooManyRequests},
		Metadata: map[string]any{
			ratelimit.MetadataKey: topGuard,
		},
	}, bookmarks.TopItems)

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Start session",
		Description: "Issues a session token for an email address, as a cookie and in the body.",
		Tags:        []string{"Auth"},
		Errors:      []int{http.StatusBadRequest},
	}, sessions.Login)
}
