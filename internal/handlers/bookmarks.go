package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/bookmarks-go/internal/auth"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"go.uber.org/zap"
)

// BookmarkService is the write path and per-user read path.
type BookmarkService interface {
	Create(ctx context.Context, userID string, in bookmark.CreateInput) (*bookmark.Bookmark, error)
	ListForUser(ctx context.Context, userID string) ([]bookmark.Bookmark, error)
}

// TopFeed serves the system-wide top bookmarks.
type TopFeed interface {
	GetTop(ctx context.Context) ([]bookmark.Bookmark, error)
}

// BookmarkHandler handles bookmark operations.
type BookmarkHandler struct {
	service BookmarkService
	top     TopFeed
	logger  *zap.Logger
}

// NewBookmarkHandler creates a new bookmark handler.
func NewBookmarkHandler(service BookmarkService, top TopFeed, logger *zap.Logger) *BookmarkHandler {
	return &BookmarkHandler{
		service: service,
		top:     top,
		logger:  logger,
	}
}

func (h *BookmarkHandler) CreateItem(ctx context.Context, req *CreateItemRequest) (*ItemResponse, error) {
	b, err := h.service.Create(ctx, auth.UserID(ctx), bookmark.CreateInput{
		URL:   req.Body.URL,
		Title: req.Body.Title,
	})
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}

	return &ItemResponse{Body: toItem(*b)}, nil
}

func (h *BookmarkHandler) ListItems(ctx context.Context, _ *struct{}) (*ItemListResponse, error) {
	items, err := h.service.ListForUser(ctx, auth.UserID(ctx))
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}

	return &ItemListResponse{Body: toItems(items)}, nil
}

func (h *BookmarkHandler) TopItems(ctx context.Context, _ *struct{}) (*ItemListResponse, error) {
	items, err := h.top.GetTop(ctx)
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}

	return &ItemListResponse{Body: toItems(items)}, nil
}

// toHTTPError maps domain errors to huma status errors. Unknown errors are
// logged and reported without detail.
func (h *BookmarkHandler) toHTTPError(ctx context.Context, err error) error {
	var (
		validationErr *bookmark.ValidationError
		rateLimitErr  *bookmark.RateLimitError
	)

	switch {
	case errors.Is(err, bookmark.ErrUnauthenticated):
		return huma.Error401Unauthorized("authentication required")

	case errors.As(err, &validationErr):
		return huma.Error400BadRequest("invalid bookmark", &huma.ErrorDetail{
			Location: "body." + validationErr.Field,
			Message:  validationErr.Reason,
		})

	case errors.As(err, &rateLimitErr):
		headers := http.Header{}
		headers.Set("Retry-After", strconv.FormatInt(rateLimitErr.RetryAfterSeconds, 10))

		if rateLimitErr.Unavailable {
			return huma.ErrorWithHeaders(huma.Error503ServiceUnavailable("rate limiter unavailable"), headers)
		}

		return huma.ErrorWithHeaders(huma.Error429TooManyRequests("rate limit exceeded"), headers)

	default:
		h.logger.Error("bookmark request failed",
			zap.String("user_id", auth.UserID(ctx)),
			zap.Error(err),
		)

		return huma.Error500InternalServerError("internal error")
	}
}
