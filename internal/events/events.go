// Package events defines the bookmark events exchanged between the API server
// and the consumer process.
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/messaging"
	"github.com/serroba/bookmarks-go/internal/middleware"
	"go.uber.org/zap"
)

const TopicBookmarkCreated = "bookmark.created"

// BookmarkCreatedEvent is emitted after a bookmark is committed.
type BookmarkCreatedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ClientIP  string    `json:"clientIp,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// Publisher publishes bookmark events. It implements bookmark.Publisher.
type Publisher struct {
	publish messaging.Publish[BookmarkCreatedEvent]
}

// NewPublisher creates a bookmark event publisher on top of a watermill publisher.
func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{
		publish: messaging.NewPublishFunc[BookmarkCreatedEvent](publisher, TopicBookmarkCreated),
	}
}

// BookmarkCreated publishes a BookmarkCreatedEvent for b, tagged with the
// request metadata found in ctx.
func (p *Publisher) BookmarkCreated(ctx context.Context, b *bookmark.Bookmark) error {
	meta := middleware.RequestMetaFromContext(ctx)

	return p.publish(ctx, &BookmarkCreatedEvent{
		ID:        b.ID,
		UserID:    b.UserID,
		URL:       b.URL,
		Title:     b.Title,
		CreatedAt: b.CreatedAt,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	})
}

// NewCacheInvalidationHandler drops the cached top feed for every created
// bookmark. A failed invalidation is returned so the message is redelivered.
func NewCacheInvalidationHandler(
	inv bookmark.Invalidator, logger *zap.Logger,
) messaging.Handler[BookmarkCreatedEvent] {
	return func(ctx context.Context, event *BookmarkCreatedEvent) error {
		if err := inv.Invalidate(ctx); err != nil {
			return err
		}

		logger.Debug("top feed cache invalidated",
			zap.String("bookmark_id", event.ID),
			zap.String("user_id", event.UserID),
			zap.String("client_ip", event.ClientIP),
		)

		return nil
	}
}

var _ bookmark.Publisher = (*Publisher)(nil)
