// Package bookmark holds the bookmark domain: the record type, the write path
// that bounds writes per user, and the cached read path for the system-wide
// top feed.
package bookmark

import (
	"context"
	"time"
)

// Bookmark is a saved link owned by one user.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository defines the interface for bookmark persistence.
type Repository interface {
	Create(ctx context.Context, b *Bookmark) error
	// ListByUser returns a user's bookmarks, newest first.
	ListByUser(ctx context.Context, userID string) ([]Bookmark, error)
	// ListTop returns the n most recent bookmarks across all users. Ties on
	// CreatedAt are broken by insertion order, newest first.
	ListTop(ctx context.Context, n int) ([]Bookmark, error)
}
