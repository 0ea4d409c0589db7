package store

import (
	"context"
	"strings"
	"time"

	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

// RecentCounter counts a user's bookmarks created after a point in time.
type RecentCounter interface {
	// CountSince returns how many bookmarks userID created after since and
	// the creation time of the earliest of them.
	CountSince(ctx context.Context, userID string, since time.Time) (int64, time.Time, error)
}

// RateLimitDatabaseStore is a degraded ratelimit.Store that derives the window
// from the bookmarks already persisted for a user.
//
// It records nothing itself: the committed bookmark is the window entry. The
// count and the later insert are not atomic, so concurrent writes by the same
// user can exceed the limit.
//
// Keys are user IDs once keyPrefix, the limiter's namespace, is removed.
// Rejected writes never reach the table, so only committed bookmarks count.
type RateLimitDatabaseStore struct {
	counter   RecentCounter
	keyPrefix string
}

// NewRateLimitDatabaseStore creates a rate limit store backed by the domain store.
// keyPrefix must match the prefix the limiter puts in front of user IDs.
func NewRateLimitDatabaseStore(counter RecentCounter, keyPrefix string) *RateLimitDatabaseStore {
	return &RateLimitDatabaseStore{counter: counter, keyPrefix: keyPrefix}
}

func (s *RateLimitDatabaseStore) Reserve(
	ctx context.Context, key string, now time.Time, window time.Duration, limit int64,
) (ratelimit.Reservation, error) {
	userID := strings.TrimPrefix(key, s.keyPrefix)

	count, oldest, err := s.counter.CountSince(ctx, userID, now.Add(-window))
	if err != nil {
		return ratelimit.Reservation{}, err
	}

	if count >= limit {
		return ratelimit.Reservation{Allowed: false, Count: count, Oldest: oldest}, nil
	}

	return ratelimit.Reservation{Allowed: true, Count: count + 1, Oldest: oldest}, nil
}

var _ ratelimit.Store = (*RateLimitDatabaseStore)(nil)
