package bookmark_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"github.com/serroba/bookmarks-go/internal/ratelimit/ratelimittest"
	"github.com/serroba/bookmarks-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

type stubLimiter struct {
	decision ratelimit.Decision
	keys     []string
}

func (s *stubLimiter) Check(_ context.Context, key string) ratelimit.Decision {
	s.keys = append(s.keys, key)

	return s.decision
}

type failingRepo struct {
	bookmark.Repository
}

func (failingRepo) Create(context.Context, *bookmark.Bookmark) error {
	return errBoom
}

type recordingInvalidator struct {
	calls  int
	err    error
	ctxErr error
}

func (r *recordingInvalidator) Invalidate(ctx context.Context) error {
	r.calls++
	r.ctxErr = ctx.Err()

	return r.err
}

type recordingPublisher struct {
	published []*bookmark.Bookmark
	err       error
}

func (r *recordingPublisher) BookmarkCreated(_ context.Context, b *bookmark.Bookmark) error {
	r.published = append(r.published, b)

	return r.err
}

func allowAll() *stubLimiter {
	return &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	clock := ratelimittest.NewClock(ratelimittest.Start)
	input := bookmark.CreateInput{URL: "https://example.com", Title: "Example"}

	t.Run("creates, invalidates and publishes", func(t *testing.T) {
		repo := store.NewMemoryStore()
		inv := &recordingInvalidator{}
		pub := &recordingPublisher{}
		svc := bookmark.NewService(repo, allowAll(), zap.NewNop(),
			bookmark.WithInvalidator(inv),
			bookmark.WithPublisher(pub),
			bookmark.WithServiceClock(clock.Now),
			bookmark.WithIDGenerator(func() string { return "bm-1" }),
		)

		b, err := svc.Create(ctx, "u1", input)

		require.NoError(t, err)
		assert.Equal(t, "bm-1", b.ID)
		assert.Equal(t, "u1", b.UserID)
		assert.Equal(t, "https://example.com", b.URL)
		assert.Equal(t, "Example", b.Title)
		assert.Equal(t, ratelimittest.Start, b.CreatedAt)
		assert.Equal(t, 1, inv.calls)
		require.Len(t, pub.published, 1)
		assert.Equal(t, "bm-1", pub.published[0].ID)

		stored, err := repo.ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("requires identity before consulting the limiter", func(t *testing.T) {
		limiter := allowAll()
		svc := bookmark.NewService(store.NewMemoryStore(), limiter, zap.NewNop())

		_, err := svc.Create(ctx, "", input)

		require.ErrorIs(t, err, bookmark.ErrUnauthenticated)
		assert.Empty(t, limiter.keys)
	})

	t.Run("returns rate limit error with retry hint", func(t *testing.T) {
		repo := store.NewMemoryStore()
		inv := &recordingInvalidator{}
		limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfterSeconds: 42}}
		svc := bookmark.NewService(repo, limiter, zap.NewNop(), bookmark.WithInvalidator(inv))

		_, err := svc.Create(ctx, "u1", input)

		require.ErrorIs(t, err, bookmark.ErrRateLimited)

		var rlErr *bookmark.RateLimitError

		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, int64(42), rlErr.RetryAfterSeconds)
		assert.False(t, rlErr.Unavailable)
		assert.Zero(t, inv.calls, "denied writes must not invalidate")

		items, _ := repo.ListTop(ctx, 10)
		assert.Empty(t, items)
	})

	t.Run("marks fail-closed denials as unavailable", func(t *testing.T) {
		limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfterSeconds: 60, Degraded: true}}
		svc := bookmark.NewService(store.NewMemoryStore(), limiter, zap.NewNop())

		_, err := svc.Create(ctx, "u1", input)

		var rlErr *bookmark.RateLimitError

		require.ErrorAs(t, err, &rlErr)
		assert.True(t, rlErr.Unavailable)
	})

	t.Run("checks the limiter before validating", func(t *testing.T) {
		limiter := allowAll()
		svc := bookmark.NewService(store.NewMemoryStore(), limiter, zap.NewNop())

		_, err := svc.Create(ctx, "u1", bookmark.CreateInput{URL: "not-a-url"})

		require.ErrorIs(t, err, bookmark.ErrInvalidInput)
		assert.Equal(t, []string{"u1"}, limiter.keys)
	})

	t.Run("wraps repository errors and skips invalidation", func(t *testing.T) {
		inv := &recordingInvalidator{}
		pub := &recordingPublisher{}
		svc := bookmark.NewService(failingRepo{}, allowAll(), zap.NewNop(),
			bookmark.WithInvalidator(inv),
			bookmark.WithPublisher(pub),
		)

		_, err := svc.Create(ctx, "u1", input)

		require.ErrorIs(t, err, errBoom)
		assert.Zero(t, inv.calls)
		assert.Empty(t, pub.published)
	})

	t.Run("invalidation and publish failures do not fail the write", func(t *testing.T) {
		svc := bookmark.NewService(store.NewMemoryStore(), allowAll(), zap.NewNop(),
			bookmark.WithInvalidator(&recordingInvalidator{err: errBoom}),
			bookmark.WithPublisher(&recordingPublisher{err: errBoom}),
		)

		b, err := svc.Create(ctx, "u1", input)

		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
	})

	t.Run("invalidates even when the request context is canceled", func(t *testing.T) {
		inv := &recordingInvalidator{}
		svc := bookmark.NewService(&cancelingRepo{Repository: store.NewMemoryStore()}, allowAll(), zap.NewNop(),
			bookmark.WithInvalidator(inv),
			bookmark.WithInvalidateTimeout(time.Second),
		)

		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		_, err := svc.Create(withCancel(reqCtx, cancel), "u1", input)

		require.NoError(t, err)
		assert.Equal(t, 1, inv.calls)
		assert.NoError(t, inv.ctxErr)
	})
}

type cancelKey struct{}

func withCancel(ctx context.Context, cancel context.CancelFunc) context.Context {
	return context.WithValue(ctx, cancelKey{}, cancel)
}

// cancelingRepo cancels the request context once the insert commits,
// simulating a client that disconnects right after the write.
type cancelingRepo struct {
	bookmark.Repository
}

func (r *cancelingRepo) Create(ctx context.Context, b *bookmark.Bookmark) error {
	if err := r.Repository.Create(ctx, b); err != nil {
		return err
	}

	if cancel, ok := ctx.Value(cancelKey{}).(context.CancelFunc); ok {
		cancel()
	}

	return nil
}

func TestService_ListForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("requires identity", func(t *testing.T) {
		svc := bookmark.NewService(store.NewMemoryStore(), allowAll(), zap.NewNop())

		_, err := svc.ListForUser(ctx, "")

		require.ErrorIs(t, err, bookmark.ErrUnauthenticated)
	})

	t.Run("returns only the user's bookmarks newest first", func(t *testing.T) {
		clock := ratelimittest.NewClock(ratelimittest.Start)
		svc := bookmark.NewService(store.NewMemoryStore(), allowAll(), zap.NewNop(),
			bookmark.WithServiceClock(clock.Now))

		for _, user := range []string{"u1", "u2", "u1"} {
			_, err := svc.Create(ctx, user, bookmark.CreateInput{URL: "https://example.com/" + user})
			require.NoError(t, err)
			clock.Advance(time.Second)
		}

		items, err := svc.ListForUser(ctx, "u1")

		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))
	})

	t.Run("returns empty slice for user without bookmarks", func(t *testing.T) {
		svc := bookmark.NewService(store.NewMemoryStore(), allowAll(), zap.NewNop())

		items, err := svc.ListForUser(ctx, "nobody")

		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}
