package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultInvalidateTimeout = time.Second

// Invalidator drops cached reads that a write made stale.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher announces committed bookmarks to other processes.
type Publisher interface {
	BookmarkCreated(ctx context.Context, b *Bookmark) error
}

// Service coordinates bookmark writes and per-user reads.
type Service struct {
	repo              Repository
	limiter           ratelimit.Limiter
	invalidator       Invalidator
	publisher         Publisher
	logger            *zap.Logger
	invalidateTimeout time.Duration
	now               func() time.Time
	newID             func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInvalidator sets the cache invalidated after each committed write.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) { s.invalidator = inv }
}

// WithPublisher sets the publisher notified after each committed write.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithInvalidateTimeout bounds the post-commit invalidation.
func WithInvalidateTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.invalidateTimeout = d }
}

// WithServiceClock allows injection of a custom clock (primarily for testing).
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how bookmark ids are generated.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a new bookmark service.
func NewService(repo Repository, limiter ratelimit.Limiter, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:              repo,
		limiter:           limiter,
		logger:            logger,
		invalidateTimeout: defaultInvalidateTimeout,
		now:               time.Now,
		newID:             uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create admits, validates and stores a bookmark for userID.
//
// The limiter is consulted before validation, so rejected payloads still
// count against the user's window.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Bookmark, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	decision := s.limiter.Check(ctx, userID)
	if !decision.Allowed {
		return nil, &RateLimitError{
			RetryAfterSeconds: decision.RetryAfterSeconds,
			Unavailable:       decision.Degraded,
		}
	}

	draft, err := ParseDraft(in)
	if err != nil {
		return nil, err
	}

	b := &Bookmark{
		ID:        s.newID(),
		UserID:    userID,
		URL:       draft.URL,
		Title:     draft.Title,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create bookmark: %w", err)
	}

	// Post-commit steps must not be cut short by the client going away.
	postCommit := context.WithoutCancel(ctx)

	s.invalidate(postCommit, b)
	s.publish(postCommit, b)

	return b, nil
}

// ListForUser returns userID's bookmarks, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Bookmark, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	if items == nil {
		items = []Bookmark{}
	}

	return items, nil
}

func (s *Service) invalidate(ctx context.Context, b *Bookmark) {
	if s.invalidator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.invalidateTimeout)
	defer cancel()

	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate top feed cache",
			zap.String("bookmark_id", b.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, b *Bookmark) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.BookmarkCreated(ctx, b); err != nil {
		s.logger.Warn("failed to publish bookmark created event",
			zap.String("bookmark_id", b.ID),
			zap.Error(err),
		)
	}
}
