package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// TopKey is the cache key of the top feed.
	TopKey = "top-bookmarks"
	// TopLimit is the number of bookmarks in the top feed.
	TopLimit = 10

	defaultCacheTimeout = 200 * time.Millisecond
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// CacheRecorder receives cache lookup results, typically for metrics.
type CacheRecorder interface {
	RecordCacheLookup(result string)
}

// Cache lookup results passed to CacheRecorder.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

type nopCacheRecorder struct{}

func (nopCacheRecorder) RecordCacheLookup(string) {}

// TopReader serves the top feed through a read-through cache.
// Without a cache every read goes to the repository.
type TopReader struct {
	repo     Repository
	cache    Cache
	ttl      time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	recorder CacheRecorder
	enc      cbor.EncMode
	group    singleflight.Group
}

// TopOption configures a TopReader.
type TopOption func(*TopReader)

// WithCache enables caching of the feed for ttl.
func WithCache(cache Cache, ttl time.Duration) TopOption {
	return func(r *TopReader) {
		r.cache = cache
		r.ttl = ttl
	}
}

// WithCacheTimeout bounds each cache call.
func WithCacheTimeout(d time.Duration) TopOption {
	return func(r *TopReader) { r.timeout = d }
}

// WithCacheRecorder injects a cache lookup recorder.
func WithCacheRecorder(recorder CacheRecorder) TopOption {
	return func(r *TopReader) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// NewTopReader creates a new top feed reader.
func NewTopReader(repo Repository, logger *zap.Logger, opts ...TopOption) *TopReader {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}

	r := &TopReader{
		repo:     repo,
		timeout:  defaultCacheTimeout,
		logger:   logger,
		recorder: nopCacheRecorder{},
		enc:      enc,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CacheEnabled reports whether reads go through a cache.
func (r *TopReader) CacheEnabled() bool {
	return r.cache != nil
}

// GetTop returns up to TopLimit of the most recent bookmarks across all users.
func (r *TopReader) GetTop(ctx context.Context) ([]Bookmark, error) {
	if r.cache == nil {
		return r.load(ctx)
	}

	if items, ok := r.lookup(ctx); ok {
		return items, nil
	}

	// Concurrent misses share one recompute. The shared load must not fail
	// because the caller that started it went away.
	v, err, _ := r.group.Do(TopKey, func() (any, error) {
		return r.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}

	return v.([]Bookmark), nil
}

// Invalidate drops the cached feed so the next read recomputes it.
func (r *TopReader) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}

	return invalidateTop(ctx, r.cache, r.timeout)
}

// CacheInvalidator drops the cached top feed for processes that never serve it,
// such as the event consumer.
type CacheInvalidator struct {
	cache   Cache
	timeout time.Duration
}

// NewCacheInvalidator creates an invalidator for the top feed held in cache.
func NewCacheInvalidator(cache Cache) *CacheInvalidator {
	return &CacheInvalidator{cache: cache, timeout: defaultCacheTimeout}
}

func (c *CacheInvalidator) Invalidate(ctx context.Context) error {
	return invalidateTop(ctx, c.cache, c.timeout)
}

func invalidateTop(ctx context.Context, cache Cache, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := cache.Delete(ctx, TopKey); err != nil {
		return fmt.Errorf("invalidate %s: %w", TopKey, err)
	}

	return nil
}

func (r *TopReader) lookup(ctx context.Context) ([]Bookmark, bool) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	raw, ok, err := r.cache.Get(ctx, TopKey)
	if err != nil {
		r.recorder.RecordCacheLookup(CacheError)
		r.logger.Warn("cache read failed, loading from store", zap.String("key", TopKey), zap.Error(err))

		return nil, false
	}

	if !ok {
		r.recorder.RecordCacheLookup(CacheMiss)

		return nil, false
	}

	var items []Bookmark
	if err := cbor.Unmarshal(raw, &items); err != nil {
		r.recorder.RecordCacheLookup(CacheError)
		r.logger.Warn("cached value is corrupt, loading from store", zap.String("key", TopKey), zap.Error(err))

		return nil, false
	}

	r.recorder.RecordCacheLookup(CacheHit)

	if items == nil {
		items = []Bookmark{}
	}

	return items, true
}

func (r *TopReader) load(ctx context.Context) ([]Bookmark, error) {
	items, err := r.repo.ListTop(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("list top bookmarks: %w", err)
	}

	if items == nil {
		items = []Bookmark{}
	}

	if r.cache != nil {
		r.store(ctx, items)
	}

	return items, nil
}

func (r *TopReader) store(ctx context.Context, items []Bookmark) {
	raw, err := r.enc.Marshal(items)
	if err != nil {
		r.logger.Error("failed to encode top feed", zap.Error(err))

		return
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.cache.Set(ctx, TopKey, raw, r.ttl); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", TopKey), zap.Error(err))
	}
}

func (r *TopReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, r.timeout)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
