package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/bookmarks-go/internal/bookmark"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process implementation of bookmark.Cache.
// Expired entries are treated as absent and swept periodically.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[string]cacheEntry
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock allows injection of a custom clock (primarily for testing).
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a new in-memory cache that sweeps expired entries every interval.
func NewMemoryCache(interval time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		items:  make(map[string]cacheEntry),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if interval > 0 {
		go c.cleanup(interval)
	}

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || e.expired(c.now()) {
		return nil, false, nil
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)

	return value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	// A non-positive ttl keeps the entry until it is deleted, as in Redis.
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.items[key] = cacheEntry{
		value:     stored,
		expiresAt: expiresAt,
	}

	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)

	return nil
}

// Shutdown stops the background sweep.
func (c *MemoryCache) Shutdown() error {
	c.once.Do(func() { close(c.stopCh) })

	return nil
}

func (c *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}

var _ bookmark.Cache = (*MemoryCache)(nil)
