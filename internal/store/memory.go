package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/serroba/bookmarks-go/internal/bookmark"
)

// MemoryStore is an in-memory implementation of bookmark.Repository.
type MemoryStore struct {
	mu    sync.RWMutex
	items []bookmark.Bookmark // insertion order
}

// NewMemoryStore creates a new in-memory bookmark store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, b *bookmark.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, *b)

	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]bookmark.Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.newestFirst(func(b *bookmark.Bookmark) bool { return b.UserID == userID }, -1), nil
}

func (m *MemoryStore) ListTop(_ context.Context, n int) ([]bookmark.Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.newestFirst(func(*bookmark.Bookmark) bool { return true }, n), nil
}

func (m *MemoryStore) CountSince(_ context.Context, userID string, since time.Time) (int64, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		count    int64
		earliest time.Time
	)

	for i := range m.items {
		b := &m.items[i]
		if b.UserID != userID || !b.CreatedAt.After(since) {
			continue
		}

		if count == 0 || b.CreatedAt.Before(earliest) {
			earliest = b.CreatedAt
		}

		count++
	}

	return count, earliest, nil
}

// Len returns the number of stored bookmarks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

// newestFirst returns matching items ordered by CreatedAt descending, with
// later inserts first on ties. A negative limit returns all matches.
func (m *MemoryStore) newestFirst(match func(*bookmark.Bookmark) bool, limit int) []bookmark.Bookmark {
	result := make([]bookmark.Bookmark, 0)

	for i := len(m.items) - 1; i >= 0; i-- {
		if match(&m.items[i]) {
			result = append(result, m.items[i])
		}
	}

	slices.SortStableFunc(result, func(a, b bookmark.Bookmark) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}

	return result
}

var (
	_ bookmark.Repository = (*MemoryStore)(nil)
	_ RecentCounter       = (*MemoryStore)(nil)
)
