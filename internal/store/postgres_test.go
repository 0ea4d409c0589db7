package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookmarkRowColumns = []string{"id", "user_id", "url", "title", "created_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})

	return mock
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	mock := newMockPool(t)
	s := store.NewPostgresStore(mock)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS bookmarks`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS bookmarks_created_at_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS bookmarks_user_created_at_idx`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestPostgresStore_Create(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts bookmark", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)

		mock.ExpectExec(`INSERT INTO bookmarks \(id,user_id,url,title,created_at\)`).
			WithArgs("bm-1", "u1", "https://example.com", "Example", createdAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Create(context.Background(), &bookmark.Bookmark{
			ID:        "bm-1",
			UserID:    "u1",
			URL:       "https://example.com",
			Title:     "Example",
			CreatedAt: createdAt,
		})

		require.NoError(t, err)
	})

	t.Run("stores empty title as null", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)

		mock.ExpectExec(`INSERT INTO bookmarks`).
			WithArgs("bm-2", "u1", "https://example.com", nil, createdAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Create(context.Background(), &bookmark.Bookmark{
			ID:        "bm-2",
			UserID:    "u1",
			URL:       "https://example.com",
			CreatedAt: createdAt,
		})

		require.NoError(t, err)
	})

	t.Run("wraps exec errors", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)
		boom := errors.New("connection reset")

		mock.ExpectExec(`INSERT INTO bookmarks`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(boom)

		err := s.Create(context.Background(), &bookmark.Bookmark{ID: "bm-3", UserID: "u1", URL: "https://x.io"})

		require.ErrorIs(t, err, boom)
	})
}

func TestPostgresStore_ListTop(t *testing.T) {
	newest := time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)
	older := newest.Add(-time.Second)
	title := "Example"

	t.Run("orders newest first with sequence tie break", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)

		rows := pgxmock.NewRows(bookmarkRowColumns).
			AddRow("bm-2", "u2", "https://b.example", nil, newest).
			AddRow("bm-1", "u1", "https://a.example", title, older)

		mock.ExpectQuery(`SELECT id, user_id, url, title, created_at FROM bookmarks ORDER BY created_at DESC, seq DESC LIMIT 10`).
			WillReturnRows(rows)

		items, err := s.ListTop(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "bm-2", items[0].ID)
		assert.Empty(t, items[0].Title)
		assert.Equal(t, "Example", items[1].Title)
		assert.Equal(t, older, items[1].CreatedAt)
	})

	t.Run("returns empty slice when no rows", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)

		mock.ExpectQuery(`SELECT .* FROM bookmarks`).WillReturnRows(pgxmock.NewRows(bookmarkRowColumns))

		items, err := s.ListTop(context.Background(), 10)

		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("wraps query errors", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)
		boom := errors.New("connection reset")

		mock.ExpectQuery(`SELECT .* FROM bookmarks`).WillReturnError(boom)

		_, err := s.ListTop(context.Background(), 10)

		require.ErrorIs(t, err, boom)
	})
}

func TestPostgresStore_ListByUser(t *testing.T) {
	mock := newMockPool(t)
	s := store.NewPostgresStore(mock)
	createdAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(bookmarkRowColumns).
		AddRow("bm-1", "u1", "https://a.example", nil, createdAt)

	mock.ExpectQuery(`SELECT .* FROM bookmarks WHERE user_id = \$1 ORDER BY created_at DESC, seq DESC`).
		WithArgs("u1").
		WillReturnRows(rows)

	items, err := s.ListByUser(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u1", items[0].UserID)
}

func TestPostgresStore_CountSince(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns count and earliest", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)
		earliest := since.Add(5 * time.Second)

		mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(created_at\) FROM bookmarks WHERE user_id = \$1 AND created_at > \$2`).
			WithArgs("u1", since).
			WillReturnRows(pgxmock.NewRows([]string{"count", "min"}).AddRow(int64(3), earliest))

		count, got, err := s.CountSince(context.Background(), "u1", since)

		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.Equal(t, earliest, got)
	})

	t.Run("returns zero time when user has no recent bookmarks", func(t *testing.T) {
		mock := newMockPool(t)
		s := store.NewPostgresStore(mock)

		mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(created_at\) FROM bookmarks`).
			WithArgs("u1", since).
			WillReturnRows(pgxmock.NewRows([]string{"count", "min"}).AddRow(int64(0), nil))

		count, got, err := s.CountSince(context.Background(), "u1", since)

		require.NoError(t, err)
		assert.Zero(t, count)
		assert.True(t, got.IsZero())
	})
}
