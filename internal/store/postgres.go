package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/serroba/bookmarks-go/internal/bookmark"
)

const bookmarksTable = "bookmarks"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookmarks (
		seq        BIGSERIAL PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL,
		url        TEXT NOT NULL,
		title      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookmarks_created_at_idx ON bookmarks (created_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS bookmarks_user_created_at_idx ON bookmarks (user_id, created_at DESC)`,
}

var bookmarkColumns = []string{"id", "user_id", "url", "title", "created_at"}

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL implementation of bookmark.Repository.
type PostgresStore struct {
	pool    Pool
	builder squirrel.StatementBuilderType
}

// NewPostgresStore creates a new PostgreSQL-backed bookmark store.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// EnsureSchema creates the bookmarks table and its indexes if missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	return nil
}

func (p *PostgresStore) Create(ctx context.Context, b *bookmark.Bookmark) error {
	sql, args, err := p.builder.Insert(bookmarksTable).
		Columns(bookmarkColumns...).
		Values(b.ID, b.UserID, b.URL, nullableString(b.Title), b.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert bookmark sql: %w", err)
	}

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}

	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]bookmark.Bookmark, error) {
	query := p.builder.Select(bookmarkColumns...).
		From(bookmarksTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "seq DESC")

	return p.list(ctx, query)
}

func (p *PostgresStore) ListTop(ctx context.Context, n int) ([]bookmark.Bookmark, error) {
	query := p.builder.Select(bookmarkColumns...).
		From(bookmarksTable).
		OrderBy("created_at DESC", "seq DESC").
		Limit(uint64(max(n, 0)))

	return p.list(ctx, query)
}

func (p *PostgresStore) CountSince(ctx context.Context, userID string, since time.Time) (int64, time.Time, error) {
	sql, args, err := p.builder.Select("COUNT(*)", "MIN(created_at)").
		From(bookmarksTable).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Gt{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build count bookmarks sql: %w", err)
	}

	var (
		count    int64
		earliest *time.Time
	)

	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&count, &earliest); err != nil {
		return 0, time.Time{}, fmt.Errorf("count bookmarks: %w", err)
	}

	if earliest == nil {
		return count, time.Time{}, nil
	}

	return count, *earliest, nil
}

func (p *PostgresStore) list(ctx context.Context, query squirrel.SelectBuilder) ([]bookmark.Bookmark, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bookmarks sql: %w", err)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	items := make([]bookmark.Bookmark, 0)

	for rows.Next() {
		var (
			b     bookmark.Bookmark
			title *string
		)

		if err := rows.Scan(&b.ID, &b.UserID, &b.URL, &title, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}

		if title != nil {
			b.Title = *title
		}

		b.CreatedAt = b.CreatedAt.UTC()
		items = append(items, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}

	return items, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

var (
	_ bookmark.Repository = (*PostgresStore)(nil)
	_ RecentCounter       = (*PostgresStore)(nil)
)
