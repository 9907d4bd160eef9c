// Package postgres provides a Postgres-backed download tracking table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

const defaultTable = "downloaded_pdfs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for tracking rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// DownloadStore reads and writes tracking rows in Postgres.
type DownloadStore struct {
	pool  pool
	table string
}

var _ hansard.RecordStore = (*DownloadStore)(nil)

// NewDownloadStore connects to Postgres and ensures the tracking table exists.
func NewDownloadStore(ctx context.Context, cfg Config) (*DownloadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &DownloadStore{pool: p, table: table}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewDownloadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDownloadStoreWithPool(p pool, table string) (*DownloadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &DownloadStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *DownloadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tracking table if it is missing.
func (s *DownloadStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	original_url TEXT NOT NULL UNIQUE,
	file_path TEXT NOT NULL,
	date DATE,
	period_of_day TEXT,
	session_id BIGINT,
	file_size BIGINT,
	downloaded_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// GetByURL returns the tracking row for url.
func (s *DownloadStore) GetByURL(ctx context.Context, url string) (hansard.DownloadRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT original_url, file_path, date, period_of_day, session_id, file_size, downloaded_at
FROM %s WHERE original_url = $1`, s.table)
	return s.scan(s.pool.QueryRow(ctx, query, url))
}

// GetByPath returns the tracking row pointing at path.
func (s *DownloadStore) GetByPath(ctx context.Context, path string) (hansard.DownloadRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT original_url, file_path, date, period_of_day, session_id, file_size, downloaded_at
FROM %s WHERE file_path = $1 ORDER BY id LIMIT 1`, s.table)
	return s.scan(s.pool.QueryRow(ctx, query, path))
}

func (s *DownloadStore) scan(row pgx.Row) (hansard.DownloadRecord, bool, error) {
	var (
		rec     hansard.DownloadRecord
		date    *time.Time
		period  *string
		session *int64
		size    *int64
	)
	err := row.Scan(&rec.OriginalURL, &rec.FilePath, &date, &period, &session, &size, &rec.DownloadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return hansard.DownloadRecord{}, false, nil
	}
	if err != nil {
		return hansard.DownloadRecord{}, false, fmt.Errorf("scan tracking row: %w", err)
	}
	if date != nil {
		d := hansard.Day(date.Year(), date.Month(), date.Day())
		rec.Date = &d
	}
	if period != nil {
		rec.Period = hansard.Period(*period)
	}
	rec.SessionID = session
	rec.FileSize = size
	rec.DownloadedAt = rec.DownloadedAt.UTC()
	return rec, true, nil
}

// UpsertRecord inserts or replaces the row keyed by original_url. An existing
// session link survives when the new row carries none.
func (s *DownloadStore) UpsertRecord(ctx context.Context, rec hansard.DownloadRecord) error {
	if rec.OriginalURL == "" || rec.FilePath == "" {
		return fmt.Errorf("upsert record: url and path are required")
	}
	downloadedAt := rec.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	original_url,
	file_path,
	date,
	period_of_day,
	session_id,
	file_size,
	downloaded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (original_url) DO UPDATE SET
	file_path = EXCLUDED.file_path,
	date = EXCLUDED.date,
	period_of_day = EXCLUDED.period_of_day,
	session_id = COALESCE(EXCLUDED.session_id, %[1]s.session_id),
	file_size = EXCLUDED.file_size,
	downloaded_at = EXCLUDED.downloaded_at`, s.table)

	args := []any{
		rec.OriginalURL,
		rec.FilePath,
		nullableDate(rec.Date),
		nullablePeriod(rec.Period),
		nullableInt(rec.SessionID),
		nullableInt(rec.FileSize),
		downloadedAt.UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert tracking row: %w", err)
	}
	return nil
}

// LinkSession points every tracking row stored at path to sessionID.
func (s *DownloadStore) LinkSession(ctx context.Context, path string, sessionID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET session_id = $1 WHERE file_path = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, sessionID, path); err != nil {
		return fmt.Errorf("link session %d: %w", sessionID, err)
	}
	return nil
}

// CountRecords returns the number of tracking rows.
func (s *DownloadStore) CountRecords(ctx context.Context) (int, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracking rows: %w", err)
	}
	return int(n), nil
}

func nullableDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return hansard.Day(d.Year(), d.Month(), d.Day())
}

func nullablePeriod(p hansard.Period) any {
	if p == "" {
		return nil
	}
	return string(p)
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
