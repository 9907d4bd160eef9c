// Package sqlite is the embedded relational store. It owns the download
// tracking table and the ingestion tables (sessions, statements), and is
// written to by a single goroutine at a time.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

const timestampLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS downloaded_pdfs (
	id INTEGER PRIMARY KEY,
	original_url TEXT NOT NULL UNIQUE,
	file_path TEXT NOT NULL,
	date TEXT,
	period_of_day TEXT,
	session_id INTEGER,
	file_size INTEGER,
	downloaded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL UNIQUE,
	source_url TEXT,
	date TEXT NOT NULL,
	period_of_day TEXT NOT NULL,
	processed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS statements (
	id INTEGER PRIMARY KEY,
	session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	speaker TEXT NOT NULL,
	text TEXT NOT NULL,
	page_number INTEGER,
	bill_refs TEXT
);

CREATE INDEX IF NOT EXISTS idx_downloads_path ON downloaded_pdfs(file_path);
CREATE INDEX IF NOT EXISTS idx_statements_session ON statements(session_id, speaker);
`

// Config locates the database file.
type Config struct {
	Path  string
	Clock hansard.Clock
}

// Store implements the tracking, document, admin and QA interfaces.
type Store struct {
	db     *sql.DB
	clock  hansard.Clock
	logger *zap.Logger
}

var (
	_ hansard.RecordStore     = (*Store)(nil)
	_ hansard.DocumentStore   = (*Store)(nil)
	_ hansard.StoreAdmin      = (*Store)(nil)
	_ hansard.QualityReporter = (*Store)(nil)
)

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database.path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db, clock: cfg.Clock, logger: logger.Named("sqlite")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close() //nolint:wrapcheck
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

const recordColumns = `original_url, file_path, date, period_of_day, session_id, file_size, downloaded_at`

// GetByURL returns the tracking row for url.
func (s *Store) GetByURL(ctx context.Context, url string) (hansard.DownloadRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM downloaded_pdfs WHERE original_url = ?`, url)
	return scanRecord(row)
}

// GetByPath returns the tracking row pointing at path.
func (s *Store) GetByPath(ctx context.Context, path string) (hansard.DownloadRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM downloaded_pdfs WHERE file_path = ? ORDER BY id LIMIT 1`, path)
	return scanRecord(row)
}

// UpsertRecord inserts or replaces the row keyed by original_url. An existing
// session link survives when the new row carries none.
func (s *Store) UpsertRecord(ctx context.Context, rec hansard.DownloadRecord) error {
	if rec.OriginalURL == "" || rec.FilePath == "" {
		return fmt.Errorf("upsert record: url and path are required")
	}
	downloadedAt := rec.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloaded_pdfs (`+recordColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(original_url) DO UPDATE SET
	file_path = excluded.file_path,
	date = excluded.date,
	period_of_day = excluded.period_of_day,
	session_id = COALESCE(excluded.session_id, downloaded_pdfs.session_id),
	file_size = excluded.file_size,
	downloaded_at = excluded.downloaded_at`,
		rec.OriginalURL,
		rec.FilePath,
		nullableDate(rec.Date),
		nullablePeriod(rec.Period),
		nullableInt(rec.SessionID),
		nullableInt(rec.FileSize),
		downloadedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.OriginalURL, err)
	}
	return nil
}

// LinkSession points every tracking row stored at path to sessionID.
func (s *Store) LinkSession(ctx context.Context, path string, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE downloaded_pdfs SET session_id = ? WHERE file_path = ?`, sessionID, path); err != nil {
		return fmt.Errorf("link session %d: %w", sessionID, err)
	}
	return nil
}

// CountRecords returns the number of tracking rows.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM downloaded_pdfs`)
}

// ListRecords returns every tracking row ordered by original URL.
func (s *Store) ListRecords(ctx context.Context) ([]hansard.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM downloaded_pdfs ORDER BY original_url`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var out []hansard.DownloadRecord
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (hansard.DownloadRecord, bool, error) {
	var (
		rec          hansard.DownloadRecord
		date, period sql.NullString
		session      sql.NullInt64
		size         sql.NullInt64
		downloadedAt string
	)
	err := row.Scan(&rec.OriginalURL, &rec.FilePath, &date, &period, &session, &size, &downloadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return hansard.DownloadRecord{}, false, nil
	}
	if err != nil {
		return hansard.DownloadRecord{}, false, fmt.Errorf("scan record: %w", err)
	}
	if date.Valid {
		d, err := time.Parse(hansard.DateLayout, date.String)
		if err != nil {
			return hansard.DownloadRecord{}, false, fmt.Errorf("parse record date %q: %w", date.String, err)
		}
		rec.Date = &d
	}
	if period.Valid {
		rec.Period = hansard.Period(period.String)
	}
	if session.Valid {
		id := session.Int64
		rec.SessionID = &id
	}
	if size.Valid {
		n := size.Int64
		rec.FileSize = &n
	}
	ts, err := time.Parse(timestampLayout, downloadedAt)
	if err != nil {
		return hansard.DownloadRecord{}, false, fmt.Errorf("parse downloaded_at %q: %w", downloadedAt, err)
	}
	rec.DownloadedAt = ts.UTC()
	return rec, true, nil
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func nullableDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(hansard.DateLayout)
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
