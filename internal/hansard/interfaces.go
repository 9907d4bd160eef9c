package hansard

import (
	"context"
	"time"
)

// RecordStore persists download tracking rows. Writes are replace-on-conflict
// keyed by OriginalURL.
type RecordStore interface {
	GetByURL(ctx context.Context, url string) (DownloadRecord, bool, error)
	GetByPath(ctx context.Context, path string) (DownloadRecord, bool, error)
	UpsertRecord(ctx context.Context, record DownloadRecord) error
	LinkSession(ctx context.Context, path string, sessionID int64) error
	CountRecords(ctx context.Context) (int, error)
}

// DocumentStore is the single-writer record store for extracted documents.
type DocumentStore interface {
	ProcessedPaths(ctx context.Context) ([]string, error)
	CommitDocument(ctx context.Context, req CommitRequest) (CommitResult, error)
}

// StoreAdmin covers the destructive maintenance operations of a run.
type StoreAdmin interface {
	Backup(ctx context.Context, dir string) (string, error)
	CleanIngested(ctx context.Context) error
}

// QualityReporter runs read-only aggregate checks over the record store.
type QualityReporter interface {
	QualityReport(ctx context.Context, topN int) (QualityReport, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
