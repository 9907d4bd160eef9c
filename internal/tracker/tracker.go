// Package tracker decides, for each candidate document, whether it needs to
// be fetched, by combining what the storage backend holds with what the
// tracking table says.
package tracker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/filename"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
)

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonHasRecord   Reason = "has_record"
	ReasonOrphanFile  Reason = "orphan_file"
	ReasonFileMissing Reason = "file_missing_redownload"
	ReasonNew         Reason = "new"
	ReasonInvalidFile Reason = "invalid_orphan_redownload"
)

const defaultMinOrphanBytes = 1

// Decision is the outcome of Check.
type Decision struct {
	ShouldSkip bool
	Reason     Reason
	// Path is where the document lives or should be written. For a tracked
	// URL it is the recorded path, which may differ from the derived one.
	Path string
}

// Config tunes the tracker.
type Config struct {
	// MinOrphanBytes is the smallest untracked file trusted as a complete
	// download. Smaller files are deleted and fetched again.
	MinOrphanBytes int64
}

// Tracker implements the download dedup state machine.
type Tracker struct {
	store   hansard.RecordStore
	backend storage.Backend
	clock   hansard.Clock
	cfg     Config
	logger  *zap.Logger
}

// New builds a Tracker.
func New(store hansard.RecordStore, backend storage.Backend, clock hansard.Clock, cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinOrphanBytes <= 0 {
		cfg.MinOrphanBytes = defaultMinOrphanBytes
	}
	return &Tracker{store: store, backend: backend, clock: clock, cfg: cfg, logger: logger.Named("tracker")}
}

// Check classifies a candidate and applies the orphan self-heal.
func (t *Tracker) Check(ctx context.Context, c hansard.Candidate) (Decision, error) {
	return t.check(ctx, c, true)
}

// Plan classifies a candidate without writing anything.
func (t *Tracker) Plan(ctx context.Context, c hansard.Candidate) (Decision, error) {
	return t.check(ctx, c, false)
}

func (t *Tracker) check(ctx context.Context, c hansard.Candidate, heal bool) (Decision, error) {
	rec, tracked, err := t.store.GetByURL(ctx, c.URL)
	if err != nil {
		return Decision{}, fmt.Errorf("look up %s: %w", c.URL, err)
	}
	path := c.Filename
	if tracked && rec.FilePath != "" {
		path = rec.FilePath
	}
	if !tracked {
		owner, owned, err := t.store.GetByPath(ctx, path)
		if err != nil {
			return Decision{}, fmt.Errorf("look up owner of %s: %w", path, err)
		}
		if owned && owner.OriginalURL != c.URL {
			free, err := t.freePath(ctx, path)
			if err != nil {
				return Decision{}, err
			}
			t.logger.Debug("derived path belongs to another document",
				zap.String("url", c.URL),
				zap.String("owner", owner.OriginalURL),
				zap.String("path", free))
			return Decision{ShouldSkip: false, Reason: ReasonNew, Path: free}, nil
		}
	}
	exists, err := t.backend.Exists(ctx, path)
	if err != nil {
		return Decision{}, fmt.Errorf("check %s: %w", path, err)
	}

	switch {
	case exists && tracked:
		return Decision{ShouldSkip: true, Reason: ReasonHasRecord, Path: path}, nil
	case exists && !tracked:
		return t.orphan(ctx, c, path, heal)
	case !exists && tracked:
		return Decision{ShouldSkip: false, Reason: ReasonFileMissing, Path: path}, nil
	default:
		return Decision{ShouldSkip: false, Reason: ReasonNew, Path: path}, nil
	}
}

func (t *Tracker) orphan(ctx context.Context, c hansard.Candidate, path string, heal bool) (Decision, error) {
	size, err := t.backend.Size(ctx, path)
	if err != nil {
		return Decision{}, fmt.Errorf("size %s: %w", path, err)
	}
	if size < t.cfg.MinOrphanBytes {
		if heal {
			t.logger.Warn("discarding undersized orphan file",
				zap.String("path", path),
				zap.Int64("size", size))
			if err := t.backend.Delete(ctx, path); err != nil {
				return Decision{}, fmt.Errorf("delete invalid orphan %s: %w", path, err)
			}
		}
		return Decision{ShouldSkip: false, Reason: ReasonInvalidFile, Path: path}, nil
	}
	if heal {
		if err := t.Record(ctx, c, path, size); err != nil {
			return Decision{}, err
		}
		t.logger.Info("recorded orphan file", zap.String("url", c.URL), zap.String("path", path))
	}
	return Decision{ShouldSkip: true, Reason: ReasonOrphanFile, Path: path}, nil
}

// freePath finds the first suffixed variant of path that is neither stored
// nor claimed by a tracking row.
func (t *Tracker) freePath(ctx context.Context, path string) (string, error) {
	existing, err := t.backend.List(ctx, "")
	if err != nil {
		return "", fmt.Errorf("list stored documents: %w", err)
	}
	taken := filename.NewTaken(existing...)
	taken.Add(path)
	for {
		candidate := filename.Unique(path, taken)
		_, owned, err := t.store.GetByPath(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("look up owner of %s: %w", candidate, err)
		}
		if !owned {
			return candidate, nil
		}
		taken.Add(candidate)
	}
}

// Record upserts the tracking row for a candidate stored at path.
func (t *Tracker) Record(ctx context.Context, c hansard.Candidate, path string, size int64) error {
	rec := hansard.DownloadRecord{
		OriginalURL:  c.URL,
		FilePath:     path,
		Date:         c.Date,
		Period:       c.Period,
		FileSize:     &size,
		DownloadedAt: t.now(),
	}
	if err := t.store.UpsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("record download %s: %w", c.URL, err)
	}
	return nil
}

func (t *Tracker) now() time.Time {
	if t.clock == nil {
		return time.Now().UTC()
	}
	return t.clock.Now()
}
