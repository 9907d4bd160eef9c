// Package app initializes and holds the long-lived services of one CLI
// invocation, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/clock/system"
	"github.com/JakeFAU/hansard-crawler/internal/config"
	"github.com/JakeFAU/hansard-crawler/internal/crawler"
	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/extract"
	"github.com/JakeFAU/hansard-crawler/internal/fetcher"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/historical"
	"github.com/JakeFAU/hansard-crawler/internal/id/uuid"
	"github.com/JakeFAU/hansard-crawler/internal/metrics"
	"github.com/JakeFAU/hansard-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
	"github.com/JakeFAU/hansard-crawler/internal/storage/gcs"
	"github.com/JakeFAU/hansard-crawler/internal/storage/local"
	storemem "github.com/JakeFAU/hansard-crawler/internal/storage/memory"
	"github.com/JakeFAU/hansard-crawler/internal/store/postgres"
	"github.com/JakeFAU/hansard-crawler/internal/store/sqlite"
	"github.com/JakeFAU/hansard-crawler/internal/tracker"
)

// App holds the services shared by the commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     hansard.Clock
	metrics   *metrics.Registry
	dates     *dates.Extractor
	backend   storage.Backend
	db        *sqlite.Store
	records   hansard.RecordStore
	publisher hansard.Publisher
	out       io.Writer
	closers   []func() error
}

// Option customizes NewApp.
type Option func(*App)

// WithClock overrides the system clock.
func WithClock(c hansard.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithOutput redirects run reports and metric lines.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithBackend injects a storage backend instead of the configured one.
func WithBackend(b storage.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithPublisher injects a publisher instead of opening Pub/Sub.
func WithPublisher(p hansard.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// NewApp opens the configured storage backend, databases and publisher. It
// fails fast if any of them cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(cfg.Metrics.Namespace),
		dates:   dates.New(dates.DateparseParser{}),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	logger.Info("initializing application services")

	if err := a.openBackend(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("tracking_store", cfg.Database.Driver),
		zap.Bool("publisher", a.publisher != nil))
	return a, nil
}

func (a *App) openBackend(ctx context.Context) error {
	if a.backend != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case "local":
		b, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize local storage: %w", err)
		}
		a.backend = b
	case "gcs":
		b, closeFn, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return fmt.Errorf("initialize gcs storage: %w", err)
		}
		a.backend = b
		a.closers = append(a.closers, closeFn)
	case "memory":
		a.logger.Warn("using in-memory storage; documents are discarded on exit")
		a.backend = storemem.New()
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) openDatabase(ctx context.Context) error {
	if dir := filepath.Dir(a.cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sqlite.Open(ctx, sqlite.Config{Path: a.cfg.Database.Path, Clock: a.clock}, a.logger)
	if err != nil {
		return fmt.Errorf("initialize sqlite: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	switch a.cfg.Database.Driver {
	case "sqlite":
		a.records = db
	case "postgres":
		pg, err := postgres.NewDownloadStore(ctx, postgres.Config{DSN: a.cfg.Database.DSN, Table: a.cfg.Database.Table})
		if err != nil {
			return fmt.Errorf("initialize postgres tracking store: %w", err)
		}
		a.records = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
	default:
		return fmt.Errorf("unknown database driver: %s", a.cfg.Database.Driver)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	if a.publisher != nil || !a.cfg.Publisher.Enabled {
		return nil
	}
	p, err := pubsub.Open(ctx, a.cfg.Publisher.ProjectID)
	if err != nil {
		return fmt.Errorf("initialize pubsub publisher: %w", err)
	}
	a.publisher = p
	a.closers = append(a.closers, p.Close)
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Metrics returns the app-wide registry used by NewCrawler. Processors
// record into their own.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Dates returns the shared date extractor.
func (a *App) Dates() *dates.Extractor { return a.dates }

// Backend returns the document storage backend.
func (a *App) Backend() storage.Backend { return a.backend }

// Records returns the tracking store selected by database.driver.
func (a *App) Records() hansard.RecordStore { return a.records }

// Store returns the SQLite session and statement store.
func (a *App) Store() *sqlite.Store { return a.db }

// NewCrawler wires the fetcher, link extractor and download tracker into a
// crawler bounded by r. It records into the app-wide metrics registry.
func (a *App) NewCrawler(r hansard.DateRange, maxPages int) (*crawler.Crawler, error) {
	return a.newCrawler(r, maxPages, a.metrics)
}

func (a *App) newCrawler(r hansard.DateRange, maxPages int, reg *metrics.Registry) (*crawler.Crawler, error) {
	f := fetcher.New(fetcher.Config{
		UserAgent:        a.cfg.Source.UserAgent,
		Timeout:          a.cfg.HTTP.Timeout,
		MaxRetries:       a.cfg.HTTP.MaxRetries,
		BackoffBase:      a.cfg.HTTP.BackoffBase,
		RateLimitDelay:   a.cfg.HTTP.RateLimitDelay,
		MaxDocumentBytes: a.cfg.HTTP.MaxDocumentBytes,
		RespectRobots:    a.cfg.Source.RespectRobots,
	}, fetcher.WithLogger(a.logger), fetcher.WithMetrics(reg))
	links, err := fetcher.NewLinkExtractor(a.cfg.Source.BaseURL, a.dates)
	if err != nil {
		return nil, fmt.Errorf("build link extractor: %w", err)
	}
	trk := tracker.New(a.records, a.backend, a.clock,
		tracker.Config{MinOrphanBytes: a.cfg.Processing.MinOrphanBytes}, a.logger)
	if maxPages <= 0 {
		maxPages = a.cfg.Source.MaxPages
	}
	c, err := crawler.New(crawler.Config{
		ListingURL: a.cfg.ListingURL(),
		PageParam:  a.cfg.Source.PageParam,
		PageOffset: a.cfg.Source.PageOffset,
		MaxPages:   maxPages,
		Range:      r,
	}, crawler.Deps{
		Pages:     f,
		Docs:      f,
		Links:     links,
		Tracker:   trk,
		Backend:   a.backend,
		Periods:   a.dates,
		FirstPage: extract.NewPDFExtractor(),
		Metrics:   reg,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build crawler: %w", err)
	}
	return c, nil
}

// NewProcessor builds a historical processor for one run. The crawler is
// omitted when run.SkipCrawl is set. Each processor gets its own metrics
// registry, so a long-lived scheduler emits per-run values.
func (a *App) NewProcessor(run historical.Config) (*historical.Processor, error) {
	if run.ErrorCap == 0 {
		run.ErrorCap = a.cfg.Processing.ErrorCap
	}
	if run.TopSpeakers == 0 {
		run.TopSpeakers = a.cfg.Processing.TopSpeakers
	}
	if run.BackupDir == "" {
		run.BackupDir = a.cfg.Database.BackupDir
	}
	if run.Topic == "" && a.cfg.Publisher.Enabled {
		run.Topic = a.cfg.Publisher.Topic
	}
	reg := metrics.New(a.cfg.Metrics.Namespace)
	deps := historical.Deps{
		Backend:   a.backend,
		Records:   a.records,
		Documents: a.db,
		Admin:     a.db,
		Quality:   a.db,
		Dates:     a.dates,
		Factory:   extract.DefaultFactory,
		Publisher: a.publisher,
		IDs:       uuid.New(),
		Clock:     a.clock,
		Metrics:   reg,
		Logger:    a.logger,
		Out:       a.out,
	}
	if !run.SkipCrawl {
		c, err := a.newCrawler(run.Range, run.MaxPages, reg)
		if err != nil {
			return nil, err
		}
		deps.Crawler = c
	}
	p, err := historical.New(run, deps)
	if err != nil {
		return nil, fmt.Errorf("build processor: %w", err)
	}
	return p, nil
}

// Close releases every opened service in reverse order and flushes the
// logger.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
