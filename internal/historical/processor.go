// Package historical orchestrates a full batch run: optional clean with
// backup, crawl, parallel extraction, sequential commit, quality report and
// metrics.
package historical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hansard-crawler/internal/clock/system"
	"github.com/JakeFAU/hansard-crawler/internal/crawler"
	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/extract"
	"github.com/JakeFAU/hansard-crawler/internal/filename"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/id/uuid"
	"github.com/JakeFAU/hansard-crawler/internal/metrics"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
)

const (
	defaultWorkers     = 4
	defaultTopSpeakers = 10
)

// CrawlRunner is the crawl phase collaborator.
type CrawlRunner interface {
	Crawl(ctx context.Context, maxPages int) ([]hansard.Candidate, error)
	DownloadAll(ctx context.Context, cands []hansard.Candidate) (crawler.Result, error)
	Plan(ctx context.Context, cands []hansard.Candidate) (crawler.Result, error)
}

// Config selects phases and bounds for one run.
type Config struct {
	Workers     int
	Force       bool
	DryRun      bool
	Clean       bool
	SkipCrawl   bool
	SkipProcess bool
	SkipQA      bool
	MaxPages    int
	Range       hansard.DateRange
	BackupDir   string
	ErrorCap    int
	TopSpeakers int
	// Topic receives the run summary when a publisher is configured.
	Topic string
}

// Deps are the collaborators of a Processor. Crawler, Admin, Quality and
// Publisher are optional. When Records and Documents are the same store the
// commit is expected to link the tracking row itself.
type Deps struct {
	Crawler   CrawlRunner
	Backend   storage.Backend
	Records   hansard.RecordStore
	Documents hansard.DocumentStore
	Admin     hansard.StoreAdmin
	Quality   hansard.QualityReporter
	Dates     *dates.Extractor
	Factory   extract.Factory
	Publisher hansard.Publisher
	IDs       hansard.IDGenerator
	Clock     hansard.Clock
	Metrics   *metrics.Registry
	Logger    *zap.Logger
	Out       io.Writer
}

// Processor runs historical batches.
type Processor struct {
	cfg       Config
	crawler   CrawlRunner
	backend   storage.Backend
	records   hansard.RecordStore
	documents hansard.DocumentStore
	admin     hansard.StoreAdmin
	quality   hansard.QualityReporter
	dates     *dates.Extractor
	factory   extract.Factory
	publisher hansard.Publisher
	ids       hansard.IDGenerator
	clock     hansard.Clock
	metrics   *metrics.Registry
	logger    *zap.Logger
	out       io.Writer
	// linkSessions is set when tracking rows live outside the document store.
	linkSessions bool
}

// New validates cfg and deps and fills defaults.
func New(cfg Config, deps Deps) (*Processor, error) {
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.TopSpeakers <= 0 {
		cfg.TopSpeakers = defaultTopSpeakers
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if !cfg.SkipProcess && deps.Documents == nil {
		return nil, fmt.Errorf("document store is required unless processing is skipped")
	}
	if cfg.Clean && !cfg.DryRun && deps.Admin == nil {
		return nil, fmt.Errorf("clean requires a store admin")
	}
	if cfg.Clean && !cfg.DryRun && strings.TrimSpace(cfg.BackupDir) == "" {
		return nil, fmt.Errorf("clean requires a backup directory")
	}
	p := &Processor{
		cfg:       cfg,
		crawler:   deps.Crawler,
		backend:   deps.Backend,
		records:   deps.Records,
		documents: deps.Documents,
		admin:     deps.Admin,
		quality:   deps.Quality,
		dates:     deps.Dates,
		factory:   deps.Factory,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		out:       deps.Out,
	}
	p.linkSessions = deps.Records != nil && any(deps.Records) != any(deps.Documents)
	if p.dates == nil {
		p.dates = dates.New(nil)
	}
	if p.factory == nil {
		p.factory = extract.DefaultFactory
	}
	if p.ids == nil {
		p.ids = uuid.New()
	}
	if p.clock == nil {
		p.clock = system.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("historical")
	if p.out == nil {
		p.out = os.Stdout
	}
	return p, nil
}

type task struct {
	path      string
	date      *time.Time
	period    hansard.Period
	processed bool
}

// Run executes the configured phases. Per-document and per-commit failures
// are recorded in the summary; only clean failures, storage listing failures
// and cancellation end the run early.
func (p *Processor) Run(ctx context.Context) (*RunSummary, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID))
	stats := newRunStats(p.cfg.ErrorCap)
	summary := &RunSummary{
		RunID:     runID,
		StartedAt: p.clock.Now(),
		DryRun:    p.cfg.DryRun,
		Stats:     stats,
	}
	logger.Info("historical run started",
		zap.Int("workers", p.cfg.Workers),
		zap.Bool("dry_run", p.cfg.DryRun),
		zap.Bool("force", p.cfg.Force),
		zap.Bool("clean", p.cfg.Clean))

	if p.cfg.Clean {
		if err := p.clean(ctx, logger, summary); err != nil {
			return p.abort(summary, err)
		}
	}
	if !p.cfg.SkipCrawl {
		if err := p.crawl(ctx, logger, stats); err != nil {
			return p.abort(summary, err)
		}
	}
	if !p.cfg.SkipProcess {
		outcomes, err := p.process(ctx, logger, stats)
		summary.Outcomes = outcomes
		if err != nil {
			return p.abort(summary, err)
		}
	}
	if !p.cfg.SkipQA {
		p.qualityCheck(ctx, logger, summary)
	}
	p.finish(summary, StatusCompleted)

	if err := WriteSummary(p.out, summary); err != nil {
		logger.Warn("failed to write run summary", zap.Error(err))
	}
	if err := p.metrics.Emit(p.out); err != nil {
		logger.Warn("failed to emit metrics", zap.Error(err))
	}
	p.publish(ctx, logger, summary)
	logger.Info("historical run completed",
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Int("fatal_errors", summary.FatalErrors),
		zap.Int("non_fatal_errors", summary.NonFatalErrors),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Processor) abort(summary *RunSummary, err error) (*RunSummary, error) {
	status := StatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = StatusCanceled
	}
	p.finish(summary, status)
	return summary, err
}

func (p *Processor) finish(summary *RunSummary, status RunStatus) {
	stats := summary.Stats
	summary.Status = status
	summary.FinishedAt = p.clock.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	summary.SuccessRate = stats.SuccessRate()
	summary.FatalErrors, summary.NonFatalErrors = stats.ErrorCounts()
	summary.Recommendations = stats.Recommendations()
	p.metrics.RecordRun(metrics.RunMetrics{
		SuccessRate:    summary.SuccessRate,
		FatalErrors:    summary.FatalErrors,
		NonFatalErrors: summary.NonFatalErrors,
		Duration:       summary.Duration,
	})
}

func (p *Processor) clean(ctx context.Context, logger *zap.Logger, summary *RunSummary) error {
	if p.cfg.DryRun {
		logger.Info("dry run: skipping clean")
		return nil
	}
	backup, err := p.admin.Backup(ctx, p.cfg.BackupDir)
	if err != nil {
		return fmt.Errorf("backup before clean: %w", err)
	}
	summary.BackupPath = backup
	if err := p.admin.CleanIngested(ctx); err != nil {
		return fmt.Errorf("clean ingested tables: %w", err)
	}
	logger.Info("ingested tables cleaned", zap.String("backup", backup))
	return nil
}

func (p *Processor) crawl(ctx context.Context, logger *zap.Logger, stats *RunStats) error {
	if p.crawler == nil {
		logger.Info("no crawler configured; using local files only")
		return nil
	}
	cands, err := p.crawler.Crawl(ctx, p.cfg.MaxPages)
	stats.Candidates = len(cands)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		stats.AddNonFatal("crawl: %v", err)
		logger.Warn("crawl failed; continuing with local files", zap.Error(err))
	}

	var res crawler.Result
	if p.cfg.DryRun {
		res, err = p.crawler.Plan(ctx, cands)
	} else {
		res, err = p.crawler.DownloadAll(ctx, cands)
	}
	stats.Downloaded = res.Downloaded
	stats.DownloadSkipped = res.Skipped
	stats.DownloadFailed = res.Failed
	for _, msg := range res.Errors {
		stats.AddNonFatal("%s", msg)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("download: %w", err)
		}
		stats.AddNonFatal("download: %v", err)
		logger.Warn("download step failed", zap.Error(err))
	}
	logger.Info("crawl phase finished",
		zap.Int("candidates", stats.Candidates),
		zap.Int("downloaded", res.Downloaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return nil
}

func (p *Processor) process(ctx context.Context, logger *zap.Logger, stats *RunStats) ([]Outcome, error) {
	tasks, err := p.discover(ctx, logger, stats)
	if err != nil {
		return nil, err
	}
	if p.cfg.DryRun {
		for _, t := range tasks {
			if t.processed && !p.cfg.Force {
				stats.AlreadyProcessed++
				continue
			}
			stats.Pending++
		}
		logger.Info("dry run: documents counted",
			zap.Int("pending", stats.Pending),
			zap.Int("already_processed", stats.AlreadyProcessed))
		return nil, nil
	}

	outcomes, err := p.extractAll(ctx, logger, tasks)
	for _, o := range outcomes {
		stats.observe(o)
		p.metrics.ObserveDocument(string(o.Status), o.StatementCount(), speakersOf(o), billsOf(o), o.Duration)
		if o.Status == StatusError {
			logger.Error("document failed",
				zap.String("path", o.Path),
				zap.String("reason", string(o.Reason)),
				zap.String("error", o.Err))
		}
	}
	if err != nil {
		return outcomes, err
	}
	if err := p.commitAll(ctx, logger, outcomes, stats); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// discover lists local documents and resolves their dates. Files without a
// recoverable date are kept so they surface as outcomes.
func (p *Processor) discover(ctx context.Context, logger *zap.Logger, stats *RunStats) ([]task, error) {
	paths, err := p.backend.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list local documents: %w", err)
	}
	processed := make(map[string]struct{})
	if p.documents != nil {
		done, err := p.documents.ProcessedPaths(ctx)
		if err != nil {
			return nil, fmt.Errorf("load processed paths: %w", err)
		}
		for _, d := range done {
			processed[d] = struct{}{}
		}
	}

	var tasks []task
	for _, fp := range paths {
		if !strings.EqualFold(path.Ext(fp), filename.Extension) {
			continue
		}
		stats.Found++
		_, done := processed[fp]
		t := task{path: fp, processed: done}
		if parsed := filename.Parse(fp); parsed.Valid {
			d := parsed.Date
			t.date = &d
			t.period = parsed.Period
		} else if d, ok := p.dates.RecoverDate(path.Base(fp)); ok {
			t.date = &d
		}
		if t.date == nil {
			stats.Undated++
			logger.Warn("including file with no recoverable date", zap.String("path", fp))
		} else if !p.cfg.Range.Contains(*t.date) {
			stats.SkippedByRange++
			continue
		}
		tasks = append(tasks, t)
	}
	logger.Info("local documents discovered",
		zap.Int("found", stats.Found),
		zap.Int("eligible", len(tasks)),
		zap.Int("skipped_by_range", stats.SkippedByRange))
	return tasks, nil
}

// extractAll runs the tasks on a pool of cfg.Workers goroutines. Outcomes are
// returned in completion order.
func (p *Processor) extractAll(ctx context.Context, logger *zap.Logger, tasks []task) ([]Outcome, error) {
	results := make(chan Outcome, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results <- p.runTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(tasks))
	completed := 0
	for o := range results {
		outcomes = append(outcomes, o)
		if o.Reason != ReasonCanceled {
			completed++
		}
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("processing interrupted",
			zap.Int("completed", completed),
			zap.Int("total", len(tasks)))
		return outcomes, fmt.Errorf("processing interrupted after %d of %d documents: %w",
			completed, len(tasks), err)
	}
	return outcomes, nil
}

func (p *Processor) runTask(ctx context.Context, t task) (o Outcome) {
	start := time.Now()
	p.metrics.IncActiveWorkers()
	defer p.metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			o = failed(t, ReasonPanic, fmt.Sprintf("panic: %v", r))
		}
		o.Duration = time.Since(start)
	}()
	if err := ctx.Err(); err != nil {
		return failed(t, ReasonCanceled, err.Error())
	}
	return p.processFile(ctx, t)
}

func (p *Processor) processFile(ctx context.Context, t task) Outcome {
	base := path.Base(t.path)
	if t.date == nil {
		return failed(t, ReasonCannotExtractDate, "no date found in "+base)
	}
	if t.processed && !p.cfg.Force {
		return skipped(t, ReasonAlreadyProcessed)
	}
	data, err := p.backend.Read(ctx, t.path)
	if err != nil {
		return failed(t, ReasonReadFailed, err.Error())
	}

	tk := p.factory()
	doc, err := tk.Documents.Extract(ctx, data)
	if err != nil {
		return failed(t, ReasonPDFUnreadable, err.Error())
	}
	period := t.period
	if !period.Valid() {
		reader, _ := tk.Documents.(dates.FirstPageReader)
		period = p.dates.RecoverPeriod(base, data, reader)
	}
	if doc == nil || len(doc.Pages) == 0 {
		return warned(t, period, ReasonNoText, Extraction{})
	}
	statements, err := tk.Statements.ExtractStatements(doc.Pages)
	if err != nil {
		return failed(t, ReasonExtractionFailed, err.Error())
	}
	ex := Extraction{
		Statements: statements,
		Speakers:   uniqueSpeakers(statements),
	}
	if tk.Bills != nil {
		ex.BillReferences = len(tk.Bills.ExtractBillReferences(doc.Text()))
	}
	if len(statements) == 0 {
		return warned(t, period, ReasonNoStatements, ex)
	}
	return succeeded(t, period, ex)
}

// commitAll writes committable outcomes one at a time. A failed commit is
// recorded and the rest continue.
func (p *Processor) commitAll(ctx context.Context, logger *zap.Logger, outcomes []Outcome, stats *RunStats) error {
	total := 0
	for _, o := range outcomes {
		if o.Committable() {
			total++
		}
	}
	done := 0
	for _, o := range outcomes {
		if !o.Committable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("commit interrupted", zap.Int("completed", done), zap.Int("total", total))
			return fmt.Errorf("commit interrupted after %d of %d documents: %w", done, total, err)
		}
		done++
		req := hansard.CommitRequest{
			FilePath:   o.Path,
			Date:       *o.Date,
			Period:     o.Period,
			Force:      p.cfg.Force,
			Statements: o.Extraction.Statements,
		}
		if p.records != nil {
			if rec, ok, err := p.records.GetByPath(ctx, o.Path); err == nil && ok {
				req.SourceURL = rec.OriginalURL
			}
		}
		res, err := p.documents.CommitDocument(ctx, req)
		switch {
		case err != nil || res.Status == hansard.CommitError:
			if err == nil {
				err = fmt.Errorf("store reported %q", res.Reason)
			}
			stats.CommitFailed++
			stats.AddError("commit %s: %v", o.Path, err)
			p.metrics.ObserveCommit(string(hansard.CommitError), 0)
			logger.Error("commit failed", zap.String("path", o.Path), zap.Error(err))
		case res.Status == hansard.CommitSkipped:
			stats.AlreadyProcessed++
			p.metrics.ObserveCommit(string(res.Status), 0)
			logger.Info("commit skipped", zap.String("path", o.Path), zap.String("reason", res.Reason))
		default:
			stats.Committed++
			stats.DuplicatesSkip += res.DuplicatesSkipped
			p.metrics.ObserveCommit(string(res.Status), res.DuplicatesSkipped)
			if p.linkSessions {
				if err := p.records.LinkSession(ctx, o.Path, res.SessionID); err != nil {
					stats.AddNonFatal("link session %s: %v", o.Path, err)
				}
			}
			logger.Debug("document committed",
				zap.String("path", o.Path),
				zap.Int64("session_id", res.SessionID),
				zap.Int("duplicates_skipped", res.DuplicatesSkipped))
		}
	}
	return nil
}

func (p *Processor) qualityCheck(ctx context.Context, logger *zap.Logger, summary *RunSummary) {
	if p.quality == nil {
		return
	}
	report, err := p.quality.QualityReport(ctx, p.cfg.TopSpeakers)
	if err != nil {
		summary.Stats.AddNonFatal("quality report: %v", err)
		logger.Warn("quality report failed", zap.Error(err))
		return
	}
	summary.Quality = &report
	if err := WriteQualityReport(p.out, report); err != nil {
		logger.Warn("failed to write quality report", zap.Error(err))
	}
}

func (p *Processor) publish(ctx context.Context, logger *zap.Logger, summary *RunSummary) {
	if p.publisher == nil || p.cfg.Topic == "" || p.cfg.DryRun {
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, summary)
	if err != nil {
		logger.Warn("failed to publish run summary", zap.Error(err))
		return
	}
	logger.Info("run summary published", zap.String("message_id", id), zap.String("topic", p.cfg.Topic))
}

func uniqueSpeakers(statements []hansard.Statement) int {
	seen := make(map[string]struct{}, len(statements))
	for _, s := range statements {
		seen[s.Speaker] = struct{}{}
	}
	return len(seen)
}

func speakersOf(o Outcome) int {
	if o.Extraction == nil {
		return 0
	}
	return o.Extraction.Speakers
}

func billsOf(o Outcome) int {
	if o.Extraction == nil {
		return 0
	}
	return o.Extraction.BillReferences
}
