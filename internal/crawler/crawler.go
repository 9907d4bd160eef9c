// Package crawler paginates the transcript listing, collects candidate
// documents, and downloads the ones the tracker says are needed.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/fetcher"
	"github.com/JakeFAU/hansard-crawler/internal/filename"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/metrics"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
	"github.com/JakeFAU/hansard-crawler/internal/tracker"
)

const (
	defaultPageParam = "page"
	// defaultMaxPages bounds a crawl whose page limit is unset; the crawl
	// normally ends earlier at the first empty page.
	defaultMaxPages = 1000
)

var (
	// ErrNotPDF is returned for downloads that lack the %PDF header.
	ErrNotPDF = errors.New("response is not a PDF document")

	pdfMagic = []byte("%PDF")
)

// PageFetcher returns listing markup, or false when the page is unavailable.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, bool)
}

// DocumentFetcher downloads a document body.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// Config holds the listing location and filters.
type Config struct {
	// ListingURL is the first listing page.
	ListingURL string
	// PageParam is the query parameter carrying the page number.
	PageParam string
	// PageOffset is added to the 1-based page number before it is sent, for
	// sites whose first page is 0.
	PageOffset int
	MaxPages   int
	Range      hansard.DateRange
}

// Result counts download outcomes. In a dry-run plan Downloaded counts the
// documents that would be fetched.
type Result struct {
	Downloaded int
	Skipped    int
	Failed     int
	Errors     []string
}

// Crawler drives the listing crawl and the download step.
type Crawler struct {
	cfg     Config
	pages   PageFetcher
	docs    DocumentFetcher
	links   *fetcher.LinkExtractor
	tracker *tracker.Tracker
	backend storage.Backend
	periods *dates.Extractor
	reader  dates.FirstPageReader
	metrics *metrics.Registry
	logger  *zap.Logger
}

// Deps are the collaborators a Crawler needs.
type Deps struct {
	Pages   PageFetcher
	Docs    DocumentFetcher
	Links   *fetcher.LinkExtractor
	Tracker *tracker.Tracker
	Backend storage.Backend
	// Periods and FirstPage, when both set, let a download whose title names
	// no sitting take its period from the document's first page.
	Periods   *dates.Extractor
	FirstPage dates.FirstPageReader
	Metrics   *metrics.Registry
	Logger    *zap.Logger
}

// New validates cfg and builds a Crawler.
func New(cfg Config, deps Deps) (*Crawler, error) {
	if strings.TrimSpace(cfg.ListingURL) == "" {
		return nil, fmt.Errorf("listing url is required")
	}
	if _, err := url.Parse(cfg.ListingURL); err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if deps.Pages == nil || deps.Docs == nil || deps.Links == nil || deps.Tracker == nil || deps.Backend == nil {
		return nil, fmt.Errorf("crawler dependencies are incomplete")
	}
	if cfg.PageParam == "" {
		cfg.PageParam = defaultPageParam
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:     cfg,
		pages:   deps.Pages,
		docs:    deps.Docs,
		links:   deps.Links,
		tracker: deps.Tracker,
		backend: deps.Backend,
		periods: deps.Periods,
		reader:  deps.FirstPage,
		metrics: deps.Metrics,
		logger:  logger.Named("crawler"),
	}, nil
}

// PageURL returns the listing URL for 1-based page n.
func (c *Crawler) PageURL(n int) string {
	u, err := url.Parse(c.cfg.ListingURL)
	if err != nil {
		return c.cfg.ListingURL
	}
	q := u.Query()
	q.Set(c.cfg.PageParam, strconv.Itoa(n+c.cfg.PageOffset))
	u.RawQuery = q.Encode()
	return u.String()
}

// Crawl fetches up to maxPages listing pages and returns their candidates.
// It stops at the first page that is unavailable, has no document links, or
// has none left after the date-range filter. Undated candidates are kept.
func (c *Crawler) Crawl(ctx context.Context, maxPages int) ([]hansard.Candidate, error) {
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}
	taken := filename.NewTaken()
	seen := make(map[string]struct{})
	var out []hansard.Candidate

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("crawl canceled at page %d: %w", page, err)
		}
		pageURL := c.PageURL(page)
		html, ok := c.pages.FetchPage(ctx, pageURL)
		if !ok {
			c.logger.Warn("stopping crawl: page unavailable", zap.Int("page", page))
			break
		}
		found, err := c.links.Extract(html, taken)
		if err != nil {
			c.logger.Warn("partial link extraction", zap.Int("page", page), zap.Error(err))
		}
		if len(found) == 0 {
			c.logger.Info("stopping crawl: no document links", zap.Int("page", page))
			break
		}

		kept := 0
		for _, cand := range found {
			if _, dup := seen[cand.URL]; dup {
				continue
			}
			if !fetcher.InRange(cand, c.cfg.Range) {
				continue
			}
			seen[cand.URL] = struct{}{}
			if cand.Date == nil {
				c.logger.Warn("including undated document", zap.String("url", cand.URL))
			}
			out = append(out, cand)
			kept++
		}
		c.logger.Debug("listing page processed",
			zap.Int("page", page),
			zap.Int("links", len(found)),
			zap.Int("kept", kept))
		if kept == 0 {
			c.logger.Info("stopping crawl: page empty after filtering", zap.Int("page", page))
			break
		}
	}
	return out, nil
}

// DownloadAll fetches the candidates one at a time. A failed document is
// counted and the batch continues.
func (c *Crawler) DownloadAll(ctx context.Context, cands []hansard.Candidate) (Result, error) {
	var res Result
	for i, cand := range cands {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("download interrupted", zap.Int("completed", i), zap.Int("total", len(cands)))
			return res, fmt.Errorf("download canceled: %w", err)
		}
		outcome, err := c.downloadOne(ctx, cand)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("download %s: %v", cand.URL, err))
			c.logger.Error("download failed", zap.String("url", cand.URL), zap.Error(err))
			c.metrics.ObserveDownload("failed")
		case outcome.ShouldSkip:
			res.Skipped++
			c.logger.Debug("download skipped",
				zap.String("url", cand.URL),
				zap.String("reason", string(outcome.Reason)))
			c.metrics.ObserveDownload("skipped")
		default:
			res.Downloaded++
			c.logger.Info("downloaded",
				zap.String("url", cand.URL),
				zap.String("path", outcome.Path),
				zap.String("reason", string(outcome.Reason)))
			c.metrics.ObserveDownload("downloaded")
		}
	}
	return res, nil
}

func (c *Crawler) downloadOne(ctx context.Context, cand hansard.Candidate) (tracker.Decision, error) {
	dec, err := c.tracker.Check(ctx, cand)
	if err != nil {
		return dec, err //nolint:wrapcheck
	}
	if dec.ShouldSkip {
		return dec, nil
	}
	data, err := c.docs.FetchDocument(ctx, cand.URL)
	if err != nil {
		return dec, err //nolint:wrapcheck
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return dec, ErrNotPDF
	}
	if p, ok := c.documentPeriod(cand, dec, data); ok {
		c.logger.Debug("period taken from document",
			zap.String("url", cand.URL),
			zap.String("title_period", string(cand.Period)),
			zap.String("period", string(p)))
		cand, dec, err = c.rename(ctx, cand, p)
		if err != nil || dec.ShouldSkip {
			return dec, err
		}
	}
	n, err := c.backend.Write(ctx, dec.Path, data)
	if err != nil {
		c.discard(ctx, dec.Path)
		return dec, fmt.Errorf("store %s: %w", dec.Path, err)
	}
	if err := c.tracker.Record(ctx, cand, dec.Path, n); err != nil {
		c.discard(ctx, dec.Path)
		return dec, err //nolint:wrapcheck
	}
	return dec, nil
}

// documentPeriod reads the sitting from the document when the title names
// none. It reports false when the derived name is already right or the
// download targets a tracked path.
func (c *Crawler) documentPeriod(cand hansard.Candidate, dec tracker.Decision, data []byte) (hansard.Period, bool) {
	if c.periods == nil || c.reader == nil || cand.Date == nil {
		return "", false
	}
	if dec.Reason != tracker.ReasonNew && dec.Reason != tracker.ReasonInvalidFile {
		return "", false
	}
	if _, named := dates.MatchPeriod(cand.Title); named {
		return "", false
	}
	p := c.periods.RecoverPeriod(cand.Title, data, c.reader)
	return p, p != cand.Period
}

// rename re-derives the filename for period p and asks the tracker again,
// since the corrected name may already be stored or owned.
func (c *Crawler) rename(ctx context.Context, cand hansard.Candidate, p hansard.Period) (hansard.Candidate, tracker.Decision, error) {
	name, err := filename.Generate(*cand.Date, p, nil)
	if err != nil {
		return cand, tracker.Decision{}, fmt.Errorf("rename %s: %w", cand.URL, err)
	}
	cand.Period = p
	cand.Filename = name
	dec, err := c.tracker.Check(ctx, cand)
	if err != nil {
		return cand, dec, err //nolint:wrapcheck
	}
	return cand, dec, nil
}

func (c *Crawler) discard(ctx context.Context, path string) {
	if err := c.backend.Delete(context.WithoutCancel(ctx), path); err != nil {
		c.logger.Warn("failed to remove partial download", zap.String("path", path), zap.Error(err))
	}
}

// Plan classifies the candidates without fetching or writing anything.
func (c *Crawler) Plan(ctx context.Context, cands []hansard.Candidate) (Result, error) {
	var res Result
	for _, cand := range cands {
		dec, err := c.tracker.Plan(ctx, cand)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("plan %s: %v", cand.URL, err))
		case dec.ShouldSkip:
			res.Skipped++
		default:
			res.Downloaded++
		}
	}
	return res, nil
}
