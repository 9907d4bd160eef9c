// Package fetcher retrieves listing pages and transcript documents over HTTP
// with retries, exponential backoff and a shared politeness delay, and turns
// listing markup into candidate documents.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/metrics"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxDocumentBytes = 100 << 20
	maxPageBytes            = 10 << 20
)

// ErrTooLarge is returned when a response exceeds the configured size cap.
var ErrTooLarge = errors.New("response exceeds size limit")

// Config controls HTTP behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the total number of attempts per URL.
	MaxRetries     int
	BackoffBase    time.Duration
	RateLimitDelay time.Duration
	// MaxDocumentBytes caps document downloads.
	MaxDocumentBytes int
	RespectRobots    bool
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Registry) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

func withPause(p pauseFunc) Option {
	return func(f *Fetcher) { f.pause = p }
}

// Fetcher performs serial, rate-limited GET requests using a Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       *Limiter
	retry         *ExponentialRetryPolicy
	pause         pauseFunc
	metrics       *metrics.Registry
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		retry:     NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffBase),
		pause:     timerPause,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.limiter = NewLimiter(cfg.RateLimitDelay, f.metrics)

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(f.transport)
	f.baseCollector = c
	return f
}

// FetchPage returns the body of a listing page. After the retries are
// exhausted it logs and reports false; callers treat that as "page
// unavailable".
func (f *Fetcher) FetchPage(ctx context.Context, url string) (string, bool) {
	body, err := f.fetchWithRetry(ctx, url, maxPageBytes)
	if err != nil {
		f.logger.Warn("page unavailable", zap.String("url", url), zap.Error(err))
		return "", false
	}
	return string(body), true
}

// FetchDocument downloads a binary document, enforcing MaxDocumentBytes.
func (f *Fetcher) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	return f.fetchWithRetry(ctx, url, f.cfg.MaxDocumentBytes)
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string, maxBytes int) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := f.fetchOnce(ctx, url, maxBytes)
		if err == nil {
			f.metrics.ObserveFetch(url, true, len(res.body))
			return res.body, nil
		}
		lastErr = err
		f.metrics.ObserveFetch(url, false, 0)
		if !f.retry.ShouldRetry(err, attempt) {
			break
		}
		delay := f.retry.Backoff(attempt)
		f.metrics.ObserveRetry()
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		f.pause(ctx, delay)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, maxBytes int) (fetchResult, error) {
	var (
		result   fetchResult
		fetchErr error
	)
	collector := f.buildCollector(ctx, maxBytes, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return fetchResult{}, err
	}
	if len(result.body) > maxBytes {
		return fetchResult{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, maxBytes int, result *fetchResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.MaxBodySize = maxBytes + 1
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = fetchResult{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*fetchErr = fmt.Errorf("http status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
