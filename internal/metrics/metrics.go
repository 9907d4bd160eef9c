// Package metrics holds the Prometheus collectors for a pipeline run and
// renders them as flat namespace.metric=value lines for log scrapers.
package metrics

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// DefaultNamespace prefixes every emitted line.
const DefaultNamespace = "hansard"

// Registry owns a private prometheus registry and the collectors registered
// on it. A nil *Registry is valid and records nothing.
type Registry struct {
	namespace string
	reg       *prometheus.Registry

	pagesFetched       *prometheus.CounterVec
	fetchRetries       prometheus.Counter
	bytesFetched       *prometheus.CounterVec
	rateLimitWait      prometheus.Histogram
	downloads          *prometheus.CounterVec
	documentsProcessed *prometheus.CounterVec
	processingSeconds  prometheus.Histogram
	statements         prometheus.Counter
	speakers           prometheus.Counter
	billReferences     prometheus.Counter
	duplicatesSkipped  prometheus.Counter
	commits            *prometheus.CounterVec
	activeWorkers      prometheus.Gauge
	successRate        prometheus.Gauge
	fatalErrors        prometheus.Gauge
	nonFatalErrors     prometheus.Gauge
	durationSeconds    prometheus.Gauge
}

// New registers the run collectors on a fresh registry.
func New(namespace string) *Registry {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		namespace: namespace,
		reg:       reg,
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pages_fetched_total",
			Help: "Listing pages and documents requested, labeled by site and outcome.",
		}, []string{"site", "status"}),
		fetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "HTTP attempts that were retried after a transport error.",
		}),
		bytesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bytes_fetched_total",
			Help: "Response bytes received, labeled by site.",
		}, []string{"site"}),
		rateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rate_limit_wait_seconds",
			Help:    "Time spent waiting on the shared politeness delay.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "downloads_total",
			Help: "Candidate documents by download outcome.",
		}, []string{"outcome"}),
		documentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Extraction outcomes, labeled by status.",
		}, []string{"status"}),
		processingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "document_processing_seconds",
			Help:    "Per-document extraction time.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		statements: factory.NewCounter(prometheus.CounterOpts{
			Name: "statements_extracted_total",
			Help: "Statements extracted across all documents.",
		}),
		speakers: factory.NewCounter(prometheus.CounterOpts{
			Name: "speakers_identified_total",
			Help: "Sum of unique speakers per document.",
		}),
		billReferences: factory.NewCounter(prometheus.CounterOpts{
			Name: "bill_references_total",
			Help: "Bill references extracted across all documents.",
		}),
		duplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "duplicate_statements_skipped_total",
			Help: "Statements dropped at commit because they already existed.",
		}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commits_total",
			Help: "Document commits, labeled by result.",
		}, []string{"status"}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Extraction tasks currently running.",
		}),
		successRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "success_rate",
			Help: "Processed documents over eligible documents for the last run.",
		}),
		fatalErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fatal_errors",
			Help: "Errors recorded in the last run that were not marked non-fatal.",
		}),
		nonFatalErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "non_fatal_errors",
			Help: "Errors recorded in the last run marked non-fatal.",
		}),
		durationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one completed HTTP fetch.
func (r *Registry) ObserveFetch(rawURL string, ok bool, bytes int) {
	if r == nil {
		return
	}
	site := SanitizeSite(rawURL)
	status := "ok"
	if !ok {
		status = "failed"
	}
	r.pagesFetched.WithLabelValues(site, status).Inc()
	if bytes > 0 {
		r.bytesFetched.WithLabelValues(site).Add(float64(bytes))
	}
}

// ObserveRetry counts a retried attempt.
func (r *Registry) ObserveRetry() {
	if r == nil {
		return
	}
	r.fetchRetries.Inc()
}

// ObserveRateLimitWait records time spent in the politeness limiter.
func (r *Registry) ObserveRateLimitWait(d time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitWait.Observe(d.Seconds())
}

// ObserveDownload counts a download outcome (downloaded, skipped, failed).
func (r *Registry) ObserveDownload(outcome string) {
	if r == nil {
		return
	}
	r.downloads.WithLabelValues(outcome).Inc()
}

// ObserveDocument records one extraction outcome.
func (r *Registry) ObserveDocument(status string, statements, speakers, bills int, d time.Duration) {
	if r == nil {
		return
	}
	r.documentsProcessed.WithLabelValues(status).Inc()
	r.processingSeconds.Observe(d.Seconds())
	r.statements.Add(float64(statements))
	r.speakers.Add(float64(speakers))
	r.billReferences.Add(float64(bills))
}

// ObserveCommit records one commit result and its duplicate skips.
func (r *Registry) ObserveCommit(status string, duplicates int) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(status).Inc()
	r.duplicatesSkipped.Add(float64(duplicates))
}

// IncActiveWorkers increments the active workers gauge.
func (r *Registry) IncActiveWorkers() {
	if r == nil {
		return
	}
	r.activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func (r *Registry) DecActiveWorkers() {
	if r == nil {
		return
	}
	r.activeWorkers.Dec()
}

// RunMetrics are the derived, end-of-run values.
type RunMetrics struct {
	SuccessRate    float64
	FatalErrors    int
	NonFatalErrors int
	Duration       time.Duration
}

// RecordRun sets the end-of-run gauges.
func (r *Registry) RecordRun(m RunMetrics) {
	if r == nil {
		return
	}
	r.successRate.Set(m.SuccessRate)
	r.fatalErrors.Set(float64(m.FatalErrors))
	r.nonFatalErrors.Set(float64(m.NonFatalErrors))
	r.durationSeconds.Set(m.Duration.Seconds())
}

// Emit writes every gathered sample as a sorted namespace.metric=value line.
// Label values are appended as extra dot-separated segments; histograms emit
// _count and _sum.
func (r *Registry) Emit(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := r.namespace + "." + fam.GetName() + labelSuffix(m.GetLabel())
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, line(key, m.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				lines = append(lines, line(key, m.GetGauge().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				lines = append(lines,
					line(key+"_count", float64(h.GetSampleCount())),
					line(key+"_sum", h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func labelSuffix(labels []*dto.LabelPair) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteByte('.')
		b.WriteString(strings.ReplaceAll(l.GetValue(), ".", "_"))
	}
	return b.String()
}

func line(key string, v float64) string {
	return key + "=" + strconv.FormatFloat(v, 'f', -1, 64)
}
