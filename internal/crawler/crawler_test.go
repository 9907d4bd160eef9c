package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/fetcher"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
	storemem "github.com/JakeFAU/hansard-crawler/internal/storage/memory"
	recordmem "github.com/JakeFAU/hansard-crawler/internal/store/memory"
	"github.com/JakeFAU/hansard-crawler/internal/tracker"
)

const listing = "https://example.org/hansard"

// fakePages serves numbered listing pages; a page past the end has no links.
type fakePages struct {
	pages map[int]string
	down  map[int]bool
	calls []int
}

func (f *fakePages) FetchPage(_ context.Context, raw string) (string, bool) {
	u, _ := url.Parse(raw)
	var n int
	_, _ = fmt.Sscanf(u.Query().Get("page"), "%d", &n)
	f.calls = append(f.calls, n)
	if f.down[n] {
		return "", false
	}
	if html, ok := f.pages[n]; ok {
		return html, true
	}
	return "<html><body>No results</body></html>", true
}

type fakeDocs struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  int
}

func (f *fakeDocs) FetchDocument(_ context.Context, u string) ([]byte, error) {
	f.calls++
	if err := f.errs[u]; err != nil {
		return nil, err
	}
	return f.bodies[u], nil
}

func link(i int, day time.Time) string {
	return fmt.Sprintf(`<a href="/docs/%d.pdf">Hansard %s</a>`, i, day.Format("2006-01-02"))
}

// endlessPages returns a listing where every page has two dated links.
func endlessPages(n int) *fakePages {
	p := &fakePages{pages: map[int]string{}}
	day := hansard.Day(2025, time.December, 1)
	for i := 1; i <= n; i++ {
		p.pages[i] = link(2*i, day.AddDate(0, 0, -2*i)) + link(2*i+1, day.AddDate(0, 0, -2*i-1))
	}
	return p
}

type harness struct {
	crawler *Crawler
	records *recordmem.RecordStore
	backend storage.Backend
	docs    *fakeDocs
}

func newHarness(t *testing.T, cfg Config, pages PageFetcher, backend storage.Backend) harness {
	t.Helper()
	if backend == nil {
		backend = storemem.New()
	}
	records := recordmem.NewRecordStore()
	docs := &fakeDocs{bodies: map[string][]byte{}, errs: map[string]error{}}
	links, err := fetcher.NewLinkExtractor(listing, dates.New(nil))
	require.NoError(t, err)
	cfg.ListingURL = listing
	c, err := New(cfg, Deps{
		Pages:   pages,
		Docs:    docs,
		Links:   links,
		Tracker: tracker.New(records, backend, nil, tracker.Config{}, nil),
		Backend: backend,
	})
	require.NoError(t, err)
	return harness{crawler: c, records: records, backend: backend, docs: docs}
}

func TestPageURL(t *testing.T) {
	h := newHarness(t, Config{}, endlessPages(1), nil)
	assert.Equal(t, "https://example.org/hansard?page=3", h.crawler.PageURL(3))

	h = newHarness(t, Config{PageParam: "p", PageOffset: -1}, endlessPages(1), nil)
	assert.Equal(t, "https://example.org/hansard?p=0", h.crawler.PageURL(1))
}

func TestCrawlNeverExceedsMaxPages(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		pages := endlessPages(50)
		h := newHarness(t, Config{}, pages, nil)
		cands, err := h.crawler.Crawl(context.Background(), n)
		require.NoError(t, err)
		assert.Len(t, pages.calls, n)
		assert.Len(t, cands, 2*n)
	}
}

func TestCrawlStopsOnEmptyPage(t *testing.T) {
	pages := endlessPages(2)
	h := newHarness(t, Config{}, pages, nil)
	cands, err := h.crawler.Crawl(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages.calls)
	assert.Len(t, cands, 4)
}

func TestCrawlStopsOnUnavailablePage(t *testing.T) {
	pages := endlessPages(5)
	pages.down = map[int]bool{2: true}
	h := newHarness(t, Config{}, pages, nil)
	cands, err := h.crawler.Crawl(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages.calls)
	assert.Len(t, cands, 2)
}

func TestCrawlDateRange(t *testing.T) {
	// Page 1 holds 2025-11-29/28, page 2 holds 2025-11-27/26, page 3 holds 2025-11-25/24.
	start := hansard.Day(2025, time.November, 27)
	end := hansard.Day(2025, time.November, 28)
	pages := endlessPages(10)
	pages.pages[2] += `<a href="/docs/undated.pdf">Order Paper</a>`
	h := newHarness(t, Config{Range: hansard.DateRange{Start: &start, End: &end}}, pages, nil)

	cands, err := h.crawler.Crawl(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages.calls, "page 3 is empty after filtering")

	var undated int
	for _, c := range cands {
		if c.Date == nil {
			undated++
			continue
		}
		assert.True(t, (hansard.DateRange{Start: &start, End: &end}).Contains(*c.Date), c.URL)
	}
	assert.Equal(t, 1, undated)
	assert.Len(t, cands, 3)
}

func TestDownloadAll(t *testing.T) {
	ctx := context.Background()
	pages := endlessPages(1)
	h := newHarness(t, Config{}, pages, nil)
	cands, err := h.crawler.Crawl(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	h.docs.bodies[cands[0].URL] = []byte("%PDF-1.7 first")
	h.docs.errs[cands[1].URL] = errors.New("connection reset")

	res, err := h.crawler.DownloadAll(ctx, cands)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Errors, 1)

	data, err := h.backend.Read(ctx, cands[0].Filename)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 first", string(data))
	rec, ok, err := h.records.GetByURL(ctx, cands[0].URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), *rec.FileSize)

	ok, err = h.backend.Exists(ctx, cands[1].Filename)
	require.NoError(t, err)
	assert.False(t, ok)

	// Rerun is idempotent: the first is skipped, the second is retried.
	delete(h.docs.errs, cands[1].URL)
	h.docs.bodies[cands[1].URL] = []byte("%PDF-1.7 second")
	h.docs.calls = 0
	res, err = h.crawler.DownloadAll(ctx, cands)
	require.NoError(t, err)
	assert.Equal(t, Result{Downloaded: 1, Skipped: 1}, res)
	assert.Equal(t, 1, h.docs.calls)
}

func TestDownloadRejectsNonPDF(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{}, endlessPages(1), nil)
	cands, err := h.crawler.Crawl(ctx, 1)
	require.NoError(t, err)
	h.docs.bodies[cands[0].URL] = []byte("<html>maintenance</html>")
	h.docs.bodies[cands[1].URL] = []byte("%PDF-1.7")

	res, err := h.crawler.DownloadAll(ctx, cands)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors[0], ErrNotPDF.Error())
	n, err := h.records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDownloadRemovesPartialFileOnWriteError(t *testing.T) {
	ctx := context.Background()
	backend := &storage.MockBackend{}
	h := newHarness(t, Config{}, endlessPages(1), backend)
	cands, err := h.crawler.Crawl(ctx, 1)
	require.NoError(t, err)
	cand := cands[0]
	h.docs.bodies[cand.URL] = []byte("%PDF-1.7")

	backend.On("Exists", mock.Anything, cand.Filename).Return(false, nil)
	backend.On("Write", mock.Anything, cand.Filename, []byte("%PDF-1.7")).Return(int64(0), errors.New("disk full"))
	backend.On("Delete", mock.Anything, cand.Filename).Return(nil)

	res, err := h.crawler.DownloadAll(ctx, cands[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	backend.AssertExpectations(t)
}

func TestPlanDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{}, endlessPages(1), nil)
	cands, err := h.crawler.Crawl(ctx, 1)
	require.NoError(t, err)
	_, err = h.backend.Write(ctx, cands[0].Filename, []byte("%PDF orphan"))
	require.NoError(t, err)

	res, err := h.crawler.Plan(ctx, cands)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Downloaded)
	assert.Zero(t, h.docs.calls)
	n, err := h.records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDownloadAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, Config{}, endlessPages(1), nil)
	cands, err := h.crawler.Crawl(ctx, 1)
	require.NoError(t, err)
	cancel()
	_, err = h.crawler.DownloadAll(ctx, cands)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, h.docs.calls)
}

// textReader treats everything after the first line as page-one text.
type textReader struct{}

func (textReader) FirstPageText(data []byte) (string, error) {
	_, text, ok := strings.Cut(string(data), "\n")
	if !ok {
		return "", errors.New("no text layer")
	}
	return text, nil
}

func TestDownloadTakesPeriodFromDocument(t *testing.T) {
	day := hansard.Day(2025, time.December, 4)
	untitled := hansard.Candidate{
		URL:      "https://example.org/docs/report.pdf",
		Title:    "Hansard Report 4th December 2025",
		Date:     &day,
		Period:   hansard.PeriodMorning,
		Filename: "hansard_20251204_P.pdf",
	}
	titled := untitled
	titled.URL = "https://example.org/docs/evening.pdf"
	titled.Title = "Hansard Report 4th December 2025 Evening"
	titled.Period = hansard.PeriodEvening
	titled.Filename = "hansard_20251204_E.pdf"

	tests := []struct {
		name       string
		cand       hansard.Candidate
		body       string
		orphan     string
		wantPath   string
		wantPeriod hansard.Period
		want       Result
	}{
		{
			name:       "first page names the sitting",
			cand:       untitled,
			body:       "%PDF-1.4\nTHE AFTERNOON SITTING",
			wantPath:   "hansard_20251204_A.pdf",
			wantPeriod: hansard.PeriodAfternoon,
			want:       Result{Downloaded: 1},
		},
		{
			name:       "first page silent keeps the default",
			cand:       untitled,
			body:       "%PDF-1.4\nORDERS OF THE DAY",
			wantPath:   "hansard_20251204_P.pdf",
			wantPeriod: hansard.PeriodMorning,
			want:       Result{Downloaded: 1},
		},
		{
			name:       "unreadable document keeps the default",
			cand:       untitled,
			body:       "%PDF-1.4",
			wantPath:   "hansard_20251204_P.pdf",
			wantPeriod: hansard.PeriodMorning,
			want:       Result{Downloaded: 1},
		},
		{
			name:       "title keyword wins over the document",
			cand:       titled,
			body:       "%PDF-1.4\nTHE AFTERNOON SITTING",
			wantPath:   "hansard_20251204_E.pdf",
			wantPeriod: hansard.PeriodEvening,
			want:       Result{Downloaded: 1},
		},
		{
			name:       "corrected name already stored",
			cand:       untitled,
			body:       "%PDF-1.4\nTHE AFTERNOON SITTING",
			orphan:     "hansard_20251204_A.pdf",
			wantPath:   "hansard_20251204_A.pdf",
			wantPeriod: hansard.PeriodAfternoon,
			want:       Result{Skipped: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := storemem.New()
			records := recordmem.NewRecordStore()
			links, err := fetcher.NewLinkExtractor(listing, dates.New(nil))
			require.NoError(t, err)
			docs := &fakeDocs{bodies: map[string][]byte{tt.cand.URL: []byte(tt.body)}}
			if tt.orphan != "" {
				_, err := backend.Write(ctx, tt.orphan, []byte("%PDF-1.4 stored earlier"))
				require.NoError(t, err)
			}
			c, err := New(Config{ListingURL: listing}, Deps{
				Pages:     endlessPages(1),
				Docs:      docs,
				Links:     links,
				Tracker:   tracker.New(records, backend, nil, tracker.Config{}, nil),
				Backend:   backend,
				Periods:   dates.New(nil),
				FirstPage: textReader{},
			})
			require.NoError(t, err)

			res, err := c.DownloadAll(ctx, []hansard.Candidate{tt.cand})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)

			rec, ok, err := records.GetByURL(ctx, tt.cand.URL)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantPath, rec.FilePath)
			assert.Equal(t, tt.wantPeriod, rec.Period)

			stored, err := backend.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantPath}, stored)
		})
	}
}
