package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hansard-crawler/internal/metrics"
)

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func noPause(context.Context, time.Duration) {}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var result fetchResult
	var fetchErr error
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	body := []byte("body")
	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: body})
	body[0] = 'B'
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "body", string(result.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.Error(t, fetchErr)
	assert.Contains(t, fetchErr.Error(), "502")

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func TestFetchPageSuccess(t *testing.T) {
	t.Parallel()

	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		_, _ = w.Write([]byte("<html>listing</html>"))
	}))
	t.Cleanup(srv.Close)

	m := metrics.New("")
	f := New(Config{UserAgent: "hansard-test", MaxRetries: 3}, WithMetrics(m), withPause(noPause))
	body, ok := f.FetchPage(context.Background(), srv.URL+"/listing?page=1")
	require.True(t, ok)
	assert.Equal(t, "<html>listing</html>", body)
	assert.Equal(t, "hansard-test", agent.Load())

	// The same URL can be fetched again.
	_, ok = f.FetchPage(context.Background(), srv.URL+"/listing?page=1")
	assert.True(t, ok)
}

func TestFetchPageRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	var delays []time.Duration
	pause := func(_ context.Context, d time.Duration) { delays = append(delays, d) }
	f := New(Config{MaxRetries: 3, BackoffBase: time.Second}, withPause(pause))

	body, ok := f.FetchPage(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{MaxRetries: 2}, withPause(noPause))
	body, ok := f.FetchPage(context.Background(), srv.URL)
	assert.False(t, ok)
	assert.Empty(t, body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchDocumentTooLarge(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("%PDF-1.4 0123456789"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{MaxRetries: 3, MaxDocumentBytes: 8}, withPause(noPause))
	_, err := f.FetchDocument(context.Background(), srv.URL+"/doc.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))
	assert.Equal(t, int32(1), calls.Load(), "oversize responses are not retried")
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Config{}, withPause(noPause))
	_, err := f.FetchDocument(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRateLimitSpacesRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{RateLimitDelay: 50 * time.Millisecond})
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, ok := f.FetchPage(context.Background(), srv.URL)
		require.True(t, ok)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 0)
	assert.Equal(t, 3, p.MaxAttempts())
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, time.Minute, p.Backoff(10))

	boom := errors.New("boom")
	assert.True(t, p.ShouldRetry(boom, 0))
	assert.True(t, p.ShouldRetry(boom, 1))
	assert.False(t, p.ShouldRetry(boom, 2))
	assert.False(t, p.ShouldRetry(nil, 0))
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(ErrTooLarge, 0))
}
