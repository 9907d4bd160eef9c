package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.ObserveFetch("https://example.com", true, 10)
	r.ObserveRetry()
	r.ObserveDownload("downloaded")
	r.ObserveDocument("success", 1, 1, 0, time.Second)
	r.ObserveCommit("success", 2)
	r.IncActiveWorkers()
	r.DecActiveWorkers()
	r.RecordRun(RunMetrics{SuccessRate: 1})
	require.NoError(t, r.Emit(&bytes.Buffer{}))
}

func TestCollectors(t *testing.T) {
	r := New("")
	r.ObserveFetch("https://Parliament.example/hansard", true, 512)
	r.ObserveFetch("https://parliament.example/hansard?page=2", false, 0)
	r.ObserveDocument("success", 12, 4, 2, 250*time.Millisecond)
	r.ObserveDocument("error", 0, 0, 0, 0)
	r.ObserveCommit("success", 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.pagesFetched.WithLabelValues("parliament.example", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.pagesFetched.WithLabelValues("parliament.example", "failed")))
	assert.Equal(t, float64(512), testutil.ToFloat64(r.bytesFetched.WithLabelValues("parliament.example")))
	assert.Equal(t, float64(12), testutil.ToFloat64(r.statements))
	assert.Equal(t, float64(3), testutil.ToFloat64(r.duplicatesSkipped))
}

func TestEmit(t *testing.T) {
	r := New("hansard")
	r.ObserveDownload("downloaded")
	r.ObserveDownload("downloaded")
	r.ObserveDownload("failed")
	r.ObserveDocument("success", 5, 2, 1, 2*time.Second)
	r.RecordRun(RunMetrics{SuccessRate: 0.75, FatalErrors: 1, NonFatalErrors: 2, Duration: 90 * time.Second})

	var buf bytes.Buffer
	require.NoError(t, r.Emit(&buf))
	out := buf.String()

	for _, want := range []string{
		"hansard.downloads_total.downloaded=2\n",
		"hansard.downloads_total.failed=1\n",
		"hansard.documents_processed_total.success=1\n",
		"hansard.document_processing_seconds_count=1\n",
		"hansard.document_processing_seconds_sum=2\n",
		"hansard.success_rate=0.75\n",
		"hansard.fatal_errors=1\n",
		"hansard.non_fatal_errors=2\n",
		"hansard.duration_seconds=90\n",
	} {
		assert.Contains(t, out, want)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := 1; i < len(lines); i++ {
		assert.LessOrEqual(t, lines[i-1], lines[i], "lines are sorted")
	}
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "hansard."), l)
		assert.Equal(t, 1, strings.Count(l, "="), l)
	}
}
