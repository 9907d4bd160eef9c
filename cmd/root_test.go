package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every service at temporary, in-process resources.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HANSARD_STORAGE_BACKEND", "memory")
	t.Setenv("HANSARD_DATABASE_PATH", filepath.Join(dir, "hansard.db"))
	t.Setenv("HANSARD_DATABASE_BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("HANSARD_LOGGING_LEVEL", "error")
	return dir
}

func execute(ctx context.Context, args ...string) (code int, stdout, stderr string) {
	viper.Reset()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	code = run(ctx, root, args)
	return code, out.String(), errOut.String()
}

func TestHistoricalRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"reversed range", []string{"historical", "--start", "2025-03-01", "--end", "2025-01-01"}, "invalid date range"},
		{"year and start", []string{"historical", "--year", "2025", "--start", "2025-01-01"}, "invalid date range"},
		{"unparseable date", []string{"historical", "--start", "someday"}, "YYYY-MM-DD"},
		{"zero workers", []string{"historical", "--workers", "0"}, "processing.workers must be >= 1"},
		{"negative workers", []string{"historical", "--workers", "-2"}, "processing.workers must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			code, _, stderr := execute(context.Background(), tt.args...)
			assert.Equal(t, ExitError, code)
			assert.Contains(t, stderr, tt.want)
			_, err := os.Stat(filepath.Join(dir, "hansard.db"))
			assert.True(t, os.IsNotExist(err), "no database should be created on invalid input")
		})
	}
}

func TestHistoricalLocalOnly(t *testing.T) {
	isolate(t)
	code, stdout, stderr := execute(context.Background(), "historical", "--skip-crawl", "--workers", "2")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "completed")
	assert.Contains(t, stdout, "Quality report")
	assert.Contains(t, stdout, "hansard.success_rate=1")
}

func TestHistoricalDryRunCleanTouchesNothing(t *testing.T) {
	dir := isolate(t)
	code, stdout, stderr := execute(context.Background(), "historical", "--skip-crawl", "--dry-run", "--clean")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "(dry run)")
	_, err := os.Stat(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(err))
}

func TestHistoricalInterrupted(t *testing.T) {
	isolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, _, stderr := execute(ctx, "historical", "--skip-crawl")
	assert.Equal(t, ExitInterrupted, code)
	assert.Contains(t, stderr, "interrupted")
}

func TestCrawlDownloadsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/hansard" && r.URL.Query().Get("page") == "0":
			fmt.Fprint(w, `<html><body>
<a href="/docs/evening.pdf">Hansard Thursday 4th December 2025 - Evening</a>
<a href="/docs/morning.pdf">Hansard Wednesday 15th October 2025 Morning</a>
</body></html>`)
		case r.URL.Path == "/hansard":
			fmt.Fprint(w, `<html><body><p>No more results</p></body></html>`)
		case filepath.Ext(r.URL.Path) == ".pdf":
			fmt.Fprint(w, "%PDF-1.4 transcript")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := isolate(t)
	pdfDir := filepath.Join(dir, "pdfs")
	t.Setenv("HANSARD_STORAGE_BACKEND", "local")
	t.Setenv("HANSARD_STORAGE_BASE_DIR", pdfDir)
	t.Setenv("HANSARD_SOURCE_BASE_URL", srv.URL)
	t.Setenv("HANSARD_SOURCE_LISTING_PATH", "/hansard")
	t.Setenv("HANSARD_SOURCE_RESPECT_ROBOTS", "false")
	t.Setenv("HANSARD_HTTP_RATE_LIMIT_DELAY", "0s")
	t.Setenv("HANSARD_HTTP_BACKOFF_BASE", "0s")
	t.Setenv("HANSARD_HTTP_MAX_RETRIES", "1")

	code, stdout, stderr := execute(context.Background(), "crawl", "--max-pages", "3")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "2 candidates: 2 downloaded, 0 skipped, 0 failed")
	assert.FileExists(t, filepath.Join(pdfDir, "hansard_20251204_E.pdf"))
	assert.FileExists(t, filepath.Join(pdfDir, "hansard_20251015_P.pdf"))

	code, stdout, stderr = execute(context.Background(), "crawl", "--max-pages", "3")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "2 candidates: 0 downloaded, 2 skipped, 0 failed")
}

func TestScheduleRejectsBadCron(t *testing.T) {
	isolate(t)
	code, _, stderr := execute(context.Background(), "schedule", "--cron", "whenever")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "parse schedule")
}
