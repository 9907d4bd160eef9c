package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hansard-crawler/internal/clock/system"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
	"github.com/JakeFAU/hansard-crawler/internal/storage"
	storemem "github.com/JakeFAU/hansard-crawler/internal/storage/memory"
	recordmem "github.com/JakeFAU/hansard-crawler/internal/store/memory"
)

var fixedNow = time.Date(2025, time.December, 5, 8, 0, 0, 0, time.UTC)

func candidate() hansard.Candidate {
	d := hansard.Day(2025, time.December, 4)
	return hansard.Candidate{
		URL:      "https://example.org/docs/evening.pdf",
		Title:    "4th December 2025 Evening",
		Date:     &d,
		Period:   hansard.PeriodEvening,
		Filename: "hansard_20251204_E.pdf",
	}
}

func setup(t *testing.T, fileExists, recordExists bool) (*Tracker, *recordmem.RecordStore, *storemem.Backend) {
	t.Helper()
	ctx := context.Background()
	records := recordmem.NewRecordStore()
	backend := storemem.New()
	c := candidate()
	if fileExists {
		_, err := backend.Write(ctx, c.Filename, []byte("%PDF-1.4 body"))
		require.NoError(t, err)
	}
	if recordExists {
		require.NoError(t, records.UpsertRecord(ctx, hansard.DownloadRecord{
			OriginalURL:  c.URL,
			FilePath:     c.Filename,
			DownloadedAt: fixedNow.Add(-24 * time.Hour),
		}))
	}
	return New(records, backend, system.NewFixed(fixedNow), Config{}, nil), records, backend
}

func TestCheckStateTable(t *testing.T) {
	tests := []struct {
		name         string
		fileExists   bool
		recordExists bool
		wantSkip     bool
		wantReason   Reason
		wantRows     int
	}{
		{"FileAndRecord", true, true, true, ReasonHasRecord, 1},
		{"OrphanFile", true, false, true, ReasonOrphanFile, 1},
		{"MissingFile", false, true, false, ReasonFileMissing, 1},
		{"New", false, false, false, ReasonNew, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, records, _ := setup(t, tc.fileExists, tc.recordExists)
			got, err := tr.Check(context.Background(), candidate())
			require.NoError(t, err)
			assert.Equal(t, tc.wantSkip, got.ShouldSkip)
			assert.Equal(t, tc.wantReason, got.Reason)
			assert.Equal(t, "hansard_20251204_E.pdf", got.Path)

			n, err := records.CountRecords(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, n)
		})
	}
}

func TestOrphanSelfHealWritesOneRow(t *testing.T) {
	tr, records, _ := setup(t, true, false)
	ctx := context.Background()

	_, err := tr.Check(ctx, candidate())
	require.NoError(t, err)
	rec, ok, err := records.GetByURL(ctx, candidate().URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hansard_20251204_E.pdf", rec.FilePath)
	require.NotNil(t, rec.FileSize)
	assert.Equal(t, int64(len("%PDF-1.4 body")), *rec.FileSize)
	assert.Equal(t, hansard.PeriodEvening, rec.Period)
	assert.Equal(t, fixedNow, rec.DownloadedAt)

	// A second pass now sees a tracked file and writes nothing new.
	got, err := tr.Check(ctx, candidate())
	require.NoError(t, err)
	assert.Equal(t, ReasonHasRecord, got.Reason)
	n, err := records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMissingFileRedownloadUpdatesInPlace(t *testing.T) {
	tr, records, _ := setup(t, false, true)
	ctx := context.Background()

	got, err := tr.Check(ctx, candidate())
	require.NoError(t, err)
	assert.False(t, got.ShouldSkip)
	assert.Equal(t, ReasonFileMissing, got.Reason)

	require.NoError(t, tr.Record(ctx, candidate(), got.Path, 2048))
	n, err := records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rec, _, err := records.GetByURL(ctx, candidate().URL)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), *rec.FileSize)
	assert.Equal(t, fixedNow, rec.DownloadedAt)
}

func TestRecordedPathWins(t *testing.T) {
	ctx := context.Background()
	records := recordmem.NewRecordStore()
	backend := storemem.New()
	_, err := backend.Write(ctx, "hansard_20251204_E_2.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, records.UpsertRecord(ctx, hansard.DownloadRecord{
		OriginalURL: candidate().URL,
		FilePath:    "hansard_20251204_E_2.pdf",
	}))

	got, err := New(records, backend, nil, Config{}, nil).Check(ctx, candidate())
	require.NoError(t, err)
	assert.Equal(t, ReasonHasRecord, got.Reason)
	assert.Equal(t, "hansard_20251204_E_2.pdf", got.Path)
}

func TestUndersizedOrphanIsDiscarded(t *testing.T) {
	ctx := context.Background()
	records := recordmem.NewRecordStore()
	backend := storemem.New()
	_, err := backend.Write(ctx, candidate().Filename, nil)
	require.NoError(t, err)
	tr := New(records, backend, nil, Config{}, nil)

	planned, err := tr.Plan(ctx, candidate())
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidFile, planned.Reason)
	ok, err := backend.Exists(ctx, candidate().Filename)
	require.NoError(t, err)
	assert.True(t, ok, "plan does not delete")

	got, err := tr.Check(ctx, candidate())
	require.NoError(t, err)
	assert.False(t, got.ShouldSkip)
	assert.Equal(t, ReasonInvalidFile, got.Reason)
	ok, err = backend.Exists(ctx, candidate().Filename)
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlanIsReadOnly(t *testing.T) {
	tr, records, _ := setup(t, true, false)
	got, err := tr.Plan(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, ReasonOrphanFile, got.Reason)
	n, err := records.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckBackendError(t *testing.T) {
	backend := &storage.MockBackend{}
	backend.On("Exists", mock.Anything, "hansard_20251204_E.pdf").Return(false, errors.New("bucket unavailable"))
	tr := New(recordmem.NewRecordStore(), backend, nil, Config{}, nil)

	_, err := tr.Check(context.Background(), candidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	backend.AssertExpectations(t)
}

func TestDerivedPathOwnedByAnotherURL(t *testing.T) {
	ctx := context.Background()
	records := recordmem.NewRecordStore()
	backend := storemem.New()
	c := candidate()
	_, err := backend.Write(ctx, c.Filename, []byte("%PDF other sitting"))
	require.NoError(t, err)
	require.NoError(t, records.UpsertRecord(ctx, hansard.DownloadRecord{
		OriginalURL: "https://example.org/docs/other.pdf",
		FilePath:    c.Filename,
	}))
	require.NoError(t, records.UpsertRecord(ctx, hansard.DownloadRecord{
		OriginalURL: "https://example.org/docs/third.pdf",
		FilePath:    "hansard_20251204_E_2.pdf",
	}))

	got, err := New(records, backend, nil, Config{}, nil).Check(ctx, c)
	require.NoError(t, err)
	assert.False(t, got.ShouldSkip)
	assert.Equal(t, ReasonNew, got.Reason)
	assert.Equal(t, "hansard_20251204_E_3.pdf", got.Path)

	n, err := records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the other document's row is untouched")
}
