package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

var columns = []string{
	"original_url", "file_path", "date", "period_of_day", "session_id", "file_size", "downloaded_at",
}

func newMockStore(t *testing.T) (*DownloadStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewDownloadStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewDownloadStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewDownloadStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewDownloadStoreWithPool(mock, "bad-name;drop")
	require.Error(t, err)
}

func TestNewDownloadStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewDownloadStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestUpsertRecord(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	d := hansard.Day(2025, time.December, 4)
	size := int64(2048)
	now := time.Unix(1764900000, 0).UTC()
	rec := hansard.DownloadRecord{
		OriginalURL:  "https://example.org/e.pdf",
		FilePath:     "hansard_20251204_E.pdf",
		Date:         &d,
		Period:       hansard.PeriodEvening,
		FileSize:     &size,
		DownloadedAt: now,
	}

	mock.ExpectExec("INSERT INTO downloaded_pdfs").
		WithArgs(rec.OriginalURL, rec.FilePath, d, "E", nil, int64(2048), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRecordRequiresKey(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	require.Error(t, store.UpsertRecord(context.Background(), hansard.DownloadRecord{FilePath: "a.pdf"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByURL(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	d := hansard.Day(2025, time.October, 15)
	period := "P"
	session := int64(9)
	now := time.Unix(1764900000, 0).UTC()
	mock.ExpectQuery("SELECT original_url, file_path").
		WithArgs("https://example.org/p.pdf").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("https://example.org/p.pdf", "hansard_20251015_P.pdf", &d, &period, &session, nil, now))

	rec, ok, err := store.GetByURL(context.Background(), "https://example.org/p.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hansard_20251015_P.pdf", rec.FilePath)
	require.NotNil(t, rec.Date)
	assert.Equal(t, d, *rec.Date)
	assert.Equal(t, hansard.PeriodMorning, rec.Period)
	require.NotNil(t, rec.SessionID)
	assert.Equal(t, int64(9), *rec.SessionID)
	assert.Nil(t, rec.FileSize)
	assert.Equal(t, now, rec.DownloadedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPathMissing(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT original_url, file_path").
		WithArgs("missing.pdf").
		WillReturnRows(pgxmock.NewRows(columns))

	_, ok, err := store.GetByPath(context.Background(), "missing.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkSessionAndCount(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE downloaded_pdfs SET session_id").
		WithArgs(int64(7), "a.pdf").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	require.NoError(t, store.LinkSession(context.Background(), "a.pdf", 7))
	n, err := store.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaWrapsError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS downloaded_pdfs").
		WillReturnError(errors.New("permission denied"))

	err := store.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}
