// Package memory implements an in-memory tracking store for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// RecordStore keeps tracking rows in a map keyed by original URL.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]hansard.DownloadRecord
}

var _ hansard.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]hansard.DownloadRecord)}
}

// GetByURL returns the row for url.
func (s *RecordStore) GetByURL(_ context.Context, url string) (hansard.DownloadRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	return rec, ok, nil
}

// GetByPath returns the row whose file path is path.
func (s *RecordStore) GetByPath(_ context.Context, path string) (hansard.DownloadRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.FilePath == path {
			return rec, true, nil
		}
	}
	return hansard.DownloadRecord{}, false, nil
}

// UpsertRecord replaces the row for record.OriginalURL, keeping an existing
// session link when the new row has none.
func (s *RecordStore) UpsertRecord(_ context.Context, record hansard.DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[record.OriginalURL]; ok && record.SessionID == nil {
		record.SessionID = prev.SessionID
	}
	s.records[record.OriginalURL] = record
	return nil
}

// LinkSession sets the session id on the row stored at path.
func (s *RecordStore) LinkSession(_ context.Context, path string, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, rec := range s.records {
		if rec.FilePath == path {
			id := sessionID
			rec.SessionID = &id
			s.records[url] = rec
		}
	}
	return nil
}

// CountRecords returns the number of rows.
func (s *RecordStore) CountRecords(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
