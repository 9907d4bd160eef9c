// Package hansard defines the core types and interfaces shared by the crawl
// and ingest subsystems.
package hansard

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies which of the three daily sittings a document belongs to.
type Period string

// Sitting periods. The letter doubles as the filename code.
const (
	PeriodAfternoon Period = "A"
	PeriodMorning   Period = "P"
	PeriodEvening   Period = "E"
)

// DefaultPeriod is assumed when nothing in a title or document names a sitting.
const DefaultPeriod = PeriodMorning

// ParsePeriod validates a one-letter period code.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PeriodAfternoon, PeriodMorning, PeriodEvening:
		return p, nil
	default:
		return "", fmt.Errorf("invalid period %q: must be one of A, P, E", raw)
	}
}

// Valid reports whether p is one of the known sitting codes.
func (p Period) Valid() bool {
	return p == PeriodAfternoon || p == PeriodMorning || p == PeriodEvening
}

// DateLayout is the calendar-date layout used in records and reports.
const DateLayout = "2006-01-02"

// Candidate is a discovered, not yet downloaded document.
type Candidate struct {
	URL      string
	Title    string
	Date     *time.Time
	Period   Period
	Filename string
}

// DownloadRecord is the persisted tracking row, keyed by OriginalURL.
type DownloadRecord struct {
	OriginalURL  string
	FilePath     string
	Date         *time.Time
	Period       Period
	SessionID    *int64
	FileSize     *int64
	DownloadedAt time.Time
}

// Statement is one attributed contribution extracted from a transcript.
type Statement struct {
	Speaker        string
	Text           string
	Page           int
	BillReferences []string
}

// CommitStatus is the outcome of writing one document to the record store.
type CommitStatus string

// Commit statuses.
const (
	CommitSuccess CommitStatus = "success"
	CommitSkipped CommitStatus = "skipped"
	CommitError   CommitStatus = "error"
)

// CommitRequest carries one extracted document to the record store.
type CommitRequest struct {
	FilePath   string
	SourceURL  string
	Date       time.Time
	Period     Period
	Force      bool
	Statements []Statement
}

// CommitResult reports what the record store did with a CommitRequest.
type CommitResult struct {
	Status            CommitStatus
	Reason            string
	SessionID         int64
	DuplicatesSkipped int
}

// SpeakerCount is one row of the top-contributors report.
type SpeakerCount struct {
	Speaker    string
	Statements int
}

// DuplicateGroup is a speaker+session+text combination stored more than once.
type DuplicateGroup struct {
	Speaker   string
	SessionID int64
	Count     int
}

// QualityReport summarises the record store after a run.
type QualityReport struct {
	Sessions          int
	Statements        int
	Speakers          int
	TopSpeakers       []SpeakerCount
	DuplicateGroups   int
	Duplicates        []DuplicateGroup
	EmptySessions     int
	UnlinkedDownloads int
	GeneratedAt       time.Time
}

// DateRange bounds a crawl or processing run. A nil bound is open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether d falls inside the range, inclusive.
func (r DateRange) Contains(d time.Time) bool {
	day := truncateDay(d)
	if r.Start != nil && day.Before(truncateDay(*r.Start)) {
		return false
	}
	if r.End != nil && day.After(truncateDay(*r.End)) {
		return false
	}
	return true
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day builds a UTC calendar date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
