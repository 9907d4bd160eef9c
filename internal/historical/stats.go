package historical

import (
	"fmt"
	"strings"
	"time"
)

// NonFatalPrefix marks error strings that did not affect the run's outcome.
const NonFatalPrefix = "non-fatal: "

const defaultErrorCap = 50

// RunStats accumulates the counters of one run. It is owned by the
// orchestrating goroutine and is not safe for concurrent use.
type RunStats struct {
	Candidates       int `json:"candidates"`
	Downloaded       int `json:"downloaded"`
	DownloadSkipped  int `json:"download_skipped"`
	DownloadFailed   int `json:"download_failed"`
	Found            int `json:"found"`
	SkippedByRange   int `json:"skipped_by_range"`
	Undated          int `json:"undated"`
	Succeeded        int `json:"succeeded"`
	Warnings         int `json:"warnings"`
	Failed           int `json:"failed"`
	AlreadyProcessed int `json:"already_processed"`
	Pending          int `json:"pending"`
	Committed        int `json:"committed"`
	CommitFailed     int `json:"commit_failed"`
	Statements       int `json:"statements"`
	Speakers         int `json:"speakers"`
	BillReferences   int `json:"bill_references"`
	DuplicatesSkip   int `json:"duplicates_skipped"`

	Reasons map[Reason]int  `json:"reasons"`
	Timings []time.Duration `json:"-"`
	Errors  []string        `json:"errors"`
	Dropped int             `json:"errors_dropped"`

	fatal    int
	nonFatal int
	errorCap int
}

func newRunStats(errorCap int) *RunStats {
	if errorCap <= 0 {
		errorCap = defaultErrorCap
	}
	return &RunStats{Reasons: make(map[Reason]int), errorCap: errorCap}
}

// AddError records a failure that counts against the run.
func (s *RunStats) AddError(format string, args ...any) {
	s.fatal++
	s.keep(fmt.Sprintf(format, args...))
}

// AddNonFatal records a failure that was logged and tolerated.
func (s *RunStats) AddNonFatal(format string, args ...any) {
	s.nonFatal++
	s.keep(NonFatalPrefix + fmt.Sprintf(format, args...))
}

func (s *RunStats) keep(msg string) {
	if len(s.Errors) >= s.errorCap {
		s.Dropped++
		return
	}
	s.Errors = append(s.Errors, msg)
}

// ErrorCounts splits every recorded error, including dropped ones, into
// fatal and non-fatal.
func (s *RunStats) ErrorCounts() (fatal, nonFatal int) {
	return s.fatal, s.nonFatal
}

// Processed is the number of eligible documents now in the record store,
// either committed by this run or already there.
func (s *RunStats) Processed() int {
	return s.Committed + s.AlreadyProcessed
}

// Eligible is the number of local documents inside the date range.
func (s *RunStats) Eligible() int {
	return s.Found - s.SkippedByRange
}

// SuccessRate is Processed over Eligible, or 1 when nothing was eligible.
func (s *RunStats) SuccessRate() float64 {
	eligible := s.Eligible()
	if eligible <= 0 {
		return 1
	}
	return float64(s.Processed()) / float64(eligible)
}

// MeanDuration is the average per-document processing time.
func (s *RunStats) MeanDuration() time.Duration {
	if len(s.Timings) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.Timings {
		total += d
	}
	return total / time.Duration(len(s.Timings))
}

func (s *RunStats) observe(o Outcome) {
	if o.Reason != "" {
		s.Reasons[o.Reason]++
	}
	switch o.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusWarning:
		s.Warnings++
	case StatusSkipped:
		if o.Reason == ReasonAlreadyProcessed {
			s.AlreadyProcessed++
		}
	case StatusError:
		s.Failed++
		s.AddError("%s: %s (%s)", o.Path, o.Err, o.Reason)
	}
	if o.Extraction != nil {
		s.Statements += len(o.Extraction.Statements)
		s.Speakers += o.Extraction.Speakers
		s.BillReferences += o.Extraction.BillReferences
	}
	if o.Duration > 0 {
		s.Timings = append(s.Timings, o.Duration)
	}
}

// lowYieldRatio is the share of no-statement documents above which the
// extraction yield is flagged.
const lowYieldRatio = 0.2

// Recommendations derives follow-up actions from the counters.
func (s *RunStats) Recommendations() []string {
	var out []string
	if s.Failed > 0 {
		out = append(out, fmt.Sprintf(
			"%d file(s) failed extraction; fix the cause and retry them with --force", s.Failed))
	}
	if n := s.Reasons[ReasonCannotExtractDate]; n > 0 {
		out = append(out, fmt.Sprintf(
			"%d file(s) have no recoverable date; rename them to hansard_YYYYMMDD_<period>.pdf", n))
	}
	if s.CommitFailed > 0 {
		out = append(out, fmt.Sprintf(
			"%d commit(s) failed; check the database and rerun without --clean", s.CommitFailed))
	}
	if s.DownloadFailed > 0 {
		out = append(out, fmt.Sprintf(
			"%d download(s) failed; check connectivity to the source site", s.DownloadFailed))
	}
	extracted := s.Succeeded + s.Warnings
	if extracted > 0 {
		empty := s.Reasons[ReasonNoStatements] + s.Reasons[ReasonNoText]
		if float64(empty)/float64(extracted) > lowYieldRatio {
			out = append(out, fmt.Sprintf(
				"%d of %d document(s) yielded no statements; review speaker identification", empty, extracted))
		}
	}
	if s.Dropped > 0 {
		out = append(out, fmt.Sprintf("%d further error(s) were not listed; see the logs", s.Dropped))
	}
	return out
}

func (s *RunStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidates=%d downloaded=%d download_skipped=%d download_failed=%d ",
		s.Candidates, s.Downloaded, s.DownloadSkipped, s.DownloadFailed)
	fmt.Fprintf(&b, "found=%d skipped_by_range=%d succeeded=%d warnings=%d failed=%d already_processed=%d ",
		s.Found, s.SkippedByRange, s.Succeeded, s.Warnings, s.Failed, s.AlreadyProcessed)
	fmt.Fprintf(&b, "committed=%d commit_failed=%d statements=%d speakers=%d bills=%d duplicates_skipped=%d",
		s.Committed, s.CommitFailed, s.Statements, s.Speakers, s.BillReferences, s.DuplicatesSkip)
	return b.String()
}
