package historical

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// RunStatus is the overall state of a run.
type RunStatus string

// Run statuses.
const (
	StatusCompleted RunStatus = "completed"
	StatusCanceled  RunStatus = "canceled"
	StatusFailed    RunStatus = "failed"
)

// RunSummary is the user-facing and published result of a run.
type RunSummary struct {
	RunID           string                 `json:"run_id"`
	Status          RunStatus              `json:"status"`
	DryRun          bool                   `json:"dry_run"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	Duration        time.Duration          `json:"duration_ns"`
	SuccessRate     float64                `json:"success_rate"`
	FatalErrors     int                    `json:"fatal_errors"`
	NonFatalErrors  int                    `json:"non_fatal_errors"`
	BackupPath      string                 `json:"backup_path,omitempty"`
	Stats           *RunStats              `json:"stats"`
	Quality         *hansard.QualityReport `json:"quality,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Outcomes        []Outcome              `json:"-"`
}

// WriteSummary renders the run summary as plain text.
func WriteSummary(w io.Writer, s *RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s", s.RunID, s.Status)
	if s.DryRun {
		b.WriteString(" (dry run)")
	}
	fmt.Fprintf(&b, " in %s\n", s.Duration.Round(time.Millisecond))
	if s.BackupPath != "" {
		fmt.Fprintf(&b, "  backup:            %s\n", s.BackupPath)
	}
	st := s.Stats
	fmt.Fprintf(&b, "  crawl:             %d candidates, %d downloaded, %d skipped, %d failed\n",
		st.Candidates, st.Downloaded, st.DownloadSkipped, st.DownloadFailed)
	fmt.Fprintf(&b, "  documents:         %d found, %d outside range, %d undated\n",
		st.Found, st.SkippedByRange, st.Undated)
	if s.DryRun {
		fmt.Fprintf(&b, "  would process:     %d (%d already processed)\n", st.Pending, st.AlreadyProcessed)
	} else {
		fmt.Fprintf(&b, "  outcomes:          %d success, %d warning, %d error, %d already processed\n",
			st.Succeeded, st.Warnings, st.Failed, st.AlreadyProcessed)
		fmt.Fprintf(&b, "  commits:           %d committed, %d failed, %d duplicate statements skipped\n",
			st.Committed, st.CommitFailed, st.DuplicatesSkip)
		fmt.Fprintf(&b, "  extracted:         %d statements, %d speakers, %d bill references\n",
			st.Statements, st.Speakers, st.BillReferences)
		if mean := st.MeanDuration(); mean > 0 {
			fmt.Fprintf(&b, "  mean per document: %s\n", mean.Round(time.Millisecond))
		}
	}
	fmt.Fprintf(&b, "  success rate:      %.1f%%\n", s.SuccessRate*100)
	if len(st.Reasons) > 0 {
		reasons := make([]string, 0, len(st.Reasons))
		for r, n := range st.Reasons {
			reasons = append(reasons, fmt.Sprintf("%s=%d", r, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, "  reasons:           %s\n", strings.Join(reasons, " "))
	}
	if len(st.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d fatal, %d non-fatal):\n", s.FatalErrors, s.NonFatalErrors)
		for _, e := range st.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		if st.Dropped > 0 {
			fmt.Fprintf(&b, "  ... %d more\n", st.Dropped)
		}
	}
	if len(s.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, r := range s.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err //nolint:wrapcheck
}

// WriteQualityReport renders the quality report as plain text.
func WriteQualityReport(w io.Writer, r hansard.QualityReport) error {
	var b strings.Builder
	b.WriteString("Quality report\n")
	fmt.Fprintf(&b, "  sessions:            %d\n", r.Sessions)
	fmt.Fprintf(&b, "  statements:          %d\n", r.Statements)
	fmt.Fprintf(&b, "  speakers:            %d\n", r.Speakers)
	fmt.Fprintf(&b, "  empty sessions:      %d\n", r.EmptySessions)
	fmt.Fprintf(&b, "  unlinked downloads:  %d\n", r.UnlinkedDownloads)
	fmt.Fprintf(&b, "  duplicate groups:    %d\n", r.DuplicateGroups)
	if len(r.TopSpeakers) > 0 {
		b.WriteString("  top speakers:\n")
		for i, sc := range r.TopSpeakers {
			fmt.Fprintf(&b, "    %2d. %s (%d)\n", i+1, sc.Speaker, sc.Statements)
		}
	}
	if len(r.Duplicates) > 0 {
		b.WriteString("  duplicates:\n")
		for _, d := range r.Duplicates {
			fmt.Fprintf(&b, "    %s in session %d x%d\n", d.Speaker, d.SessionID, d.Count)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err //nolint:wrapcheck
}
