package historical

import (
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// Status classifies one processed document.
type Status string

// Outcome statuses.
const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Reason is the machine-readable cause attached to non-success outcomes.
type Reason string

// Outcome reasons.
const (
	ReasonCannotExtractDate Reason = "cannot_extract_date"
	ReasonAlreadyProcessed  Reason = "already_processed"
	ReasonReadFailed        Reason = "read_failed"
	ReasonPDFUnreadable     Reason = "pdf_unreadable"
	ReasonNoText            Reason = "no_text"
	ReasonExtractionFailed  Reason = "extraction_failed"
	ReasonNoStatements      Reason = "no_statements"
	ReasonPanic             Reason = "panic"
	ReasonCanceled          Reason = "canceled"
)

// Extraction is the payload of success and warning outcomes.
type Extraction struct {
	Statements     []hansard.Statement
	Speakers       int
	BillReferences int
}

// Outcome is the result of processing one local file. Extraction is set only
// for StatusSuccess and StatusWarning; Err only for StatusError.
type Outcome struct {
	Path       string
	Date       *time.Time
	Period     hansard.Period
	Status     Status
	Reason     Reason
	Err        string
	Duration   time.Duration
	Extraction *Extraction
}

// Committable reports whether the outcome carries data for the record store.
func (o Outcome) Committable() bool {
	return o.Extraction != nil && o.Date != nil &&
		(o.Status == StatusSuccess || o.Status == StatusWarning)
}

// StatementCount is the number of extracted statements.
func (o Outcome) StatementCount() int {
	if o.Extraction == nil {
		return 0
	}
	return len(o.Extraction.Statements)
}

func failed(t task, reason Reason, msg string) Outcome {
	return Outcome{Path: t.path, Date: t.date, Period: t.period, Status: StatusError, Reason: reason, Err: msg}
}

func skipped(t task, reason Reason) Outcome {
	return Outcome{Path: t.path, Date: t.date, Period: t.period, Status: StatusSkipped, Reason: reason}
}

func warned(t task, period hansard.Period, reason Reason, ex Extraction) Outcome {
	return Outcome{Path: t.path, Date: t.date, Period: period, Status: StatusWarning, Reason: reason, Extraction: &ex}
}

func succeeded(t task, period hansard.Period, ex Extraction) Outcome {
	return Outcome{Path: t.path, Date: t.date, Period: period, Status: StatusSuccess, Extraction: &ex}
}
