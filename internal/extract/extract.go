// Package extract defines the document, statement and bill-reference
// extraction capabilities used by historical processing, with default
// implementations.
package extract

import (
	"context"
	"strings"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// Page is the extracted text of one page, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Document is the page-level text of one transcript.
type Document struct {
	Pages []Page
}

// Text joins all pages with blank lines.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// DocumentExtractor turns raw document bytes into page text. A nil document
// with a nil error means the document had no readable pages.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte) (*Document, error)
}

// StatementExtractor attributes page text to speakers.
type StatementExtractor interface {
	ExtractStatements(pages []Page) ([]hansard.Statement, error)
}

// BillExtractor finds bill references in free text.
type BillExtractor interface {
	ExtractBillReferences(text string) []string
}

// Toolkit bundles one instance of each capability. Implementations are not
// required to be safe for concurrent use, so each task gets its own.
type Toolkit struct {
	Documents  DocumentExtractor
	Statements StatementExtractor
	Bills      BillExtractor
}

// Factory builds a fresh Toolkit.
type Factory func() Toolkit

// DefaultFactory returns the PDF, speaker-line and bill-pattern extractors.
func DefaultFactory() Toolkit {
	return Toolkit{
		Documents:  NewPDFExtractor(),
		Statements: NewSpeakerLineExtractor(),
		Bills:      NewBillPatternExtractor(),
	}
}
