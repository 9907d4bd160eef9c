package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when a document cannot be parsed as a PDF.
var ErrUnreadable = errors.New("document unreadable")

// PDFExtractor reads page text with ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns the text of every page that has any. It returns
// (nil, nil) when the file parses but no page yields text.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()
	reader, err := open(data)
	if err != nil {
		return nil, err
	}
	out := &Document{}
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract canceled: %w", err)
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		out.Pages = append(out.Pages, Page{Number: i, Text: text})
	}
	if len(out.Pages) == 0 {
		return nil, nil
	}
	return out, nil
}

// FirstPageText returns the text of page one.
func (e *PDFExtractor) FirstPageText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()
	reader, err := open(data)
	if err != nil {
		return "", err
	}
	if reader.NumPage() < 1 {
		return "", fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	p := reader.Page(1)
	if p.V.IsNull() {
		return "", fmt.Errorf("%w: first page missing", ErrUnreadable)
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("read first page: %w", err)
	}
	return text, nil
}

func open(data []byte) (*pdf.Reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadable)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return reader, nil
}
