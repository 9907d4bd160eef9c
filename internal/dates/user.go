package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// SupportedFormats is shown to users when a date argument cannot be parsed.
const SupportedFormats = `YYYY-MM-DD, YYYYMMDD, "4th December 2025", or free text such as "December 4, 2025"`

// ErrUnparseableDate is returned by ParseUserDate.
var ErrUnparseableDate = errors.New("unparseable date")

// ParseUserDate parses a command-line date argument. It accepts the same forms
// as RecoverDate but requires the whole argument to be a date.
func (e *Extractor) ParseUserDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value (supported formats: %s)", ErrUnparseableDate, SupportedFormats)
	}
	if d, err := time.Parse(hansard.DateLayout, raw); err == nil {
		return d, nil
	}
	if d, ok := e.RecoverDate(raw); ok {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q (supported formats: %s)", ErrUnparseableDate, raw, SupportedFormats)
}
