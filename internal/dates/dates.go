// Package dates recovers calendar dates and sitting periods from titles,
// filenames and first-page document text.
package dates

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// NaturalLanguageParser finds the first date mentioned in free text.
// Ambiguous dates should resolve to the past relative to now.
type NaturalLanguageParser interface {
	FindDate(text string, now time.Time) (time.Time, bool)
}

// NoopParser is used when no natural-language parser is configured.
type NoopParser struct{}

// FindDate never matches.
func (NoopParser) FindDate(string, time.Time) (time.Time, bool) {
	return time.Time{}, false
}

// FirstPageReader returns the extracted text of a document's first page.
type FirstPageReader interface {
	FirstPageText(data []byte) (string, error)
}

var (
	compactPattern = regexp.MustCompile(`(?:^|[^0-9])(\d{4})(\d{2})(\d{2})(?:[^0-9]|$)`)
	isoPattern     = regexp.MustCompile(`(?:^|[^0-9])(\d{4})-(\d{2})-(\d{2})(?:[^0-9]|$)`)
	ordinalPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\s+(?:of\s+)?([a-z]+),?\s+(\d{4})\b`)
)

var errPanic = errors.New("first page reader panicked")

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

var periodKeywords = []struct {
	period   hansard.Period
	keywords []string
}{
	{hansard.PeriodAfternoon, []string{"afternoon"}},
	{hansard.PeriodMorning, []string{"morning", "plenary"}},
	{hansard.PeriodEvening, []string{"evening"}},
}

// Extractor applies the date and period heuristics.
type Extractor struct {
	nl  NaturalLanguageParser
	now func() time.Time
}

// New builds an Extractor. A nil parser disables the free-text strategy.
func New(nl NaturalLanguageParser) *Extractor {
	if nl == nil {
		nl = NoopParser{}
	}
	return &Extractor{nl: nl, now: time.Now}
}

// RecoverDate tries, in order: compact YYYYMMDD, ISO YYYY-MM-DD, ordinal
// long form ("4th December 2025"), then the natural-language parser. The
// first strategy that matches wins.
func (e *Extractor) RecoverDate(text string) (time.Time, bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false
	}
	for _, m := range compactPattern.FindAllStringSubmatch(text, -1) {
		if d, ok := buildDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	for _, m := range isoPattern.FindAllStringSubmatch(text, -1) {
		if d, ok := buildDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	for _, m := range ordinalPattern.FindAllStringSubmatch(text, -1) {
		month, ok := months[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		if d, ok := buildDate(m[3], strconv.Itoa(int(month)), m[1]); ok {
			return d, true
		}
	}
	if d, ok := e.nl.FindDate(text, e.now()); ok {
		y, m, day := d.Date()
		return hansard.Day(y, m, day), true
	}
	return time.Time{}, false
}

// RecoverPeriod checks the title for a sitting keyword, then the first page
// of the document, then falls back to the default period. Extraction
// failures are treated as no match.
func (e *Extractor) RecoverPeriod(title string, data []byte, reader FirstPageReader) hansard.Period {
	if p, ok := MatchPeriod(title); ok {
		return p
	}
	if len(data) == 0 || reader == nil {
		return hansard.DefaultPeriod
	}
	text, err := firstPage(reader, data)
	if err != nil {
		return hansard.DefaultPeriod
	}
	if p, ok := MatchPeriod(text); ok {
		return p
	}
	return hansard.DefaultPeriod
}

// MatchPeriod reports the sitting named in text, if any.
func MatchPeriod(text string) (hansard.Period, bool) {
	lower := strings.ToLower(text)
	for _, entry := range periodKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.period, true
			}
		}
	}
	return "", false
}

func firstPage(reader FirstPageReader, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errPanic
		}
	}()
	return reader.FirstPageText(data)
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	out := hansard.Day(y, time.Month(m), d)
	if out.Day() != d || out.Month() != time.Month(m) {
		return time.Time{}, false
	}
	return out, true
}
