package dates

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

const maxWindow = 5

// DateparseParser searches free text for dates using araddon/dateparse.
// Candidate windows of up to five tokens are tried left to right, longest
// first, so "Tuesday 4 December 2025" beats "4 December".
type DateparseParser struct {
	// Location used for zone-less dates. Defaults to UTC.
	Location *time.Location
}

// FindDate returns the first date found in text. A date that lands in the
// future relative to now is moved back one year.
func (p DateparseParser) FindDate(text string, now time.Time) (time.Time, bool) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	tokens := strings.Fields(text)
	for i := range tokens {
		for w := maxWindow; w >= 1; w-- {
			if i+w > len(tokens) {
				continue
			}
			candidate := cleanWindow(tokens[i : i+w])
			if !plausible(candidate) {
				continue
			}
			d, err := dateparse.ParseIn(candidate, loc)
			if err != nil {
				continue
			}
			if d.Year() < 1900 || d.Year() > now.Year()+1 {
				continue
			}
			if d.After(now) {
				d = d.AddDate(-1, 0, 0)
			}
			return d, true
		}
	}
	return time.Time{}, false
}

func cleanWindow(tokens []string) string {
	joined := strings.Join(tokens, " ")
	return strings.TrimFunc(joined, func(r rune) bool {
		return unicode.IsPunct(r) && r != '/' && r != '-'
	})
}

// plausible rejects bare numbers and short fragments that dateparse would
// otherwise read as timestamps.
func plausible(s string) bool {
	if len(s) < 6 {
		return false
	}
	return strings.ContainsAny(s, "/-.") || strings.IndexFunc(s, unicode.IsLetter) >= 0
}
