// Package filename implements the canonical, collision-free naming scheme for
// downloaded transcripts: hansard_<YYYYMMDD>_<period>[_<n>].pdf.
package filename

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// Prefix is shared by every generated name.
const Prefix = "hansard_"

// Extension is the document extension, lowercase.
const Extension = ".pdf"

var (
	// ErrInvalidPeriod is returned when the period is not A, P or E.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrInvalidDate is returned when the date cannot be rendered as YYYYMMDD.
	ErrInvalidDate = errors.New("invalid date")
)

var (
	namePattern          = regexp.MustCompile(`^hansard_(\d{4})(\d{2})(\d{2})_([APE])(?:_(\d+))?\.pdf$`)
	invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// Taken is the set of names already in use.
type Taken map[string]struct{}

// NewTaken builds a Taken set from names.
func NewTaken(names ...string) Taken {
	t := make(Taken, len(names))
	for _, n := range names {
		t.Add(n)
	}
	return t
}

// Add marks name as used.
func (t Taken) Add(name string) {
	t[name] = struct{}{}
}

// Has reports whether name is used.
func (t Taken) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Generate returns the first unused name for (date, period). The base name is
// tried first, then _2, _3, ... in order.
func Generate(date time.Time, period hansard.Period, taken Taken) (string, error) {
	if !period.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	if date.IsZero() || date.Year() < 1 || date.Year() > 9999 {
		return "", fmt.Errorf("%w: %v", ErrInvalidDate, date)
	}
	stem := fmt.Sprintf("%s%s_%s", Prefix, date.Format("20060102"), period)
	name := stem + Extension
	for n := 2; taken.Has(name); n++ {
		name = fmt.Sprintf("%s_%d%s", stem, n, Extension)
	}
	return name, nil
}

// Parsed is the decomposition of a generated name. Valid is false, and every
// other field zero, for names that do not match the scheme.
type Parsed struct {
	Date   time.Time
	Period hansard.Period
	Suffix int
	Valid  bool
}

// Parse is the inverse of Generate. It never fails; unmatched names yield a
// zero Parsed.
func Parse(name string) Parsed {
	m := namePattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return Parsed{}
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Parsed{}
	}
	date := hansard.Day(year, time.Month(month), day)
	if date.Day() != day {
		return Parsed{}
	}
	suffix := 0
	if m[5] != "" {
		n, err := strconv.Atoi(m[5])
		if err != nil || n < 2 {
			return Parsed{}
		}
		suffix = n
	}
	return Parsed{
		Date:   date,
		Period: hansard.Period(m[4]),
		Suffix: suffix,
		Valid:  true,
	}
}

// Fallback derives a safe name for an undated document from its URL.
func Fallback(rawURL string) string {
	base := "document"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" && b != "" {
			base = b
		}
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.Trim(invalidFilenameChars.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = "document"
	}
	return Prefix + "undated_" + strings.ToLower(base) + Extension
}

// Unique appends _2, _3, ... to name until it is not in taken.
func Unique(name string, taken Taken) string {
	if !taken.Has(name) {
		return name
	}
	stem := strings.TrimSuffix(name, Extension)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, Extension)
		if !taken.Has(candidate) {
			return candidate
		}
	}
}
