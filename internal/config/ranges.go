package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// ErrInvalidDateRange is returned when range arguments conflict or are out of
// order.
var ErrInvalidDateRange = errors.New("invalid date range")

const (
	minYear = 1900
	maxYear = 2100
)

// ResolveRange turns the --year, --start and --end arguments into a
// DateRange. year is exclusive with start and end; zero and empty values
// leave the corresponding bound open.
func ResolveRange(ex *dates.Extractor, year int, start, end string) (hansard.DateRange, error) {
	if ex == nil {
		ex = dates.New(nil)
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if year != 0 {
		if start != "" || end != "" {
			return hansard.DateRange{}, fmt.Errorf("%w: --year cannot be combined with --start or --end", ErrInvalidDateRange)
		}
		if year < minYear || year > maxYear {
			return hansard.DateRange{}, fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidDateRange, year, minYear, maxYear)
		}
		s := hansard.Day(year, time.January, 1)
		e := hansard.Day(year, time.December, 31)
		return hansard.DateRange{Start: &s, End: &e}, nil
	}

	var r hansard.DateRange
	if start != "" {
		d, err := ex.ParseUserDate(start)
		if err != nil {
			return hansard.DateRange{}, fmt.Errorf("--start: %w", err)
		}
		r.Start = &d
	}
	if end != "" {
		d, err := ex.ParseUserDate(end)
		if err != nil {
			return hansard.DateRange{}, fmt.Errorf("--end: %w", err)
		}
		r.End = &d
	}
	if r.Start != nil && r.End != nil && r.Start.After(*r.End) {
		return hansard.DateRange{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange,
			r.Start.Format(hansard.DateLayout), r.End.Format(hansard.DateLayout))
	}
	return r, nil
}

// Lookback returns the range covering the last days days up to now. Zero days
// yields an open range.
func Lookback(now time.Time, days int) hansard.DateRange {
	if days <= 0 {
		return hansard.DateRange{}
	}
	y, m, d := now.UTC().Date()
	end := hansard.Day(y, m, d)
	start := end.AddDate(0, 0, -days)
	return hansard.DateRange{Start: &start, End: &end}
}
