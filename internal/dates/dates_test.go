package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

type stubParser struct {
	date  time.Time
	ok    bool
	calls int
}

func (s *stubParser) FindDate(string, time.Time) (time.Time, bool) {
	s.calls++
	return s.date, s.ok
}

type stubReader struct {
	text  string
	err   error
	panic bool
	calls int
}

func (s *stubReader) FirstPageText([]byte) (string, error) {
	s.calls++
	if s.panic {
		panic("corrupt xref table")
	}
	return s.text, s.err
}

func TestRecoverDate(t *testing.T) {
	e := New(nil)
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"Compact", "hansard_20251204_E.pdf", hansard.Day(2025, time.December, 4)},
		{"CompactWithSuffix", "files/hansard_20251015_P_2.pdf", hansard.Day(2025, time.October, 15)},
		{"CompactInURL", "https://example.org/docs/20240301.pdf", hansard.Day(2024, time.March, 1)},
		{"ISO", "Sitting of 2025-10-15 (Morning)", hansard.Day(2025, time.October, 15)},
		{"Ordinal", "Thursday 4th December 2025 - Evening", hansard.Day(2025, time.December, 4)},
		{"OrdinalOf", "the 21st of March, 2023", hansard.Day(2023, time.March, 21)},
		{"OrdinalCase", "2ND FEBRUARY 2022", hansard.Day(2022, time.February, 2)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := e.RecoverDate(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRecoverDateRejects(t *testing.T) {
	e := New(nil)
	for _, text := range []string{
		"",
		"   ",
		"Order Paper",
		"hansard_20251304_P.pdf",
		"2025-02-30",
		"32nd December 2025",
		"4th Decembre 2025",
		"ref 1234567890123",
	} {
		_, ok := e.RecoverDate(text)
		assert.False(t, ok, text)
	}
}

func TestRecoverDateStrategyOrder(t *testing.T) {
	nl := &stubParser{date: time.Date(2020, time.May, 5, 15, 4, 0, 0, time.UTC), ok: true}
	e := New(nl)

	got, ok := e.RecoverDate("2025-10-15 and 20240101")
	require.True(t, ok)
	assert.Equal(t, hansard.Day(2024, time.January, 1), got, "compact pattern wins over ISO")
	assert.Zero(t, nl.calls)

	got, ok = e.RecoverDate("Fifth of May")
	require.True(t, ok)
	assert.Equal(t, hansard.Day(2020, time.May, 5), got)
	assert.Equal(t, 1, nl.calls)
}

func TestDateparseParser(t *testing.T) {
	now := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	p := DateparseParser{}

	got, ok := p.FindDate("Sitting of December 4, 2025", now)
	require.True(t, ok)
	assert.Equal(t, 2025, got.Year())
	assert.Equal(t, time.December, got.Month())
	assert.Equal(t, 4, got.Day())

	_, ok = p.FindDate("no dates in here", now)
	assert.False(t, ok)

	_, ok = p.FindDate("", now)
	assert.False(t, ok)
}

func TestDateparseParserBiasesToPast(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	got, ok := DateparseParser{}.FindDate("December 4, 2025", now)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())
}

func TestRecoverPeriod(t *testing.T) {
	e := New(nil)
	pdf := []byte("%PDF-1.4")

	t.Run("TitleWins", func(t *testing.T) {
		r := &stubReader{text: "EVENING SITTING"}
		assert.Equal(t, hansard.PeriodAfternoon, e.RecoverPeriod("Hansard - Afternoon", pdf, r))
		assert.Zero(t, r.calls)
	})
	t.Run("Plenary", func(t *testing.T) {
		assert.Equal(t, hansard.PeriodMorning, e.RecoverPeriod("PLENARY session", nil, nil))
	})
	t.Run("FirstPage", func(t *testing.T) {
		r := &stubReader{text: "The House met in the Evening at 7.00 p.m."}
		assert.Equal(t, hansard.PeriodEvening, e.RecoverPeriod("Hansard 4th December", pdf, r))
		assert.Equal(t, 1, r.calls)
	})
	t.Run("DefaultWhenNothingMatches", func(t *testing.T) {
		r := &stubReader{text: "Prayers"}
		assert.Equal(t, hansard.PeriodMorning, e.RecoverPeriod("Hansard", pdf, r))
	})
	t.Run("ReaderError", func(t *testing.T) {
		r := &stubReader{err: errors.New("not a pdf")}
		assert.Equal(t, hansard.PeriodMorning, e.RecoverPeriod("Hansard", pdf, r))
	})
	t.Run("ReaderPanic", func(t *testing.T) {
		r := &stubReader{panic: true}
		assert.Equal(t, hansard.PeriodMorning, e.RecoverPeriod("Hansard", pdf, r))
	})
}

func TestParseUserDate(t *testing.T) {
	e := New(DateparseParser{})

	got, err := e.ParseUserDate("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, hansard.Day(2025, time.January, 31), got)

	got, err = e.ParseUserDate("4th December 2025")
	require.NoError(t, err)
	assert.Equal(t, hansard.Day(2025, time.December, 4), got)

	_, err = e.ParseUserDate("whenever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseableDate))
	assert.Contains(t, err.Error(), "YYYY-MM-DD")

	_, err = e.ParseUserDate("")
	require.Error(t, err)
}
