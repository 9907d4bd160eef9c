package hansard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	for _, raw := range []string{"A", "p", " E "} {
		p, err := ParsePeriod(raw)
		require.NoError(t, err)
		assert.True(t, p.Valid())
	}
	_, err := ParsePeriod("X")
	assert.Error(t, err)
	_, err = ParsePeriod("")
	assert.Error(t, err)
}

func TestDateRangeContains(t *testing.T) {
	start := Day(2025, time.January, 1)
	end := Day(2025, time.December, 31)
	r := DateRange{Start: &start, End: &end}

	assert.True(t, r.Contains(Day(2025, time.January, 1)))
	assert.True(t, r.Contains(Day(2025, time.December, 31).Add(23*time.Hour)))
	assert.False(t, r.Contains(Day(2024, time.December, 31)))
	assert.False(t, r.Contains(Day(2026, time.January, 1)))

	open := DateRange{}
	assert.True(t, open.IsZero())
	assert.True(t, open.Contains(Day(1990, time.May, 5)))

	onlyStart := DateRange{Start: &start}
	assert.True(t, onlyStart.Contains(Day(2030, time.May, 5)))
	assert.False(t, onlyStart.Contains(Day(2024, time.May, 5)))
}
