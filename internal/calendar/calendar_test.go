package calendar

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"same day", "2025-01-15", "2025-01-15", 0},
		{"forward", "2025-01-01", "2025-01-31", 30},
		{"backward", "2025-01-31", "2025-01-01", -30},
		{"across leap day", "2024-02-28", "2024-03-01", 2},
		{"across UK clock change", "2025-03-29", "2025-03-31", 2},
		{"across year end", "2025-12-22", "2026-01-25", 34},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayDiff(tt.a, tt.b))
		})
	}
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, "2025-02-01", AddDays("2025-01-31", 1))
	assert.Equal(t, "2024-02-29", AddDays("2024-02-15", 14))
	assert.Equal(t, "2024-12-31", AddDays("2025-01-01", -1))
}

func TestToUTCDay(t *testing.T) {
	got := ToUTCDay("2025-06-30")
	assert.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), got)

	assert.Equal(t, time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC), ToUTCDay("not-a-date"))
	assert.Equal(t, time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC), ToUTCDay("2025-02-30"))
}

func TestParse(t *testing.T) {
	d, err := Parse("2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.January, Day: 15}, d)

	_, err = Parse("15/01/2025")
	assert.Error(t, err)
	assert.False(t, Valid(""))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		day   int
		want  string
	}{
		{2025, time.April, 31, "2025-04-30"},
		{2025, time.February, 31, "2025-02-28"},
		{2024, time.February, 30, "2024-02-29"},
		{2025, time.January, 31, "2025-01-31"},
		{2025, time.January, 0, "2025-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(Clamp(tt.year, tt.month, tt.day)))
		})
	}
}

func TestMonthsOverlapping(t *testing.T) {
	start := civil.Date{Year: 2025, Month: time.December, Day: 22}
	end := civil.Date{Year: 2026, Month: time.February, Day: 3}

	got := MonthsOverlapping(start, end)
	assert.Equal(t, []Month{
		{2025, time.December},
		{2026, time.January},
		{2026, time.February},
	}, got)

	assert.Empty(t, MonthsOverlapping(end, start))
}

func TestRange(t *testing.T) {
	_, _, ok := Range("2025-01-01", "2025-01-31")
	assert.True(t, ok)

	_, _, ok = Range("2025-01-31", "2025-01-01")
	assert.False(t, ok)

	_, _, ok = Range("garbage", "2025-01-01")
	assert.False(t, ok)
}
