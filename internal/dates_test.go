package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		start string
		n     int
		want  string
	}{
		{"2025-01-15", 1, "2025-02-15"},
		{"2025-01-31", 1, "2025-02-28"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2025-01-31", 2, "2025-03-31"},
		{"2025-03-31", -1, "2025-02-28"},
		{"2025-11-30", 3, "2026-02-28"},
		{"2024-02-29", 12, "2025-02-28"},
		{"2024-02-29", 48, "2028-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			assert.Equal(t, date(tt.want), AddMonths(date(tt.start), tt.n))
		})
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 31, DaysBetween(date("2025-01-01"), date("2025-02-01")))
	assert.Equal(t, -31, DaysBetween(date("2025-02-01"), date("2025-01-01")))
	assert.Equal(t, 366, DaysBetween(date("2024-01-01"), date("2025-01-01")))

	late := time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2025, 1, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(late, early))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, "2025-06-20", FormatDate(d))

	for _, bad := range []string{"", "2025-13-01", "20-06-2025", "2025/06/20"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestFrequency_Step(t *testing.T) {
	tests := []struct {
		freq   Frequency
		anchor string
		n      int
		want   string
	}{
		{Weekly, "2025-01-01", 1, "2025-01-08"},
		{Weekly, "2025-01-01", 5, "2025-02-05"},
		{BiWeekly, "2025-01-01", 2, "2025-01-29"},
		{Monthly, "2025-01-31", 1, "2025-02-28"},
		{Monthly, "2025-01-31", 2, "2025-03-31"},
		{Yearly, "2024-02-29", 1, "2025-02-28"},
		{Yearly, "2024-02-29", 4, "2028-02-29"},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			assert.Equal(t, date(tt.want), tt.freq.Step(date(tt.anchor), tt.n))
		})
	}
}

func TestFrequency_MonthlyEquivalent(t *testing.T) {
	tests := []struct {
		freq   Frequency
		amount string
		want   string
	}{
		{Weekly, "10", "43.30"},
		{BiWeekly, "10", "21.70"},
		{Monthly, "15.49", "15.49"},
		{Yearly, "120", "10.00"},
		{Yearly, "100", "8.33"},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.freq.MonthlyEquivalent(dec(tt.amount)).StringFixed(2))
		})
	}
}

func TestParseFrequency(t *testing.T) {
	for _, f := range Frequencies {
		got, ok := ParseFrequency(string(f))
		assert.True(t, ok)
		assert.Equal(t, f, got)
	}
	_, ok := ParseFrequency("daily")
	assert.False(t, ok)

	status, ok := ParseStatus("cancelled")
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, status)
	_, ok = ParseStatus("paused")
	assert.False(t, ok)
}
