package rent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
		ok     bool
	}{
		{"META 251220C560", "2025-12-20", true},
		{"SPY 260116P450", "2026-01-16", true},
		{"AAPL  250321C00180000", "2025-03-21", true},
		{"XYZ251220P", "2025-12-20", true},
		{"1251220C", "2025-12-20", true},
		{"META 2512C560", "", false},
		{"META 251220X560", "", false},
		{"AAPL", "", false},
		{"", "", false},
		// calendar validity is not checked
		{"BAD 251399C1", "2025-13-99", true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, ok := ParseExpiry(tt.symbol)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       int
		ok         bool
	}{
		{"one day forward", "2025-12-01", "2025-12-02", 1, true},
		{"one day backward", "2025-12-02", "2025-12-01", -1, true},
		{"same day", "2025-12-01", "2025-12-01", 0, true},
		{"month span", "2025-11-20", "2025-12-20", 30, true},
		{"across DST change", "2025-03-01", "2025-04-01", 31, true},
		{"timestamp start is truncated", "2025-12-01T23:59:59Z", "2025-12-02", 1, true},
		{"timestamp with offset keeps its calendar date", "2025-12-02T00:30:00+05:00", "2025-12-03", 1, true},
		{"invalid start", "not-a-date", "2025-12-01", 0, false},
		{"invalid end", "2025-12-01", "2025-13-99", 0, false},
		{"empty", "", "2025-12-01", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DaysBetween(tt.start, tt.end)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentDTE(t *testing.T) {
	now := time.Date(2025, 12, 10, 15, 30, 0, 0, time.UTC)

	dte, ok := CurrentDTE("2025-12-20", now)
	assert.True(t, ok)
	assert.Equal(t, 10, dte)

	dte, ok = CurrentDTE("2025-12-10", now)
	assert.True(t, ok)
	assert.Equal(t, 0, dte)

	dte, ok = CurrentDTE("2025-12-01", now)
	assert.True(t, ok)
	assert.Equal(t, -9, dte)

	_, ok = CurrentDTE("2025-02-30", now)
	assert.False(t, ok)
}

func TestCurrentDTE_UsesCalendarDateOfNowInItsLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2025-12-10 01:00 in Tokyo is still 2025-12-09 in UTC
	now := time.Date(2025, 12, 10, 1, 0, 0, 0, tokyo)

	dte, ok := CurrentDTE("2025-12-20", now)
	assert.True(t, ok)
	assert.Equal(t, 10, dte)
}
