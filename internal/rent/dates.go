package rent

import (
	"math"
	"regexp"
	"time"
)

// DateLayout is the ISO-8601 date format used for expiry and trade open dates
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// expiryCode matches the YYMMDD code that precedes the option type marker, e.g. "251220C" in "META 251220C560"
var expiryCode = regexp.MustCompile(`(\d{6})[CP]`)

// ParseExpiry extracts the expiry date from an option symbol.
// The century is fixed to 2000; month and day digits are passed through as-is.
func ParseExpiry(symbol string) (string, bool) {
	m := expiryCode.FindStringSubmatch(symbol)
	if m == nil {
		return "", false
	}

	code := m[1]
	return "20" + code[0:2] + "-" + code[2:4] + "-" + code[4:6], true
}

// DaysBetween returns the number of days from start to end, rounded up.
// Both values are truncated to their date. The result may be zero or negative.
func DaysBetween(start, end string) (int, bool) {
	s, ok := parseDay(start)
	if !ok {
		return 0, false
	}
	e, ok := parseDay(end)
	if !ok {
		return 0, false
	}
	return diffDays(s, e), true
}

// CurrentDTE returns the days to expiration counted from the date of now
func CurrentDTE(expiry string, now time.Time) (int, bool) {
	e, ok := parseDay(expiry)
	if !ok {
		return 0, false
	}
	return diffDays(truncateDay(now), e), true
}

func diffDays(start, end time.Time) int {
	return int(math.Ceil(float64(end.Sub(start)) / float64(day)))
}

// parseDay accepts a plain date or an RFC 3339 timestamp and returns midnight UTC of its calendar date
func parseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return truncateDay(t), true
	}
	return time.Time{}, false
}

// truncateDay takes the calendar date of t in its own location and re-expresses it at UTC midnight
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
