// Package calendar holds the date-only helpers shared by availability and appointments.
// Dates are compared naively: the year, month and day as given, pinned to UTC midnight.
package calendar

import (
	"strings"
	"time"

	"github.com/hackgods/clinic-booking/internal/apperr"
)

const Layout = "2006-01-02"

var ErrInvalidDate = apperr.Validation("date must be a valid calendar date (YYYY-MM-DD)")

// ParseDate accepts YYYY-MM-DD, or an RFC 3339 timestamp whose date part is kept as written.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(Layout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Normalize(t), nil
	}
	return time.Time{}, ErrInvalidDate
}

// Normalize drops the time of day without converting between zones.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// Today returns now's date in the server's local zone.
func Today(now time.Time) time.Time {
	return Normalize(now.Local())
}
