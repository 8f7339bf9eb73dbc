package clock

import (
	"fmt"
	"strings"
	"time"
)

// Permanence renders the length of stay between entry and now.
//
// Stays of at least one day render as "{days}d {hours}h", shorter stays as
// "{hours}h {minutes}m". Entries later than now are clamped to "0h 0m".
func Permanence(entry, now time.Time) string {
	d := now.Sub(entry)
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	if days := hours / 24; days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours%24)
	}
	minutes := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// EntryStamp formats t as "DD/MM HH:MM" in loc. The year is omitted, so the
// value is only unambiguous within a single year of operation.
func EntryStamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01 15:04")
}

// HourMinute formats t as "HH:MM" in loc.
func HourMinute(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// DayLabel formats t as "D/M" in loc, without zero padding.
func DayLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2/1")
}

// DateTimeBR formats t as "DD/MM/YYYY HH:MM" in loc, or "-" for the zero time.
func DateTimeBR(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("02/01/2006 15:04")
}

// StartOfDay returns local midnight of the calendar day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// ParseCompactDate parses an 8-digit YYYYMMDD calendar date.
func ParseCompactDate(s string) (time.Time, error) {
	if len(s) != 8 || strings.Trim(s, "0123456789") != "" {
		return time.Time{}, fmt.Errorf("date %q: expected 8 digits YYYYMMDD", s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t, nil
}

var eventLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseEventTime parses a clinician-entered event timestamp. Accepted forms are
// "DD/MM/YYYY HH:MM" (the bed board's discharge form), RFC 3339 and the HTML
// datetime-local layouts. Zone-less values are read in loc. An empty string
// yields now.
func ParseEventTime(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range eventLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("event time %q: unrecognised format", s)
}
