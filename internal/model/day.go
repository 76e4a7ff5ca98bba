package model

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the canonical calendar-date format used as a map and store key.
const DayLayout = "2006-01-02"

// legacyDayLayout is what older clients wrote under the "lastDate" key
// (e.g. "Wed May 01 2024"). It is accepted on read and never written.
const legacyDayLayout = "Mon Jan 02 2006"

// Day is a calendar date in YYYY-MM-DD form. Days compare correctly as strings.
type Day string

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// Days outside years 1 to 9999 have no four-digit form and are rejected.
const (
	minYear = 1
	maxYear = 9999
)

func inRange(t time.Time) bool {
	return t.Year() >= minYear && t.Year() <= maxYear
}

// ParseDay parses a canonical or legacy date string into a Day.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DayLayout, legacyDayLayout} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if !inRange(t) {
			return "", fmt.Errorf("model: %q is outside years %d to %d", s, minYear, maxYear)
		}
		return DayOf(t), nil
	}
	return "", fmt.Errorf("model: %q is not a calendar date (want YYYY-MM-DD)", s)
}

func (d Day) parse() (time.Time, bool) {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil || !inRange(t) {
		return time.Time{}, false
	}
	return t, DayOf(t) == d
}

// Valid reports whether d is in canonical form.
func (d Day) Valid() bool {
	_, ok := d.parse()
	return ok
}

// Time returns midnight UTC of d. It panics on an invalid Day; call Valid first
// for untrusted input.
func (d Day) Time() time.Time {
	t, ok := d.parse()
	if !ok {
		panic(fmt.Sprintf("model: invalid day %q", string(d)))
	}
	return t
}

func (d Day) Prev() Day { return d.AddDays(-1) }
func (d Day) Next() Day { return d.AddDays(1) }

// AddDays returns the empty Day when d is invalid or the result falls
// outside years 1 to 9999.
func (d Day) AddDays(n int) Day {
	t, ok := d.parse()
	if !ok || n > maxDaySpan || n < -maxDaySpan {
		return ""
	}
	t = t.AddDate(0, 0, n)
	if !inRange(t) {
		return ""
	}
	return DayOf(t)
}

// maxDaySpan is the number of days from 0001-01-01 to 9999-12-31.
const maxDaySpan = 3652058

func (d Day) String() string { return string(d) }
