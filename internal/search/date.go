package search

import (
	"strings"
	"time"
)

// DateLayout is the canonical wire form of a Date.
const DateLayout = "2006-01-02"

const (
	minYear = 1
	maxYear = 9999
)

// Date is a calendar day with no time of day. The zero Date means absent.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate returns the Date for y-m-d, normalizing out-of-range values the
// way time.Date does. Days outside years 1 through 9999 have no canonical
// form and yield the zero Date.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the UTC calendar day of t, or the zero Date when that day
// falls outside years 1 through 9999 or is the zero time's day.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.UTC().Date()
	if y < minYear || y > maxYear {
		return Date{}
	}
	return Date{year: y, month: m, day: d}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp. Anything else,
// including 0001-01-01 which collides with the absent Date, yields the zero
// Date and false.
func ParseDate(raw string) (Date, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, false
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return Date{}, false
		}
	}
	d := DateOf(t)
	return d, !d.IsZero()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DateLayout)
}
