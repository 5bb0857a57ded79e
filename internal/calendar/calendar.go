// Package calendar implements the date arithmetic shared by the engine.
//
// Every date crossing a package boundary is a YYYY-MM-DD string. Internally dates are
// civil.Date values, which have no time of day or zone, so day differences never drift
// across daylight-saving transitions.
package calendar

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Layout is the only accepted date format.
const Layout = "2006-01-02"

// Epoch is what malformed input degrades to.
var Epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// Parse strictly parses a YYYY-MM-DD date.
func Parse(date string) (civil.Date, error) {
	d, err := civil.ParseDate(date)
	if err != nil {
		return civil.Date{}, fmt.Errorf("calendar: invalid date %q: %w", date, err)
	}
	return d, nil
}

// Valid reports whether date is a well-formed YYYY-MM-DD calendar date.
func Valid(date string) bool {
	_, err := civil.ParseDate(date)
	return err == nil
}

// ToDate parses leniently. Malformed input becomes Epoch; callers validate upstream.
func ToDate(date string) civil.Date {
	d, err := civil.ParseDate(date)
	if err != nil {
		return Epoch
	}
	return d
}

// ToUTCDay returns midnight UTC of the given date.
func ToUTCDay(date string) time.Time {
	return ToDate(date).In(time.UTC)
}

// Format renders d as YYYY-MM-DD.
func Format(d civil.Date) string {
	return d.String()
}

// DayDiff returns the number of whole days from a to b (b minus a).
func DayDiff(a, b string) int {
	return ToDate(b).DaysSince(ToDate(a))
}

// AddDays returns date shifted by n days.
func AddDays(date string, n int) string {
	return Format(ToDate(date).AddDays(n))
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Clamp builds a date in the given month, pulling day back to the month's last day
// when the month is shorter (31 -> 30, 29 or 28).
func Clamp(year int, month time.Month, day int) civil.Date {
	if day < 1 {
		day = 1
	}
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// Within reports whether start <= d <= end.
func Within(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// Min returns the earlier of two dates.
func Min(a, b civil.Date) civil.Date {
	if b.Before(a) {
		return b
	}
	return a
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthsOverlapping lists every calendar month that intersects [start, end].
func MonthsOverlapping(start, end civil.Date) []Month {
	if end.Before(start) {
		return nil
	}
	var months []Month
	y, m := start.Year, start.Month
	for y < end.Year || (y == end.Year && m <= end.Month) {
		months = append(months, Month{Year: y, Month: m})
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return months
}

// Range parses a period's bounds. ok is false when either bound is malformed or the
// range is inverted.
func Range(start, end string) (from, to civil.Date, ok bool) {
	from, err := civil.ParseDate(start)
	if err != nil {
		return civil.Date{}, civil.Date{}, false
	}
	to, err = civil.ParseDate(end)
	if err != nil || to.Before(from) {
		return civil.Date{}, civil.Date{}, false
	}
	return from, to, true
}
