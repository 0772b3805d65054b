package core

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar-day value type (the ledger is keyed by days, not instants)
// =============================================================================

// Day is a calendar date with no time-of-day component, always UTC.
// The zero value is the zero date.
type Day struct {
	Time time.Time
}

// Constructors
func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates an instant to its UTC calendar date.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return NewDay(u.Year(), u.Month(), u.Day())
}

func Today() Day { return DayOf(time.Now()) }

// ParseDay parses a YYYY-MM-DD date string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool         { return d.Time.After(other.Time) }
func (d Day) Equal(other Day) bool         { return d.Time.Equal(other.Time) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

// Arithmetic
func (d Day) AddDays(n int) Day   { return Day{Time: d.Time.AddDate(0, 0, n)} }
func (d Day) AddMonths(n int) Day { return Day{Time: d.Time.AddDate(0, n, 0)} }
func (d Day) AddYears(n int) Day  { return Day{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Day) Year() int         { return d.Time.Year() }
func (d Day) Month() time.Month { return d.Time.Month() }
func (d Day) DayOfMonth() int   { return d.Time.Day() }
func (d Day) IsZero() bool      { return d.Time.IsZero() }

func (d Day) String() string { return d.Time.Format("2006-01-02") }

// DaysBetween returns the signed number of calendar days from one date to
// another.
func DaysBetween(from, to Day) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// MonthsBetween returns the number of completed months of service from one
// date to another. A month completes on the same day-of-month it started.
func MonthsBetween(from, to Day) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.DayOfMonth() < from.DayOfMonth() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// YearsBetween returns the number of completed years of service.
func YearsBetween(from, to Day) int { return MonthsBetween(from, to) / 12 }

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive date range [Start, End].
type Period struct {
	Start Day
	End   Day
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool { return p.Start.BeforeOrEqual(p.End) }

// Contains reports whether the date falls within the period.
func (p Period) Contains(d Day) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every date in the period, in order.
func (p Period) Days() []Day {
	var days []Day
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Length returns the number of days in the period, inclusive.
func (p Period) Length() int { return DaysBetween(p.Start, p.End) + 1 }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
