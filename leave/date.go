package leave

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day, no time of day
// =============================================================================

const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date is a calendar day in UTC. Comparisons ignore time of day. The zero
// value is "no date" and is distinct from 0001-01-01.
type Date struct {
	t     time.Time
	valid bool
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), valid: true}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return !d.valid }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n), valid: d.valid} }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) String() string { return d.t.Format(DateLayout) }

// DaysBetween counts whole days from a to b. Negative when b is before a.
// Both dates are UTC midnights, so the difference in Unix seconds is an
// exact multiple of a day. time.Duration would overflow past ~292 years.
func DaysBetween(a, b Date) int {
	return int((b.t.Unix() - a.t.Unix()) / secondsPerDay)
}

// =============================================================================
// DATE RANGE - Inclusive on both ends
// =============================================================================

type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) Valid() bool { return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End) }

// Days is the inclusive day count. Zero for an invalid range.
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

// Overlaps reports whether the ranges share at least one calendar day.
// Ranges that only touch (one ends the day before the other starts) do not.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(r.End)
}

func (r DateRange) String() string { return r.Start.String() + ".." + r.End.String() }
