package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day without time of day
// =============================================================================

// Date is a civil calendar date. The zero value is not a valid date.
// Dates are always stored as midnight UTC so they are comparable with ==
// and usable as map keys.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// NewDate returns the date for year/month/day. Out-of-range values are
// normalised the same way time.Date normalises them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return NewDate(lt.Year(), lt.Month(), lt.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// MustParseDate is ParseDate for tests and literals. It panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int              { return d.t.Year() }
func (d Date) Month() time.Month      { return d.t.Month() }
func (d Date) Day() int               { return d.t.Day() }
func (d Date) Weekday() time.Weekday  { return d.t.Weekday() }
func (d Date) IsZero() bool           { return d.t.IsZero() }
func (d Date) String() string         { return d.t.Format(dateLayout) }
func (d Date) MonthKey() string       { return d.t.Format("2006-01") }

// Start returns the first instant of the date in loc.
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// End returns the last nanosecond of the date in loc.
func (d Date) End(loc *time.Location) time.Time {
	return d.AddDays(1).Start(loc).Add(-time.Nanosecond)
}

// MinDate returns the earlier of a and b.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a).
func DaysBetween(a, b Date) int { return int(b.t.Sub(a.t).Hours() / 24) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK - Time of day in minutes past midnight
// =============================================================================

// Clock is a wall-clock time of day. It holds minutes past midnight plus
// one, so the zero value is NoClock and a struct built without a slot never
// reads as midnight. Differences between two valid clocks are minutes.
type Clock int

// NoClock marks a missing or unparseable time slot.
const NoClock Clock = 0

// NewClock returns the clock value for hour:minute.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute + 1) }

// ClockOf returns the time of day of t in loc, truncated to the minute.
func ClockOf(t time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return NewClock(lt.Hour(), lt.Minute())
}

// ParseClock accepts "15:04", "15:04:05", "3:04 PM", "3:04PM" and "3 PM".
// A time range such as "14:00-15:00" resolves to its start.
func ParseClock(s string) (Clock, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexAny(raw, "-–"); i > 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "" {
		return NoClock, fmt.Errorf("parse clock: empty value")
	}

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(raw, suffix) {
			meridiem = suffix
			raw = strings.TrimSpace(strings.TrimSuffix(raw, suffix))
		}
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return NoClock, fmt.Errorf("parse clock %q: too many components", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return NoClock, fmt.Errorf("parse clock %q: %w", s, err)
	}
	minute := 0
	if len(parts) > 1 {
		if minute, err = strconv.Atoi(parts[1]); err != nil {
			return NoClock, fmt.Errorf("parse clock %q: %w", s, err)
		}
	}

	switch meridiem {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 12 {
			hour += 12
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return NoClock, fmt.Errorf("parse clock %q: out of range", s)
	}
	return NewClock(hour, minute), nil
}

func (c Clock) Valid() bool { return c >= 1 && c <= 24*60 }

// Minutes returns minutes past midnight, or -1 for NoClock.
func (c Clock) Minutes() int {
	if !c.Valid() {
		return -1
	}
	return int(c) - 1
}

func (c Clock) String() string {
	if !c.Valid() {
		return ""
	}
	m := c.Minutes()
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
