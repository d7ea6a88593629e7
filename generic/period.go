package generic

import "time"

// =============================================================================
// PERIOD - The core concept for compensation calculation
// =============================================================================

// Period is a closed date interval [Start, End].
// Compensation is ALWAYS computed for a period, never for a single instant.
//
// Examples:
//   - Calendar month: Mar 1 - Mar 31
//   - Pay fortnight: Mar 1 - Mar 14
//   - Ownership sub-interval: Mar 10 - Mar 31 (after a reassignment)
type Period struct {
	Start Date
	End   Date
}

// NewPeriod builds a period and validates it.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// MonthPeriod returns the calendar month containing d.
func MonthPeriod(d Date) Period {
	start := NewDate(d.Year(), d.Month(), 1)
	return Period{Start: start, End: start.AddMonths(1).AddDays(-1)}
}

// Validate rejects zero dates and periods that end before they start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return ErrInvalidPeriod
	}
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps reports whether p and other share at least one date.
func (p Period) Overlaps(other Period) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// Intersect returns the overlap of p and other. ok is false when they are disjoint.
func (p Period) Intersect(other Period) (Period, bool) {
	if !p.Overlaps(other) {
		return Period{}, false
	}
	return Period{Start: MaxDate(p.Start, other.Start), End: MinDate(p.End, other.End)}, true
}

// Days returns all days in the period in ascending order.
func (p Period) Days() []Date {
	if p.End.Before(p.Start) {
		return nil
	}
	days := make([]Date, 0, p.Len())
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len returns the number of days in the period.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Bounds returns the first and last instants of the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	return p.Start.Start(loc), p.End.End(loc)
}

// MonthKey is the YYYY-MM month the period starts in.
func (p Period) MonthKey() string { return p.Start.MonthKey() }

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
