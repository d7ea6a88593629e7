package compensation

import (
	"time"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// CALENDAR - Expected teaching dates for a pattern and a period
// =============================================================================

// Calendar resolves day-patterns to dates. It carries the rest-day and
// unknown-pattern policies so every computation sees them explicitly.
type Calendar struct {
	// IncludeRestDay counts RestDay as a teaching day.
	IncludeRestDay bool

	// RestDay is the designated seventh day.
	RestDay time.Weekday

	// UnknownAsMissing resolves unparseable patterns like missing ones.
	// When false they resolve to no dates.
	UnknownAsMissing bool
}

// DefaultCalendar excludes Sunday and treats unknown patterns as missing.
func DefaultCalendar() Calendar {
	return Calendar{RestDay: time.Sunday, UnknownAsMissing: true}
}

// IsRestDay reports whether d is excluded by the rest-day policy.
func (c Calendar) IsRestDay(d generic.Date) bool {
	return !c.IncludeRestDay && d.Weekday() == c.RestDay
}

// Expects reports whether d is an expected date for pattern.
func (c Calendar) Expects(pattern DayPattern, d generic.Date) bool {
	if c.IsRestDay(d) {
		return false
	}
	switch pattern.Kind {
	case PatternNone:
		return true
	case PatternUnknown:
		return c.UnknownAsMissing
	default:
		return pattern.Includes(d.Weekday())
	}
}

// ExpectedDates returns the dates in period matching pattern, ascending.
func (c Calendar) ExpectedDates(pattern DayPattern, period generic.Period) []generic.Date {
	var out []generic.Date
	for _, d := range period.Days() {
		if c.Expects(pattern, d) {
			out = append(out, d)
		}
	}
	return out
}

// WorkingDays counts the generic working days of period: every day except
// an excluded rest day.
func (c Calendar) WorkingDays(period generic.Period) int {
	return len(c.ExpectedDates(NoPattern, period))
}

// ExpectsWithFallback is Expects, except that an unresolved pattern falls
// back to the Monday-Friday workweek when hasSignals is true.
func (c Calendar) ExpectsWithFallback(pattern DayPattern, d generic.Date, hasSignals bool) bool {
	if !pattern.Resolved() && hasSignals {
		return !c.IsRestDay(d) && workweekDays.has(d.Weekday())
	}
	return c.Expects(pattern, d)
}
