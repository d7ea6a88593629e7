package compensation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// ABSENCE - Expected classes that never started
// =============================================================================

// AbsenceInput is everything the absence engine looks at for one instructor.
type AbsenceInput struct {
	Assignments []StudentAssignment
	Period      generic.Period
	Rules       *RuleSet
	Waived      map[generic.Date]bool // absence waivers
	Permitted   map[generic.Date]bool // approved leave

	// Attended holds, per student, the dates with a signal from any
	// instructor.
	Attended map[StudentID]map[generic.Date]bool

	// AsOf is "today": later dates are never charged. Zero reads the clock.
	AsOf generic.Date
}

// AbsenceEngine charges one base absence amount per (date, student) where a
// class was expected and none happened. Future dates are never charged.
type AbsenceEngine struct {
	calendar Calendar
	loc      *time.Location
	now      func() time.Time
}

// NewAbsenceEngine creates an AbsenceEngine. now supplies "today".
func NewAbsenceEngine(calendar Calendar, loc *time.Location, now func() time.Time) *AbsenceEngine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &AbsenceEngine{calendar: calendar, loc: loc, now: now}
}

// Evaluate computes absence deductions.
func (e *AbsenceEngine) Evaluate(in AbsenceInput) Deductions[AbsenceEntry] {
	out := Deductions[AbsenceEntry]{Total: decimal.Zero}

	today := in.AsOf
	if today.IsZero() {
		today = generic.DateOf(e.now(), e.loc)
	}
	end := generic.MinDate(in.Period.End, today)
	if in.Rules == nil {
		// Students without classes are exactly where absences would land.
		if len(in.Assignments) > 0 {
			out.Warnings = append(out.Warnings, noRuleSetWarning)
		}
		return out
	}
	if end.Before(in.Period.Start) {
		return out
	}

	warned := make(map[PackageID]bool)
	for d := in.Period.Start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if e.calendar.IsRestDay(d) || in.Waived[d] {
			continue
		}
		for _, sa := range in.Assignments {
			// Ownership on d; a student reassigned away has no interval here.
			iv, ok := sa.IntervalOn(d)
			if !ok {
				continue
			}
			attended := in.Attended[sa.Student.ID]
			if !e.calendar.ExpectsWithFallback(iv.DayPattern, d, len(attended) > 0) {
				continue
			}
			if attended[d] || in.Permitted[d] {
				continue
			}

			base, ok := in.Rules.BaseFor(iv.Package)
			if !ok {
				if !warned[iv.Package] {
					warned[iv.Package] = true
					out.Warnings = append(out.Warnings, Warning{
						Kind:      WarnMissingBase,
						StudentID: sa.Student.ID,
						Package:   iv.Package,
						Message:   fmt.Sprintf("no deduction base amounts for package %q", iv.Package),
					})
				}
				continue
			}

			out.Total = out.Total.Add(base.Absence)
			out.Entries = append(out.Entries, AbsenceEntry{
				Date:        d,
				StudentID:   sa.Student.ID,
				StudentName: sa.Student.Name,
				Package:     iv.Package,
				Amount:      base.Absence,
			})
		}
	}
	return out
}

// AttendanceIndex groups signals by student and date.
func AttendanceIndex(signals []ClassStart, loc *time.Location) map[StudentID]map[generic.Date]bool {
	idx := make(map[StudentID]map[generic.Date]bool)
	for _, s := range signals {
		days, ok := idx[s.StudentID]
		if !ok {
			days = make(map[generic.Date]bool)
			idx[s.StudentID] = days
		}
		days[generic.DateOf(s.At, loc)] = true
	}
	return idx
}
