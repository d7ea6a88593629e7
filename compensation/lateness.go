package compensation

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// LATENESS - Tiered penalties on the first class start of the day
// =============================================================================
//
// For each (date, student) only the earliest signal counts:
//
//   minutes <= 0                -> on time
//   minutes <= ExcusedMinutes   -> excused
//   first tier containing it    -> round(base * percent / 100)
//   no tier                     -> nothing
//
// Minutes are whole minutes in the engine time zone; seconds are dropped.

// Deductions is the output of a deduction engine.
type Deductions[E any] struct {
	Total    decimal.Decimal
	Entries  []E
	Warnings []Warning
}

// LatenessEngine evaluates lateness tiers.
type LatenessEngine struct {
	loc *time.Location
}

// NewLatenessEngine creates a LatenessEngine.
func NewLatenessEngine(loc *time.Location) *LatenessEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &LatenessEngine{loc: loc}
}

// Evaluate computes lateness deductions. waived holds dates with a
// lateness waiver for the instructor.
func (e *LatenessEngine) Evaluate(
	assignments []StudentAssignment,
	rules *RuleSet,
	waived map[generic.Date]bool,
) Deductions[LatenessEntry] {
	out := Deductions[LatenessEntry]{Total: decimal.Zero}
	if rules == nil {
		if len(assignments) > 0 {
			out.Warnings = append(out.Warnings, noRuleSetWarning)
		}
		return out
	}
	if len(rules.Tiers) == 0 && hasSignals(assignments) {
		out.Warnings = append(out.Warnings, Warning{Kind: WarnNoTiers, Message: "rule set has no lateness tiers"})
	}

	for _, sa := range assignments {
		for _, sig := range e.earliestPerDay(sa.Signals) {
			date := generic.DateOf(sig.At, e.loc)
			if waived[date] {
				continue
			}
			iv, ok := sa.IntervalOn(date)
			if !ok {
				continue
			}
			if !iv.TimeSlot.Valid() {
				out.Warnings = append(out.Warnings, Warning{
					Kind:      WarnMissingTimeSlot,
					StudentID: sa.Student.ID,
					Message:   "student has no scheduled time slot; lateness not evaluated",
				})
				continue
			}

			minutes := generic.ClockOf(sig.At, e.loc).Minutes() - iv.TimeSlot.Minutes()
			if minutes <= 0 || minutes <= rules.ExcusedMinutes {
				continue
			}
			tier, ok := rules.TierFor(minutes)
			if !ok {
				continue
			}
			base, ok := rules.BaseFor(iv.Package)
			if !ok {
				out.Warnings = append(out.Warnings, Warning{
					Kind:      WarnMissingBase,
					StudentID: sa.Student.ID,
					Package:   iv.Package,
					Message:   fmt.Sprintf("no deduction base amounts for package %q", iv.Package),
				})
				continue
			}

			amount := generic.RoundWhole(generic.Percent(base.Lateness, tier.Percent))
			out.Total = out.Total.Add(amount)
			out.Entries = append(out.Entries, LatenessEntry{
				Date:        date,
				StudentID:   sa.Student.ID,
				StudentName: sa.Student.Name,
				Scheduled:   iv.TimeSlot,
				Actual:      sig.At,
				Minutes:     minutes,
				Tier:        tier.Label,
				Amount:      amount,
			})
		}
	}

	sort.SliceStable(out.Entries, func(i, j int) bool {
		if !out.Entries[i].Date.Equal(out.Entries[j].Date) {
			return out.Entries[i].Date.Before(out.Entries[j].Date)
		}
		return out.Entries[i].StudentID < out.Entries[j].StudentID
	})
	return out
}

// earliestPerDay keeps the first signal of each date.
func (e *LatenessEngine) earliestPerDay(signals []ClassStart) []ClassStart {
	first := make(map[generic.Date]ClassStart)
	for _, s := range signals {
		d := generic.DateOf(s.At, e.loc)
		if cur, ok := first[d]; !ok || s.At.Before(cur.At) {
			first[d] = s
		}
	}
	out := make([]ClassStart, 0, len(first))
	for _, s := range first {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

var noRuleSetWarning = Warning{Kind: WarnNoRuleSet, Message: "no deduction rule set configured"}

func hasSignals(assignments []StudentAssignment) bool {
	for _, sa := range assignments {
		if len(sa.Signals) > 0 {
			return true
		}
	}
	return false
}
