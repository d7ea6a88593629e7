package compensation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// BASE EARNINGS - Expected dates that carry a class-start signal
// =============================================================================

// Earnings is the base-salary part of a Result, before rounding.
type Earnings struct {
	Total          decimal.Decimal
	Students       []StudentEarning
	Daily          []DailyEarning
	TeachingDays   int
	StudentsTaught int
}

// AverageDaily is Total over TeachingDays, zero without teaching days.
func (e Earnings) AverageDaily() decimal.Decimal {
	if e.TeachingDays == 0 {
		return decimal.Zero
	}
	return e.Total.Div(decimal.NewFromInt(int64(e.TeachingDays)))
}

// EarningsCalculator bills one daily-rate unit per expected date with a signal.
type EarningsCalculator struct {
	calendar Calendar
	loc      *time.Location
}

// NewEarningsCalculator creates an EarningsCalculator.
func NewEarningsCalculator(calendar Calendar, loc *time.Location) *EarningsCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &EarningsCalculator{calendar: calendar, loc: loc}
}

// Calculate builds the per-student and per-day ledgers.
// Students with no matched days are left out.
func (c *EarningsCalculator) Calculate(assignments []StudentAssignment) Earnings {
	out := Earnings{Total: decimal.Zero}
	daily := make(map[generic.Date]decimal.Decimal)

	for _, sa := range assignments {
		taught := signalDates(sa.Signals, c.loc)
		contributed := false

		for _, iv := range sa.Intervals {
			var days []generic.Date
			for _, d := range c.calendar.ExpectedDates(iv.DayPattern, iv.Period) {
				if taught[d] {
					days = append(days, d)
				}
			}
			if len(days) == 0 {
				continue
			}

			total := iv.DailyRate.Mul(decimal.NewFromInt(int64(len(days))))
			for _, d := range days {
				daily[d] = daily[d].Add(iv.DailyRate)
			}
			out.Total = out.Total.Add(total)
			out.Students = append(out.Students, StudentEarning{
				StudentID:   sa.Student.ID,
				StudentName: sa.Student.Name,
				Package:     iv.Package,
				Period:      iv.Period,
				DailyRate:   iv.DailyRate,
				Days:        days,
				Total:       total,
				Synthesized: iv.Synthesized,
			})
			contributed = true
		}
		if contributed {
			out.StudentsTaught++
		}
	}

	for d, amount := range daily {
		out.Daily = append(out.Daily, DailyEarning{Date: d, Amount: amount})
	}
	sort.Slice(out.Daily, func(i, j int) bool { return out.Daily[i].Date.Before(out.Daily[j].Date) })
	out.TeachingDays = len(out.Daily)
	return out
}

// signalDates is the set of dates with at least one signal.
func signalDates(signals []ClassStart, loc *time.Location) map[generic.Date]bool {
	dates := make(map[generic.Date]bool, len(signals))
	for _, s := range signals {
		dates[generic.DateOf(s.At, loc)] = true
	}
	return dates
}
