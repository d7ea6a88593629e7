package compensation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
//
// April 2025 starts on a Tuesday and has four Sundays (6, 13, 20, 27), so
// with Sunday as the rest day it has 26 working days.

const (
	insA   compensation.InstructorID = "ins-a"
	insB   compensation.InstructorID = "ins-b"
	insC   compensation.InstructorID = "ins-c"
	stdPkg compensation.PackageID    = "standard"
)

func april() generic.Period {
	return generic.Period{Start: generic.NewDate(2025, time.April, 1), End: generic.NewDate(2025, time.April, 30)}
}

func apr(day int) generic.Date {
	return generic.NewDate(2025, time.April, day)
}

// at returns an April 2025 instant in UTC.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.April, day, hour, minute, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixedClock pins "today" after the end of April.
func fixedClock() time.Time {
	return time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)
}

// newStore seeds instructors A, B and C and the standard package at 900.
func newStore() *memory.Store {
	s := memory.New()
	s.AddInstructor(compensation.Instructor{ID: insA, Name: "Abebe"})
	s.AddInstructor(compensation.Instructor{ID: insB, Name: "Bethlehem"})
	s.AddInstructor(compensation.Instructor{ID: insC, Name: "Chala"})
	s.SetRate(stdPkg, dec("900"))
	return s
}

func student(id compensation.StudentID, owner compensation.InstructorID, pattern string) compensation.Student {
	return compensation.Student{
		ID:         id,
		Name:       "Student " + string(id),
		Package:    stdPkg,
		DayPattern: compensation.ParseDayPattern(pattern),
		TimeSlot:   generic.NewClock(14, 0),
		Status:     compensation.StatusActive,
		Instructor: owner,
	}
}

// standardRules is the tier table used across tests: 3 excused minutes,
// then 10%, 25% and 50% of the package base.
func standardRules() *compensation.RuleSet {
	return &compensation.RuleSet{
		Scope:          compensation.ScopeGlobal,
		ExcusedMinutes: 3,
		Tiers: []compensation.Tier{
			{Label: "minor", StartMinute: 4, EndMinute: 7, Percent: dec("10")},
			{Label: "moderate", StartMinute: 8, EndMinute: 15, Percent: dec("25")},
			{Label: "severe", StartMinute: 16, EndMinute: 60, Percent: dec("50")},
		},
		Packages: map[compensation.PackageID]compensation.PackageDeduction{
			stdPkg: {Lateness: dec("30"), Absence: dec("50")},
		},
	}
}

func newEngine(t *testing.T, src compensation.Sources, opts ...compensation.Option) *compensation.Engine {
	t.Helper()
	opts = append([]compensation.Option{compensation.WithClock(fixedClock)}, opts...)
	e, err := compensation.New(src, opts...)
	require.NoError(t, err)
	return e
}

// teach adds one class start per day at 14:00 for the given April days.
func teach(s *memory.Store, ins compensation.InstructorID, st compensation.StudentID, days ...int) {
	for _, d := range days {
		s.AddClassStart(compensation.ClassStart{StudentID: st, InstructorID: ins, At: at(d, 14, 0)})
	}
}

func reassign(id string, st compensation.StudentID, from, to compensation.InstructorID, when time.Time) compensation.ReassignmentEvent {
	return compensation.ReassignmentEvent{
		ID:            id,
		StudentID:     st,
		OldInstructor: from,
		NewInstructor: to,
		ChangedAt:     when,
		Reason:        "schedule change",
	}
}
