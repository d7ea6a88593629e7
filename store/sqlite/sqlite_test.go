package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/factory"
	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func april() generic.Period {
	return generic.MonthPeriod(generic.NewDate(2025, time.April, 1))
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.April, day, hour, minute, 0, 0, time.UTC)
}

func TestStore_Directory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveInstructor(ctx, compensation.Instructor{ID: "ins-b", Name: "Bethlehem"}))
	require.NoError(t, s.SaveInstructor(ctx, compensation.Instructor{ID: "ins-a", Name: "Abebe"}))

	ins, err := s.GetInstructor(ctx, "ins-a")
	require.NoError(t, err)
	assert.Equal(t, "Abebe", ins.Name)

	_, err = s.GetInstructor(ctx, "ins-x")
	assert.True(t, errors.Is(err, generic.ErrInstructorNotFound))

	all, err := s.ListInstructors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, compensation.InstructorID("ins-a"), all[0].ID)
}

func TestStore_StudentsRoundTrip(t *testing.T) {
	// GIVEN: Students with a fixed pattern, an unknown pattern and no slot
	// THEN: Patterns and slots survive storage

	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveStudent(ctx, compensation.Student{
		ID: "s1", Name: "Liya", Package: "standard",
		DayPattern: compensation.ParseDayPattern("MWF"),
		TimeSlot:   generic.NewClock(16, 30),
		Instructor: "ins-a",
	}))
	require.NoError(t, s.SaveStudent(ctx, compensation.Student{
		ID: "s2", Name: "Dawit", Package: "standard",
		DayPattern: compensation.ParseDayPattern("after school"),
		TimeSlot:   generic.NoClock,
		Status:     compensation.StatusInactive,
		Instructor: "ins-a",
	}))

	got, err := s.GetStudents(ctx, []compensation.StudentID{"s2", "s1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2, "unknown ids are left out")

	s1, s2 := got[0], got[1]
	assert.Equal(t, compensation.PatternFixed, s1.DayPattern.Kind)
	assert.Equal(t, generic.NewClock(16, 30), s1.TimeSlot)
	assert.Equal(t, compensation.StatusActive, s1.Status, "status defaults to active")

	assert.Equal(t, compensation.PatternUnknown, s2.DayPattern.Kind)
	assert.Equal(t, "after school", s2.DayPattern.Raw)
	assert.False(t, s2.TimeSlot.Valid())

	owned, err := s.StudentsByInstructor(ctx, "ins-a")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestStore_AppendReassignment(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveStudent(ctx, compensation.Student{ID: "s1", Name: "Liya", Instructor: "ins-a"}))

	rate := decimal.RequireFromString("1300")
	slot := generic.NewClock(9, 0)
	event := compensation.ReassignmentEvent{
		ID:            "e1",
		StudentID:     "s1",
		OldInstructor: "ins-a",
		NewInstructor: "ins-b",
		ChangedAt:     at(15, 8, 30),
		Reason:        "schedule",
		Snapshot: compensation.AssignmentSnapshot{
			Package:     "premium",
			DayPattern:  compensation.ParseDayPattern("tts"),
			TimeSlot:    &slot,
			MonthlyRate: &rate,
		},
	}
	require.NoError(t, s.AppendReassignment(ctx, event))

	// WHEN: The same id is appended twice
	// THEN: It is rejected as an invalid event
	err := s.AppendReassignment(ctx, event)
	assert.True(t, errors.Is(err, generic.ErrInvalidEvent))

	events, err := s.EventsForStudents(ctx, []compensation.StudentID{"s1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.True(t, event.ChangedAt.Equal(got.ChangedAt))
	assert.Equal(t, compensation.PackageID("premium"), got.Snapshot.Package)
	assert.Equal(t, compensation.PatternFixedAlt, got.Snapshot.DayPattern.Kind)
	require.NotNil(t, got.Snapshot.TimeSlot)
	assert.Equal(t, slot, *got.Snapshot.TimeSlot)
	require.NotNil(t, got.Snapshot.MonthlyRate)
	assert.True(t, rate.Equal(*got.Snapshot.MonthlyRate))

	for _, id := range []compensation.InstructorID{"ins-a", "ins-b"} {
		involved, err := s.StudentsInvolving(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []compensation.StudentID{"s1"}, involved)
	}

	moved, err := s.StudentsByInstructor(ctx, "ins-b")
	require.NoError(t, err)
	assert.Len(t, moved, 1, "live pointer follows the log")
}

func TestStore_ClassStartWindow(t *testing.T) {
	// GIVEN: Signals on Mar 30, Mar 31, Apr 15 and May 2 (UTC)
	// WHEN: Querying April
	// THEN: The window reaches one day either side; Mar 30 and May 2 are out

	ctx := context.Background()
	s := newStore(t)
	for _, ts := range []time.Time{
		time.Date(2025, time.March, 30, 23, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 31, 22, 0, 0, 0, time.UTC),
		at(15, 14, 0),
		time.Date(2025, time.May, 2, 0, 30, 0, 0, time.UTC),
	} {
		require.NoError(t, s.AddClassStart(ctx, compensation.ClassStart{StudentID: "s1", InstructorID: "ins-a", At: ts}))
	}
	require.NoError(t, s.AddClassStart(ctx, compensation.ClassStart{StudentID: "s2", InstructorID: "ins-b", At: at(16, 14, 0)}))

	mine, err := s.ClassStartsByInstructor(ctx, "ins-a", april())
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, at(15, 14, 0).Equal(mine[1].At))

	all, err := s.ClassStartsByStudents(ctx, []compensation.StudentID{"s1", "s2"}, april())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_RuleSetPrecedence(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rs, err := s.RuleSet(ctx, "ins-a")
	require.NoError(t, err)
	assert.Nil(t, rs, "nothing configured")

	_, err = s.SaveRuleSetJSON(ctx, factory.DefaultRulesJSON())
	require.NoError(t, err)
	_, err = s.SaveRuleSetJSON(ctx, factory.InstructorRulesJSON("ins-a", 10))
	require.NoError(t, err)

	a, err := s.RuleSet(ctx, "ins-a")
	require.NoError(t, err)
	assert.Equal(t, 10, a.ExcusedMinutes)

	b, err := s.RuleSet(ctx, "ins-b")
	require.NoError(t, err)
	assert.Equal(t, 3, b.ExcusedMinutes)

	_, err = s.SaveRuleSetJSON(ctx, `{"excused_minutes": -5}`)
	assert.True(t, errors.Is(err, generic.ErrInvalidRuleSet))
}

func TestStore_Rates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRateTableJSON(ctx, factory.DefaultRatesJSON()))

	rate, ok, err := s.MonthlyRate(ctx, "standard")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(900).Equal(rate))

	_, ok, err = s.MonthlyRate(ctx, "gold")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SuppressionsBonusesPayments(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	apr := func(d int) generic.Date { return generic.NewDate(2025, time.April, d) }

	_, err := s.AddWaiver(ctx, compensation.Waiver{InstructorID: "ins-a", Kind: compensation.DeductionLateness, Date: apr(3)})
	require.NoError(t, err)
	_, err = s.AddWaiver(ctx, compensation.Waiver{InstructorID: "ins-a", Kind: compensation.DeductionAbsence, Date: generic.NewDate(2025, time.May, 3)})
	require.NoError(t, err)
	_, err = s.AddPermission(ctx, compensation.PermissionGrant{InstructorID: "ins-a", Date: apr(9), Reason: "clinic"})
	require.NoError(t, err)

	waivers, err := s.Waivers(ctx, "ins-a", april())
	require.NoError(t, err)
	require.Len(t, waivers, 1)
	assert.Equal(t, apr(3), waivers[0].Date)

	grants, err := s.Permissions(ctx, "ins-a", april())
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "clinic", grants[0].Reason)

	id, err := s.SaveQualityBonus(ctx, compensation.QualityBonus{InstructorID: "ins-a", WeekStart: apr(7), Amount: decimal.NewFromInt(100), ManagerApproved: true})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = s.SaveManualBonus(ctx, compensation.ManualBonus{InstructorID: "ins-a", Amount: decimal.RequireFromString("25.5"), CreatedAt: at(20, 10, 0)})
	require.NoError(t, err)

	quality, err := s.QualityBonuses(ctx, "ins-a", april())
	require.NoError(t, err)
	require.Len(t, quality, 1)
	assert.True(t, quality[0].ManagerApproved)

	manual, err := s.ManualBonuses(ctx, "ins-a", april())
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.True(t, decimal.RequireFromString("25.5").Equal(manual[0].Amount))

	paid, err := s.IsPaid(ctx, "ins-a", "2025-04")
	require.NoError(t, err)
	assert.False(t, paid)
	require.NoError(t, s.SetPaid(ctx, "ins-a", "2025-04", true))
	paid, err = s.IsPaid(ctx, "ins-a", "2025-04")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestStore_BacksTheEngine(t *testing.T) {
	// GIVEN: The standard package at 900 and ten taught days in April
	// WHEN: Computing through the engine on top of SQLite
	// THEN: Base salary is 10 x 34.62

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveInstructor(ctx, compensation.Instructor{ID: "ins-a", Name: "Abebe"}))
	require.NoError(t, s.SaveRateTableJSON(ctx, factory.DefaultRatesJSON()))
	require.NoError(t, s.SaveStudent(ctx, compensation.Student{
		ID: "s1", Name: "Liya", Package: "standard",
		TimeSlot: generic.NewClock(14, 0), Instructor: "ins-a",
	}))
	for _, d := range []int{1, 2, 3, 4, 5, 7, 8, 9, 10, 11} {
		require.NoError(t, s.AddClassStart(ctx, compensation.ClassStart{StudentID: "s1", InstructorID: "ins-a", At: at(d, 14, 0)}))
	}

	e, err := compensation.New(compensation.SourcesFrom(s),
		compensation.WithClock(func() time.Time { return at(11, 18, 0) }))
	require.NoError(t, err)

	r, err := e.ComputeCompensation(ctx, "ins-a", april())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("346.20").Equal(r.BaseSalary))
	assert.Equal(t, 10, r.TeachingDays)
}
