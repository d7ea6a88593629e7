package compensation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

// oneStudent builds an assignment covering April with a 14:00 slot.
func oneStudent(signals ...time.Time) []compensation.StudentAssignment {
	st := student("s1", insA, "all days")
	sa := compensation.StudentAssignment{
		Student: st,
		Intervals: []compensation.OwnershipInterval{{
			StudentID:    st.ID,
			InstructorID: insA,
			Period:       april(),
			TimeSlot:     st.TimeSlot,
			DayPattern:   st.DayPattern,
			Package:      stdPkg,
			MonthlyRate:  dec("900"),
			DailyRate:    dec("34.62"),
		}},
	}
	for _, at := range signals {
		sa.Signals = append(sa.Signals, compensation.ClassStart{StudentID: st.ID, InstructorID: insA, At: at})
	}
	return []compensation.StudentAssignment{sa}
}

// =============================================================================
// LATENESS
// =============================================================================

func TestLateness_TierExample(t *testing.T) {
	// GIVEN: 3 excused minutes, [4,7] -> 10%, base lateness 30
	// WHEN: Signals arrive 5, 2 and 9 minutes late with only the first tier configured
	// THEN: round(30 * 10%) = 3 for the 5-minute signal, nothing for the others

	rules := standardRules()
	rules.Tiers = rules.Tiers[:1]
	engine := compensation.NewLatenessEngine(time.UTC)

	out := engine.Evaluate(oneStudent(at(1, 14, 5), at(2, 14, 2), at(3, 14, 9)), rules, nil)

	assert.True(t, dec("3").Equal(out.Total))
	require.Len(t, out.Entries, 1)
	entry := out.Entries[0]
	assert.Equal(t, apr(1), entry.Date)
	assert.Equal(t, 5, entry.Minutes)
	assert.Equal(t, "minor", entry.Tier)
	assert.Equal(t, generic.NewClock(14, 0), entry.Scheduled)
	assert.Equal(t, at(1, 14, 5), entry.Actual)
}

func TestLateness_EarliestSignalOfTheDayCounts(t *testing.T) {
	// GIVEN: On Apr 1 the class started on time; a later restart was 40 minutes late
	// THEN: Only the earliest signal is judged

	engine := compensation.NewLatenessEngine(time.UTC)
	out := engine.Evaluate(oneStudent(at(1, 14, 40), at(1, 14, 0)), standardRules(), nil)

	assert.True(t, out.Total.IsZero())
	assert.Empty(t, out.Entries)
}

func TestLateness_SecondsAreTruncated(t *testing.T) {
	// 14:03:59 is 3 whole minutes late, still excused.
	engine := compensation.NewLatenessEngine(time.UTC)
	late := at(1, 14, 3).Add(59 * time.Second)

	out := engine.Evaluate(oneStudent(late), standardRules(), nil)
	assert.Empty(t, out.Entries)
}

func TestLateness_WaiverSkipsTheDate(t *testing.T) {
	engine := compensation.NewLatenessEngine(time.UTC)
	waived := map[generic.Date]bool{apr(1): true}

	out := engine.Evaluate(oneStudent(at(1, 14, 30), at(2, 14, 30)), standardRules(), waived)

	require.Len(t, out.Entries, 1)
	assert.Equal(t, apr(2), out.Entries[0].Date)
	assert.True(t, dec("15").Equal(out.Total), "30 minutes is severe: 50% of 30")
}

func TestLateness_NonDecreasingStepFunction(t *testing.T) {
	// GIVEN: Tiers 4-7 (10%), 8-15 (25%), 16-60 (50%) and 3 excused minutes
	// WHEN: Evaluating every lateness from 0 to 60 minutes
	// THEN: Zero at or below the threshold, never decreasing inside the tiers

	rules := standardRules()
	engine := compensation.NewLatenessEngine(time.UTC)

	prev := decimal.Zero
	for minutes := 0; minutes <= 60; minutes++ {
		signal := at(1, 14, 0).Add(time.Duration(minutes) * time.Minute)
		out := engine.Evaluate(oneStudent(signal), rules, nil)

		if minutes <= rules.ExcusedMinutes {
			assert.True(t, out.Total.IsZero(), "minute %d", minutes)
		}
		assert.True(t, out.Total.GreaterThanOrEqual(prev), "minute %d: %s < %s", minutes, out.Total, prev)
		prev = out.Total
	}
	assert.True(t, dec("15").Equal(prev))
}

func TestLateness_MissingConfigurationWarns(t *testing.T) {
	engine := compensation.NewLatenessEngine(time.UTC)

	t.Run("no rule set", func(t *testing.T) {
		out := engine.Evaluate(oneStudent(at(1, 14, 30)), nil, nil)
		assert.True(t, out.Total.IsZero())
		assert.Equal(t, []string{compensation.WarnNoRuleSet}, kinds(out.Warnings))
	})

	t.Run("no tiers", func(t *testing.T) {
		rules := standardRules()
		rules.Tiers = nil
		out := engine.Evaluate(oneStudent(at(1, 14, 30)), rules, nil)
		assert.True(t, out.Total.IsZero())
		assert.Equal(t, []string{compensation.WarnNoTiers}, kinds(out.Warnings))
	})

	t.Run("no package base", func(t *testing.T) {
		rules := standardRules()
		rules.Packages = nil
		out := engine.Evaluate(oneStudent(at(1, 14, 30)), rules, nil)
		assert.True(t, out.Total.IsZero())
		assert.Equal(t, []string{compensation.WarnMissingBase}, kinds(out.Warnings))
	})

	t.Run("no time slot", func(t *testing.T) {
		sas := oneStudent(at(1, 14, 30))
		sas[0].Intervals[0].TimeSlot = generic.NoClock
		out := engine.Evaluate(sas, standardRules(), nil)
		assert.Empty(t, out.Entries)
		assert.Equal(t, []string{compensation.WarnMissingTimeSlot}, kinds(out.Warnings))
	})

	t.Run("slot never set", func(t *testing.T) {
		// A zero-value slot is missing, not midnight.
		sas := oneStudent(at(1, 0, 20))
		sas[0].Intervals[0].TimeSlot = compensation.OwnershipInterval{}.TimeSlot
		out := engine.Evaluate(sas, standardRules(), nil)
		assert.Empty(t, out.Entries)
		assert.Equal(t, []string{compensation.WarnMissingTimeSlot}, kinds(out.Warnings))
	})

	t.Run("no rule set and no classes", func(t *testing.T) {
		out := engine.Evaluate(oneStudent(), nil, nil)
		assert.Equal(t, []string{compensation.WarnNoRuleSet}, kinds(out.Warnings))
	})
}

func TestLateness_UsesEngineTimeZone(t *testing.T) {
	// GIVEN: Slot 14:00 local in UTC+3; the signal is 11:10 UTC = 14:10 local
	// THEN: 10 minutes late, moderate tier
	eat := time.FixedZone("EAT", 3*60*60)
	engine := compensation.NewLatenessEngine(eat)

	out := engine.Evaluate(oneStudent(at(1, 11, 10)), standardRules(), nil)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, 10, out.Entries[0].Minutes)
	assert.Equal(t, "moderate", out.Entries[0].Tier)
}

// =============================================================================
// ABSENCE
// =============================================================================

func TestAbsence_SuppressionRules(t *testing.T) {
	// GIVEN: An every-day student, today is Apr 10, base absence 50
	//   - Apr 1, 2: class held
	//   - Apr 3: permission granted
	//   - Apr 4: absence waiver
	//   - Apr 5: a substitute taught the student
	//   - Apr 6: Sunday
	// WHEN: Evaluating April
	// THEN: Apr 7, 8, 9, 10 are charged; nothing after today

	today := func() time.Time { return at(10, 18, 0) }
	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, today)

	sas := oneStudent(at(1, 14, 0), at(2, 14, 0))
	attended := compensation.AttendanceIndex([]compensation.ClassStart{
		{StudentID: "s1", InstructorID: insA, At: at(1, 14, 0)},
		{StudentID: "s1", InstructorID: insA, At: at(2, 14, 0)},
		{StudentID: "s1", InstructorID: insB, At: at(5, 14, 0)},
	}, time.UTC)

	out := engine.Evaluate(compensation.AbsenceInput{
		Assignments: sas,
		Period:      april(),
		Rules:       standardRules(),
		Waived:      map[generic.Date]bool{apr(4): true},
		Permitted:   map[generic.Date]bool{apr(3): true},
		Attended:    attended,
	})

	var dates []generic.Date
	for _, e := range out.Entries {
		dates = append(dates, e.Date)
		assert.True(t, dec("50").Equal(e.Amount))
	}
	assert.Equal(t, []generic.Date{apr(7), apr(8), apr(9), apr(10)}, dates)
	assert.True(t, dec("200").Equal(out.Total))
}

func TestAbsence_NoChargesPastReassignmentBoundary(t *testing.T) {
	// GIVEN: A owned s1 only until Apr 14, and no class was ever held
	// THEN: Absences stop at Apr 14 (12 working days: Apr 1-14 minus two Sundays)

	sas := oneStudent()
	sas[0].Intervals[0].Period = generic.Period{Start: apr(1), End: apr(14)}
	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, fixedClock)

	out := engine.Evaluate(compensation.AbsenceInput{
		Assignments: sas,
		Period:      april(),
		Rules:       standardRules(),
	})

	require.Len(t, out.Entries, 12)
	assert.Equal(t, apr(14), out.Entries[len(out.Entries)-1].Date)
}

func TestAbsence_MultipleStudentsSameDayNoCap(t *testing.T) {
	a := oneStudent()[0]
	b := oneStudent()[0]
	b.Student.ID, b.Intervals[0].StudentID = "s2", "s2"
	one := generic.Period{Start: apr(1), End: apr(1)}
	a.Intervals[0].Period, b.Intervals[0].Period = one, one

	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, fixedClock)
	out := engine.Evaluate(compensation.AbsenceInput{
		Assignments: []compensation.StudentAssignment{a, b},
		Period:      one,
		Rules:       standardRules(),
	})

	assert.Len(t, out.Entries, 2)
	assert.True(t, dec("100").Equal(out.Total))
}

func TestAbsence_UnresolvedPatternFallsBackToWorkweek(t *testing.T) {
	// GIVEN: An unparseable pattern and one class held on Monday Apr 7
	// WHEN: Evaluating Apr 7-12
	// THEN: Only Tue-Fri are charged; Saturday is outside the workweek

	sas := oneStudent()
	sas[0].Intervals[0].DayPattern = compensation.ParseDayPattern("whenever")
	week := generic.Period{Start: apr(7), End: apr(12)}
	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, fixedClock)

	out := engine.Evaluate(compensation.AbsenceInput{
		Assignments: sas,
		Period:      week,
		Rules:       standardRules(),
		Attended: compensation.AttendanceIndex([]compensation.ClassStart{
			{StudentID: "s1", InstructorID: insA, At: at(7, 14, 0)},
		}, time.UTC),
	})

	var dates []generic.Date
	for _, e := range out.Entries {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []generic.Date{apr(8), apr(9), apr(10), apr(11)}, dates)
}

func TestAbsence_AsOfOverridesTheClock(t *testing.T) {
	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, fixedClock)
	out := engine.Evaluate(compensation.AbsenceInput{
		Assignments: oneStudent(),
		Period:      april(),
		Rules:       standardRules(),
		AsOf:        apr(3),
	})
	assert.Len(t, out.Entries, 3)
}

func TestAbsence_MissingRuleSetIsReported(t *testing.T) {
	// GIVEN: An owned student who never had a class, and no rule set
	// THEN: Nothing is charged and the gap is reported

	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, fixedClock)
	out := engine.Evaluate(compensation.AbsenceInput{Assignments: oneStudent(), Period: april()})

	assert.True(t, out.Total.IsZero())
	assert.Equal(t, []string{compensation.WarnNoRuleSet}, kinds(out.Warnings))

	out = engine.Evaluate(compensation.AbsenceInput{Period: april()})
	assert.Empty(t, out.Warnings, "nobody to charge, nothing to report")
}

func TestAbsence_FuturePeriodIsNeverCharged(t *testing.T) {
	engine := compensation.NewAbsenceEngine(compensation.DefaultCalendar(), time.UTC, func() time.Time { return at(1, 0, 0).AddDate(0, -1, 0) })
	out := engine.Evaluate(compensation.AbsenceInput{Assignments: oneStudent(), Period: april(), Rules: standardRules()})
	assert.Empty(t, out.Entries)
	assert.True(t, out.Total.IsZero())
}

// =============================================================================
// BONUSES
// =============================================================================

func TestBonusAggregator_SumsApprovedAndManualInPeriod(t *testing.T) {
	s := newStore()
	s.AddQualityBonus(compensation.QualityBonus{ID: "q1", InstructorID: insA, WeekStart: apr(7), Amount: dec("100"), ManagerApproved: true})
	s.AddQualityBonus(compensation.QualityBonus{ID: "q2", InstructorID: insA, WeekStart: apr(14), Amount: dec("50")})
	s.AddQualityBonus(compensation.QualityBonus{ID: "q3", InstructorID: insA, WeekStart: generic.NewDate(2025, time.March, 31), Amount: dec("70"), ManagerApproved: true})
	s.AddQualityBonus(compensation.QualityBonus{ID: "q4", InstructorID: insB, WeekStart: apr(7), Amount: dec("80"), ManagerApproved: true})
	s.AddManualBonus(compensation.ManualBonus{ID: "m1", InstructorID: insA, Amount: dec("25.50"), CreatedAt: at(20, 11, 0)})
	s.AddManualBonus(compensation.ManualBonus{ID: "m2", InstructorID: insA, Amount: dec("40"), CreatedAt: time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)})

	total, entries, err := compensation.NewBonusAggregator(s, time.UTC).Aggregate(context.Background(), insA, april())
	require.NoError(t, err)

	assert.True(t, dec("125.50").Equal(total))
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[0].ID)
	assert.Equal(t, compensation.BonusQuality, entries[0].Source)
	assert.Equal(t, "m1", entries[1].ID)
	assert.Equal(t, compensation.BonusManual, entries[1].Source)
}
