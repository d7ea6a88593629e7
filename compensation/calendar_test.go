package compensation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// DAY PATTERN PARSING
// =============================================================================

func TestParseDayPattern(t *testing.T) {
	tests := []struct {
		raw  string
		kind compensation.PatternKind
		days []time.Weekday
	}{
		{"", compensation.PatternNone, nil},
		{"   ", compensation.PatternNone, nil},
		{"All Days", compensation.PatternAllDays, []time.Weekday{0, 1, 2, 3, 4, 5, 6}},
		{" daily ", compensation.PatternAllDays, []time.Weekday{0, 1, 2, 3, 4, 5, 6}},
		{"all   days", compensation.PatternAllDays, []time.Weekday{0, 1, 2, 3, 4, 5, 6}},
		{" MWF ", compensation.PatternFixed, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"tts", compensation.PatternFixedAlt, []time.Weekday{time.Tuesday, time.Thursday, time.Saturday}},
		{"TTHS", compensation.PatternFixedAlt, []time.Weekday{time.Tuesday, time.Thursday, time.Saturday}},
		{"Mon Wed", compensation.PatternExplicit, []time.Weekday{time.Monday, time.Wednesday}},
		{"tue, thu/sat", compensation.PatternExplicit, []time.Weekday{time.Tuesday, time.Thursday, time.Saturday}},
		{"Monday Friday", compensation.PatternExplicit, []time.Weekday{time.Monday, time.Friday}},
		{"weekends please", compensation.PatternUnknown, nil},
		{"mon xyz", compensation.PatternUnknown, nil},
		{",", compensation.PatternUnknown, nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := compensation.ParseDayPattern(tt.raw)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.days, p.Weekdays())
		})
	}
}

func TestDayPattern_TextRoundTrip(t *testing.T) {
	p := compensation.ParseDayPattern("Sat, Tue / thursday")
	assert.Equal(t, "tue thu sat", p.String())

	var back compensation.DayPattern
	require.NoError(t, back.UnmarshalText([]byte(p.String())))
	assert.True(t, p.Equal(back))

	unknown := compensation.ParseDayPattern("whenever")
	assert.Equal(t, "whenever", unknown.String(), "unknown patterns keep their source text")
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestCalendar_WorkingDays_ExcludesRestDay(t *testing.T) {
	// GIVEN: April 2025, 30 days with 4 Sundays
	// WHEN: Counting working days with and without the rest day
	// THEN: 26 without Sundays, 30 with them

	cal := compensation.DefaultCalendar()
	assert.Equal(t, 26, cal.WorkingDays(april()))

	cal.IncludeRestDay = true
	assert.Equal(t, 30, cal.WorkingDays(april()))
}

func TestCalendar_ExpectedDates_FixedPattern(t *testing.T) {
	cal := compensation.DefaultCalendar()
	dates := cal.ExpectedDates(compensation.ParseDayPattern("mwf"), april())

	// Mondays 7,14,21,28; Wednesdays 2,9,16,23,30; Fridays 4,11,18,25
	want := []generic.Date{
		apr(2), apr(4), apr(7), apr(9), apr(11), apr(14), apr(16),
		apr(18), apr(21), apr(23), apr(25), apr(28), apr(30),
	}
	assert.Equal(t, want, dates)
}

func TestCalendar_RestDayWinsOverPattern(t *testing.T) {
	// GIVEN: A student explicitly scheduled on Sundays
	// WHEN: The rest day is excluded
	// THEN: No Sunday is ever expected

	cal := compensation.DefaultCalendar()
	sundays := compensation.WeekdaysPattern(time.Sunday)
	assert.Empty(t, cal.ExpectedDates(sundays, april()))

	cal.IncludeRestDay = true
	assert.Equal(t, []generic.Date{apr(6), apr(13), apr(20), apr(27)}, cal.ExpectedDates(sundays, april()))
}

func TestCalendar_CustomRestDay(t *testing.T) {
	cal := compensation.Calendar{RestDay: time.Friday, UnknownAsMissing: true}
	assert.Equal(t, 26, cal.WorkingDays(april()), "April 2025 also has four Fridays")
	assert.False(t, cal.Expects(compensation.NoPattern, apr(4)))
	assert.True(t, cal.Expects(compensation.NoPattern, apr(6)))
}

func TestCalendar_UnknownPatternPolicy(t *testing.T) {
	unknown := compensation.ParseDayPattern("after school")

	// GIVEN: Unknown patterns treated like missing ones
	// THEN: Every working day is expected
	lenient := compensation.DefaultCalendar()
	assert.Equal(t,
		lenient.ExpectedDates(compensation.NoPattern, april()),
		lenient.ExpectedDates(unknown, april()))

	// GIVEN: Unknown patterns resolving to nothing
	// THEN: No date is expected, while a missing pattern still falls back
	strict := compensation.DefaultCalendar()
	strict.UnknownAsMissing = false
	assert.Empty(t, strict.ExpectedDates(unknown, april()))
	assert.Len(t, strict.ExpectedDates(compensation.NoPattern, april()), 26)
}

func TestCalendar_WorkweekFallbackWithSignals(t *testing.T) {
	cal := compensation.DefaultCalendar()
	unknown := compensation.ParseDayPattern("flexible")

	assert.True(t, cal.ExpectsWithFallback(unknown, apr(7), true), "Monday")
	assert.False(t, cal.ExpectsWithFallback(unknown, apr(5), true), "Saturday is outside the workweek")
	assert.True(t, cal.ExpectsWithFallback(unknown, apr(5), false), "without signals the normal policy applies")
	assert.False(t, cal.ExpectsWithFallback(compensation.ParseDayPattern("mwf"), apr(8), true), "resolved patterns ignore the fallback")
}

// =============================================================================
// RATES
// =============================================================================

func TestRateResolver_DailyRate(t *testing.T) {
	// GIVEN: Package "standard" at 900 a month and a 26 working-day month
	// WHEN: Deriving the daily rate
	// THEN: 900 / 26 = 34.615... rounds to 34.62

	s := newStore()
	rates := compensation.NewRateResolver(s, compensation.DefaultCalendar())

	monthly, warn, err := rates.Monthly(context.Background(), stdPkg)
	require.NoError(t, err)
	assert.Nil(t, warn)
	assert.True(t, dec("34.62").Equal(rates.Daily(monthly, april())))
}

func TestRateResolver_UnknownPackage(t *testing.T) {
	rates := compensation.NewRateResolver(newStore(), compensation.DefaultCalendar())

	monthly, warn, err := rates.Monthly(context.Background(), "premium")
	require.NoError(t, err, "missing configuration is never an error")
	assert.True(t, monthly.IsZero())
	require.NotNil(t, warn)
	assert.Equal(t, compensation.WarnMissingRate, warn.Kind)
	assert.Equal(t, compensation.PackageID("premium"), warn.Package)
}

func TestRateResolver_NoWorkingDays(t *testing.T) {
	rates := compensation.NewRateResolver(newStore(), compensation.DefaultCalendar())
	sunday := generic.Period{Start: apr(6), End: apr(6)}
	assert.True(t, rates.Daily(dec("900"), sunday).IsZero())
}
