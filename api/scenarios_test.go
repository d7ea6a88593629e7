/*
scenarios_test.go - Tests for the demo datasets

PURPOSE:
	Each scenario is loaded into an in-memory store and computed for April
	2025. The figures double as end-to-end checks of the pipeline:

	April 2025 has 26 working days (Sundays excluded).
	  standard 900  / 26 = 34.62 per day
	  premium  1300 / 26 = 50.00 per day
	  daily pattern: 26 dates, MWF: 13 dates, Tue/Thu/Sat: 13 dates
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
)

func loadAndCompute(t *testing.T, h *Handler, scenario string) map[compensation.InstructorID]*compensation.Result {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, scenario))

	batch, err := h.Engine.ComputeAllCompensation(ctx, scenarioMonth)
	require.NoError(t, err)
	require.Empty(t, batch.Failures)

	out := make(map[compensation.InstructorID]*compensation.Result, len(batch.Results))
	for _, r := range batch.Results {
		out[r.InstructorID] = r
	}
	return out
}

func TestScenario_StandardMonth(t *testing.T) {
	// GIVEN: Every expected class held on time
	// WHEN: Computing April
	// THEN: Base is rate x expected dates and nothing is deducted

	h := setupTestHandler(t)
	results := loadAndCompute(t, h, "standard-month")
	require.Len(t, results, 2)

	abebe := results[insAbebe]
	assert.Equal(t, "1550.12", abebe.BaseSalary.StringFixed(2), "26 x 34.62 + 13 x 50.00")
	assert.True(t, abebe.LatenessDeduction.IsZero())
	assert.True(t, abebe.AbsenceDeduction.IsZero())
	assert.True(t, abebe.Net.Equal(abebe.BaseSalary))
	assert.Equal(t, 2, abebe.StudentCount)
	assert.Equal(t, 26, abebe.TeachingDays)

	hana := results[insHana]
	assert.Equal(t, "450.06", hana.BaseSalary.StringFixed(2), "13 x 34.62")
	assert.Equal(t, 1, hana.StudentCount)
}

func TestScenario_MidMonthReassignment(t *testing.T) {
	// GIVEN: Liya moves from Abebe to Hana on April 15 at a frozen rate of 1000
	// WHEN: Computing April
	// THEN: Each instructor is paid for their half only

	h := setupTestHandler(t)
	results := loadAndCompute(t, h, "mid-month-reassignment")

	// 12 working days Apr 1-14 at 34.62, plus Dawit
	assert.Equal(t, "1065.44", results[insAbebe].BaseSalary.StringFixed(2))
	// 14 working days Apr 15-30 at 1000 / 26 = 38.46, plus Meron
	assert.Equal(t, "988.50", results[insHana].BaseSalary.StringFixed(2))

	for _, r := range results {
		assert.True(t, r.AbsenceDeduction.IsZero(), "no absence across the handover for %s", r.InstructorID)
	}

	intervals, err := h.Engine.Ownership(context.Background(), stuLiya, scenarioMonth)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, insAbebe, intervals[0].InstructorID)
	assert.Equal(t, insHana, intervals[1].InstructorID)
}

func TestScenario_LateAndAbsent(t *testing.T) {
	// GIVEN: Missed classes on the 8th and 9th, leave on the 9th,
	//        lateness with one waived date, and bonuses
	// WHEN: Computing April
	// THEN: Only the 8th is charged and only approved bonuses count

	h := setupTestHandler(t)
	results := loadAndCompute(t, h, "late-and-absent")

	abebe := results[insAbebe]
	require.Len(t, abebe.Breakdown.Absences, 1)
	assert.Equal(t, "2025-04-08", abebe.Breakdown.Absences[0].Date.String())
	assert.Equal(t, "50.00", abebe.AbsenceDeduction.StringFixed(2))
	assert.Equal(t, "200.00", abebe.Bonuses.StringFixed(2))
	assert.True(t, abebe.LatenessDeduction.IsPositive())
	for _, l := range abebe.Breakdown.Lateness {
		assert.NotEqual(t, "2025-04-03", l.Date.String(), "waived date is never penalised")
	}

	hana := results[insHana]
	assert.Equal(t, "150.00", hana.Bonuses.StringFixed(2), "unapproved quality bonus is excluded")
	assert.True(t, hana.AbsenceDeduction.IsZero())
}

func TestScenario_UnrecordedOwnership(t *testing.T) {
	h := setupTestHandler(t)
	results := loadAndCompute(t, h, "unrecorded-ownership")

	hana := results[insHana]
	assert.Equal(t, 2, hana.StudentCount)

	var synthesized bool
	for _, w := range hana.Breakdown.Warnings {
		if w.Kind == compensation.WarnSynthesized {
			synthesized = true
		}
	}
	assert.True(t, synthesized)
	assert.True(t, results[insAbebe].BaseSalary.IsZero())
}

func TestScenarioEndpoints(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := do(t, router, "GET", "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	assert.Equal(t, "null\n", do(t, router, "GET", "/api/scenarios/current", "").Body.String())

	rec = do(t, router, "POST", "/api/scenarios/load", `{"scenario_id": "standard-month"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "standard-month", decode[ScenarioDTO](t, do(t, router, "GET", "/api/scenarios/current", "")).ID)

	rec = do(t, router, "GET", "/api/compensation?month=2025-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[BatchDTO](t, rec).Results, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, router, "POST", "/api/scenarios/load", `{"scenario_id": "nope"}`).Code)

	require.Equal(t, http.StatusOK, do(t, router, "POST", "/api/scenarios/reset", "").Code)
	assert.Empty(t, decode[[]InstructorDTO](t, do(t, router, "GET", "/api/instructors", "")))
}
