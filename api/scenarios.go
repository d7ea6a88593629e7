/*
scenarios.go - Demo dataset loaders for testing and demonstrations

PURPOSE:

	Provides pre-built datasets that populate the database with a month of
	realistic tutoring activity. Each scenario creates instructors,
	students, rule sets, rates and class-start signals that demonstrate one
	part of the compensation pipeline.

AVAILABLE SCENARIOS:

	standard-month:          Two instructors, every class held on time
	mid-month-reassignment:  A student changes instructor on the 15th
	late-and-absent:         Tiered lateness, absences, waivers, leave, bonuses
	unrecorded-ownership:    Signals for a student nobody owns on record

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Store the default rule set and rate table via the factory presets
 3. Create instructors and students
 4. Generate class-start signals for every expected date
 5. Record reassignments and adjustments through the engine and store
 6. Clear the result cache

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "late-and-absent"}

	GET /api/compensation?month=2025-04

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Compensation endpoints
  - factory/rules.go: Rule-set presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/factory"
	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/logger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-month",
		Name:        "Standard Month",
		Description: "Two instructors, three students, every expected class held on time",
		Category:    "earnings",
	},
	{
		ID:          "mid-month-reassignment",
		Name:        "Mid-Month Reassignment",
		Description: "A student moves from Abebe to Hana on the 15th; each is paid for their half",
		Category:    "ownership",
	},
	{
		ID:          "late-and-absent",
		Name:        "Late and Absent",
		Description: "Tiered lateness, missed classes, a waiver, approved leave and bonuses",
		Category:    "deductions",
	},
	{
		ID:          "unrecorded-ownership",
		Name:        "Unrecorded Ownership",
		Description: "Class starts for a student with no assignment on record",
		Category:    "ownership",
	},
}

// Demo data lives in April 2025.
var scenarioMonth = generic.MonthPeriod(generic.NewDate(2025, time.April, 1))

const (
	insAbebe compensation.InstructorID = "ins-abebe"
	insHana  compensation.InstructorID = "ins-hana"

	stuLiya  compensation.StudentID = "stu-liya"
	stuDawit compensation.StudentID = "stu-dawit"
	stuMeron compensation.StudentID = "stu-meron"
	stuSelam compensation.StudentID = "stu-selam"
)

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"standard-month":         h.loadStandardMonthScenario,
		"mid-month-reassignment": h.loadMidMonthReassignmentScenario,
		"late-and-absent":        h.loadLateAndAbsentScenario,
		"unrecorded-ownership":   h.loadUnrecordedOwnershipScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if _, known := h.scenarioLoaders()[req.ScenarioID]; !known {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"scenario": req.ScenarioID,
		"from":     scenarioMonth.Start,
		"to":       scenarioMonth.End,
	})
}

// ResetDatabase clears all data and the result cache.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.Engine.InvalidateAll()
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := h.scenarioLoaders()[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.Engine.InvalidateAll()
	if err := h.seedConfiguration(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	// Loaders write through the store directly; drop anything computed meanwhile.
	h.Engine.InvalidateAll()
	h.currentScenario = id
	h.log.Info(ctx, "scenario loaded", logger.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadStandardMonthScenario: everyone teaches every expected class on time.
//
//	Abebe: Liya (standard, daily 14:00), Dawit (premium, MWF 16:00)
//	Hana:  Meron (standard, Tue/Thu/Sat 10:00)
func (h *Handler) loadStandardMonthScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	for _, c := range []struct {
		student compensation.StudentID
		ins     compensation.InstructorID
	}{
		{stuLiya, insAbebe},
		{stuDawit, insAbebe},
		{stuMeron, insHana},
	} {
		if err := h.teach(ctx, c.student, c.ins, scenarioMonth, teachOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// loadMidMonthReassignmentScenario: Liya moves to Hana on April 15. Abebe is
// paid for Liya up to the 14th, Hana from the 15th, with a premium rate
// frozen on the reassignment.
func (h *Handler) loadMidMonthReassignmentScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	firstHalf := generic.Period{Start: scenarioMonth.Start, End: generic.NewDate(2025, time.April, 14)}
	secondHalf := generic.Period{Start: generic.NewDate(2025, time.April, 15), End: scenarioMonth.End}

	if err := h.teach(ctx, stuLiya, insAbebe, firstHalf, teachOptions{}); err != nil {
		return err
	}
	rate := decimal.NewFromInt(1000)
	changedAt := secondHalf.Start.Start(h.Engine.Location()).Add(9 * time.Hour)
	if _, err := h.Engine.RecordReassignment(ctx, compensation.ReassignmentEvent{
		StudentID:     stuLiya,
		OldInstructor: insAbebe,
		NewInstructor: insHana,
		ChangedAt:     changedAt,
		Reason:        "schedule conflict",
		Snapshot:      compensation.AssignmentSnapshot{MonthlyRate: &rate},
	}); err != nil {
		return err
	}
	if err := h.teach(ctx, stuLiya, insHana, secondHalf, teachOptions{}); err != nil {
		return err
	}

	if err := h.teach(ctx, stuDawit, insAbebe, scenarioMonth, teachOptions{}); err != nil {
		return err
	}
	return h.teach(ctx, stuMeron, insHana, scenarioMonth, teachOptions{})
}

// loadLateAndAbsentScenario exercises every deduction and bonus input.
func (h *Handler) loadLateAndAbsentScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	if _, err := h.Store.SaveRuleSetJSON(ctx, factory.InstructorRulesJSON(string(insHana), 5)); err != nil {
		return err
	}

	day := func(d int) generic.Date { return generic.NewDate(2025, time.April, d) }

	if err := h.teach(ctx, stuLiya, insAbebe, scenarioMonth, teachOptions{
		late: map[generic.Date]int{day(2): 5, day(3): 20, day(10): 9},
		skip: map[generic.Date]bool{day(8): true, day(9): true},
	}); err != nil {
		return err
	}
	if err := h.teach(ctx, stuDawit, insAbebe, scenarioMonth, teachOptions{
		skip: map[generic.Date]bool{day(9): true},
	}); err != nil {
		return err
	}
	if err := h.teach(ctx, stuMeron, insHana, scenarioMonth, teachOptions{
		late: map[generic.Date]int{day(1): 4, day(3): 8},
	}); err != nil {
		return err
	}

	if _, err := h.Store.AddWaiver(ctx, compensation.Waiver{
		InstructorID: insAbebe, Kind: compensation.DeductionLateness, Date: day(3), Reason: "traffic closure",
	}); err != nil {
		return err
	}
	if _, err := h.Store.AddPermission(ctx, compensation.PermissionGrant{
		InstructorID: insAbebe, Date: day(9), Reason: "medical appointment",
	}); err != nil {
		return err
	}
	if _, err := h.Store.SaveQualityBonus(ctx, compensation.QualityBonus{
		InstructorID: insAbebe, WeekStart: day(7), Amount: decimal.NewFromInt(200), ManagerApproved: true,
	}); err != nil {
		return err
	}
	if _, err := h.Store.SaveQualityBonus(ctx, compensation.QualityBonus{
		InstructorID: insHana, WeekStart: day(7), Amount: decimal.NewFromInt(200), ManagerApproved: false,
	}); err != nil {
		return err
	}
	_, err := h.Store.SaveManualBonus(ctx, compensation.ManualBonus{
		InstructorID: insHana,
		Amount:       decimal.NewFromInt(150),
		Reason:       "covered an extra group session",
		CreatedAt:    day(18).Start(h.Engine.Location()).Add(12 * time.Hour),
	})
	return err
}

// loadUnrecordedOwnershipScenario: Selam has no instructor pointer and no
// reassignment history, yet Hana starts classes with her. What Hana is paid
// depends on the configured fallback policy.
func (h *Handler) loadUnrecordedOwnershipScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}
	if err := h.Store.SaveStudent(ctx, compensation.Student{
		ID:         stuSelam,
		Name:       "Selam Girma",
		Package:    "standard",
		DayPattern: compensation.ParseDayPattern("mon wed"),
		TimeSlot:   generic.NewClock(17, 0),
		Status:     compensation.StatusActive,
	}); err != nil {
		return err
	}

	mid := generic.Period{Start: generic.NewDate(2025, time.April, 7), End: generic.NewDate(2025, time.April, 23)}
	if err := h.teach(ctx, stuSelam, insHana, mid, teachOptions{}); err != nil {
		return err
	}
	return h.teach(ctx, stuMeron, insHana, scenarioMonth, teachOptions{})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedConfiguration(ctx context.Context) error {
	if _, err := h.Store.SaveRuleSetJSON(ctx, factory.DefaultRulesJSON()); err != nil {
		return fmt.Errorf("default rules: %w", err)
	}
	if err := h.Store.SaveRateTableJSON(ctx, factory.DefaultRatesJSON()); err != nil {
		return fmt.Errorf("default rates: %w", err)
	}
	return nil
}

func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, ins := range []compensation.Instructor{
		{ID: insAbebe, Name: "Abebe Kebede"},
		{ID: insHana, Name: "Hana Tesfaye"},
	} {
		if err := h.Store.SaveInstructor(ctx, ins); err != nil {
			return err
		}
	}

	students := []compensation.Student{
		{ID: stuLiya, Name: "Liya Alemu", Package: "standard", DayPattern: compensation.ParseDayPattern("all days"),
			TimeSlot: generic.NewClock(14, 0), Status: compensation.StatusActive, Instructor: insAbebe},
		{ID: stuDawit, Name: "Dawit Bekele", Package: "premium", DayPattern: compensation.ParseDayPattern("mwf"),
			TimeSlot: generic.NewClock(16, 0), Status: compensation.StatusActive, Instructor: insAbebe},
		{ID: stuMeron, Name: "Meron Haile", Package: "standard", DayPattern: compensation.ParseDayPattern("tts"),
			TimeSlot: generic.NewClock(10, 0), Status: compensation.StatusActive, Instructor: insHana},
	}
	for _, st := range students {
		if err := h.Store.SaveStudent(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

type teachOptions struct {
	late map[generic.Date]int // minutes late per date
	skip map[generic.Date]bool
}

// teach records a class start for every date in period the student's
// pattern expects, at the student's time slot plus any lateness.
func (h *Handler) teach(ctx context.Context, id compensation.StudentID, ins compensation.InstructorID, period generic.Period, opts teachOptions) error {
	students, err := h.Store.GetStudents(ctx, []compensation.StudentID{id})
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return fmt.Errorf("%w: %s", generic.ErrStudentNotFound, id)
	}
	st := students[0]

	cal, loc := h.Engine.Calendar(), h.Engine.Location()
	for _, d := range cal.ExpectedDates(st.DayPattern, period) {
		if opts.skip[d] {
			continue
		}
		offset := time.Duration(st.TimeSlot.Minutes()+opts.late[d]) * time.Minute
		if err := h.Store.AddClassStart(ctx, compensation.ClassStart{
			StudentID:    id,
			InstructorID: ins,
			At:           d.Start(loc).Add(offset),
		}); err != nil {
			return err
		}
	}
	return nil
}
