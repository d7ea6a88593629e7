/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the compensation model from the external API contract. Money leaves the
  API as fixed two-place strings so clients never see float rounding.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

TYPES:
  Directory:
    InstructorDTO, CreateInstructorRequest, StudentDTO, SaveStudentRequest

  Compensation:
    CompensationDTO, BreakdownDTO, BatchDTO, OwnershipIntervalDTO

  Events and adjustments:
    ClassStartRequest, ReassignmentRequest, ReassignmentDTO,
    WaiverRequest, PermissionRequest, QualityBonusRequest,
    ManualBonusRequest, PaymentRequest

  Cache:
    InvalidateRequest, InvalidateResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - compensation/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// DIRECTORY
// =============================================================================

// InstructorDTO represents an instructor in API responses.
type InstructorDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateInstructorRequest is the body for creating an instructor.
type CreateInstructorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Package      string `json:"package"`
	DayPattern   string `json:"day_pattern"`
	TimeSlot     string `json:"time_slot,omitempty"`
	Status       string `json:"status"`
	InstructorID string `json:"instructor_id,omitempty"`
}

// SaveStudentRequest is the body for creating or updating a student.
type SaveStudentRequest struct {
	Name         string `json:"name"`
	Package      string `json:"package"`
	DayPattern   string `json:"day_pattern"`
	TimeSlot     string `json:"time_slot"`
	Status       string `json:"status"`
	InstructorID string `json:"instructor_id"`
}

// =============================================================================
// COMPENSATION
// =============================================================================

// CompensationDTO is one instructor's compensation for a period.
type CompensationDTO struct {
	InstructorID      string       `json:"instructor_id"`
	InstructorName    string       `json:"instructor_name"`
	From              generic.Date `json:"from"`
	To                generic.Date `json:"to"`
	BaseSalary        string       `json:"base_salary"`
	LatenessDeduction string       `json:"lateness_deduction"`
	AbsenceDeduction  string       `json:"absence_deduction"`
	Bonuses           string       `json:"bonuses"`
	Net               string       `json:"net"`
	StudentCount      int          `json:"student_count"`
	TeachingDays      int          `json:"teaching_days"`
	AverageDaily      string       `json:"average_daily"`
	Paid              bool         `json:"paid"`
	ComputedAt        time.Time    `json:"computed_at"`
	Breakdown         BreakdownDTO `json:"breakdown"`
}

// BreakdownDTO is the audit trail behind a CompensationDTO.
type BreakdownDTO struct {
	DailyEarnings []DailyEarningDTO   `json:"daily_earnings"`
	Students      []StudentEarningDTO `json:"students"`
	Lateness      []LatenessDTO       `json:"lateness"`
	Absences      []AbsenceDTO        `json:"absences"`
	Bonuses       []BonusDTO          `json:"bonuses"`
	Warnings      []WarningDTO        `json:"warnings"`
}

type DailyEarningDTO struct {
	Date   generic.Date `json:"date"`
	Amount string       `json:"amount"`
}

type StudentEarningDTO struct {
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name"`
	Package     string         `json:"package"`
	From        generic.Date   `json:"from"`
	To          generic.Date   `json:"to"`
	DailyRate   string         `json:"daily_rate"`
	Days        []generic.Date `json:"days"`
	Total       string         `json:"total"`
	Synthesized bool           `json:"synthesized,omitempty"`
}

type LatenessDTO struct {
	Date        generic.Date `json:"date"`
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	Scheduled   string       `json:"scheduled"`
	Actual      time.Time    `json:"actual"`
	Minutes     int          `json:"minutes"`
	Tier        string       `json:"tier"`
	Amount      string       `json:"amount"`
}

type AbsenceDTO struct {
	Date        generic.Date `json:"date"`
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	Package     string       `json:"package"`
	Amount      string       `json:"amount"`
}

type BonusDTO struct {
	Source string       `json:"source"`
	ID     string       `json:"id"`
	Date   generic.Date `json:"date"`
	Amount string       `json:"amount"`
}

type WarningDTO struct {
	Kind      string `json:"kind"`
	StudentID string `json:"student_id,omitempty"`
	Package   string `json:"package,omitempty"`
	Message   string `json:"message"`
}

// BatchDTO is the response of the all-instructors computation.
type BatchDTO struct {
	From     generic.Date      `json:"from"`
	To       generic.Date      `json:"to"`
	Results  []CompensationDTO `json:"results"`
	Failures []FailureDTO      `json:"failures"`
}

// FailureDTO is one instructor the batch could not compute.
type FailureDTO struct {
	InstructorID string `json:"instructor_id"`
	Error        string `json:"error"`
}

// OwnershipIntervalDTO is one derived ownership interval.
type OwnershipIntervalDTO struct {
	StudentID    string       `json:"student_id"`
	InstructorID string       `json:"instructor_id"`
	From         generic.Date `json:"from"`
	To           generic.Date `json:"to"`
	TimeSlot     string       `json:"time_slot,omitempty"`
	DayPattern   string       `json:"day_pattern"`
	Package      string       `json:"package"`
	MonthlyRate  string       `json:"monthly_rate"`
	DailyRate    string       `json:"daily_rate"`
	Synthesized  bool         `json:"synthesized,omitempty"`
}

// =============================================================================
// EVENTS AND ADJUSTMENTS
// =============================================================================

// ClassStartRequest records one class-start signal.
type ClassStartRequest struct {
	StudentID    string    `json:"student_id"`
	InstructorID string    `json:"instructor_id"`
	At           time.Time `json:"at"`
}

// ReassignmentRequest records an ownership change.
type ReassignmentRequest struct {
	ID            string       `json:"id,omitempty"`
	StudentID     string       `json:"student_id"`
	OldInstructor string       `json:"old_instructor_id,omitempty"`
	NewInstructor string       `json:"new_instructor_id"`
	ChangedAt     time.Time    `json:"changed_at"`
	Reason        string       `json:"reason,omitempty"`
	Snapshot      *SnapshotDTO `json:"snapshot,omitempty"`
}

// SnapshotDTO carries the terms frozen at reassignment time.
type SnapshotDTO struct {
	Package     string           `json:"package,omitempty"`
	DayPattern  string           `json:"day_pattern,omitempty"`
	TimeSlot    string           `json:"time_slot,omitempty"`
	MonthlyRate *decimal.Decimal `json:"monthly_rate,omitempty"`
}

// ReassignmentDTO is a recorded reassignment event.
type ReassignmentDTO struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	OldInstructor string    `json:"old_instructor_id,omitempty"`
	NewInstructor string    `json:"new_instructor_id"`
	ChangedAt     time.Time `json:"changed_at"`
	Reason        string    `json:"reason,omitempty"`
}

// WaiverRequest suppresses one deduction kind on a date.
type WaiverRequest struct {
	InstructorID string       `json:"instructor_id"`
	Kind         string       `json:"kind"`
	Date         generic.Date `json:"date"`
	Reason       string       `json:"reason"`
}

// PermissionRequest records approved leave.
type PermissionRequest struct {
	InstructorID string       `json:"instructor_id"`
	Date         generic.Date `json:"date"`
	Reason       string       `json:"reason"`
}

// QualityBonusRequest records a weekly quality bonus.
type QualityBonusRequest struct {
	ID              string          `json:"id,omitempty"`
	InstructorID    string          `json:"instructor_id"`
	WeekStart       generic.Date    `json:"week_start"`
	Amount          decimal.Decimal `json:"amount"`
	ManagerApproved bool            `json:"manager_approved"`
}

// ManualBonusRequest records a one-off bonus.
type ManualBonusRequest struct {
	InstructorID string          `json:"instructor_id"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
}

// PaymentRequest marks a month paid or unpaid.
type PaymentRequest struct {
	Month string `json:"month"` // YYYY-MM
	Paid  bool   `json:"paid"`
}

// IDResponse returns the id of a created record.
type IDResponse struct {
	ID string `json:"id"`
}

// =============================================================================
// CACHE
// =============================================================================

// InvalidateRequest evicts by instructor, by date range, or both.
type InvalidateRequest struct {
	InstructorID string        `json:"instructor_id,omitempty"`
	From         *generic.Date `json:"from,omitempty"`
	To           *generic.Date `json:"to,omitempty"`
}

// InvalidateResponse reports how many cached results were evicted.
type InvalidateResponse struct {
	Evicted int `json:"evicted"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a demo dataset.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string { return generic.FormatMoney(d) }

func toInstructorDTO(ins compensation.Instructor) InstructorDTO {
	return InstructorDTO{ID: string(ins.ID), Name: ins.Name}
}

func toCompensationDTO(r *compensation.Result) CompensationDTO {
	dto := CompensationDTO{
		InstructorID:      string(r.InstructorID),
		InstructorName:    r.InstructorName,
		From:              r.Period.Start,
		To:                r.Period.End,
		BaseSalary:        money(r.BaseSalary),
		LatenessDeduction: money(r.LatenessDeduction),
		AbsenceDeduction:  money(r.AbsenceDeduction),
		Bonuses:           money(r.Bonuses),
		Net:               money(r.Net),
		StudentCount:      r.StudentCount,
		TeachingDays:      r.TeachingDays,
		AverageDaily:      money(r.AverageDaily),
		Paid:              r.Paid,
		ComputedAt:        r.ComputedAt,
		Breakdown: BreakdownDTO{
			DailyEarnings: make([]DailyEarningDTO, 0, len(r.Breakdown.DailyEarnings)),
			Students:      make([]StudentEarningDTO, 0, len(r.Breakdown.Students)),
			Lateness:      make([]LatenessDTO, 0, len(r.Breakdown.Lateness)),
			Absences:      make([]AbsenceDTO, 0, len(r.Breakdown.Absences)),
			Bonuses:       make([]BonusDTO, 0, len(r.Breakdown.Bonuses)),
			Warnings:      make([]WarningDTO, 0, len(r.Breakdown.Warnings)),
		},
	}

	b := &dto.Breakdown
	for _, d := range r.Breakdown.DailyEarnings {
		b.DailyEarnings = append(b.DailyEarnings, DailyEarningDTO{Date: d.Date, Amount: money(d.Amount)})
	}
	for _, s := range r.Breakdown.Students {
		b.Students = append(b.Students, StudentEarningDTO{
			StudentID:   string(s.StudentID),
			StudentName: s.StudentName,
			Package:     string(s.Package),
			From:        s.Period.Start,
			To:          s.Period.End,
			DailyRate:   money(s.DailyRate),
			Days:        s.Days,
			Total:       money(s.Total),
			Synthesized: s.Synthesized,
		})
	}
	for _, l := range r.Breakdown.Lateness {
		b.Lateness = append(b.Lateness, LatenessDTO{
			Date:        l.Date,
			StudentID:   string(l.StudentID),
			StudentName: l.StudentName,
			Scheduled:   l.Scheduled.String(),
			Actual:      l.Actual,
			Minutes:     l.Minutes,
			Tier:        l.Tier,
			Amount:      money(l.Amount),
		})
	}
	for _, a := range r.Breakdown.Absences {
		b.Absences = append(b.Absences, AbsenceDTO{
			Date:        a.Date,
			StudentID:   string(a.StudentID),
			StudentName: a.StudentName,
			Package:     string(a.Package),
			Amount:      money(a.Amount),
		})
	}
	for _, bo := range r.Breakdown.Bonuses {
		b.Bonuses = append(b.Bonuses, BonusDTO{Source: bo.Source, ID: bo.ID, Date: bo.Date, Amount: money(bo.Amount)})
	}
	for _, w := range r.Breakdown.Warnings {
		b.Warnings = append(b.Warnings, WarningDTO{
			Kind:      w.Kind,
			StudentID: string(w.StudentID),
			Package:   string(w.Package),
			Message:   w.Message,
		})
	}
	return dto
}

func toBatchDTO(batch *compensation.Batch) BatchDTO {
	dto := BatchDTO{
		From:     batch.Period.Start,
		To:       batch.Period.End,
		Results:  make([]CompensationDTO, 0, len(batch.Results)),
		Failures: make([]FailureDTO, 0, len(batch.Failures)),
	}
	for _, r := range batch.Results {
		dto.Results = append(dto.Results, toCompensationDTO(r))
	}
	for _, f := range batch.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{InstructorID: string(f.InstructorID), Error: f.Err.Error()})
	}
	return dto
}

func toOwnershipDTO(iv compensation.OwnershipInterval) OwnershipIntervalDTO {
	dto := OwnershipIntervalDTO{
		StudentID:    string(iv.StudentID),
		InstructorID: string(iv.InstructorID),
		From:         iv.Period.Start,
		To:           iv.Period.End,
		DayPattern:   iv.DayPattern.String(),
		Package:      string(iv.Package),
		MonthlyRate:  money(iv.MonthlyRate),
		DailyRate:    money(iv.DailyRate),
		Synthesized:  iv.Synthesized,
	}
	if iv.TimeSlot.Valid() {
		dto.TimeSlot = iv.TimeSlot.String()
	}
	return dto
}

func toStudentDTO(st compensation.Student) StudentDTO {
	dto := StudentDTO{
		ID:           string(st.ID),
		Name:         st.Name,
		Package:      string(st.Package),
		DayPattern:   st.DayPattern.String(),
		Status:       string(st.Status),
		InstructorID: string(st.Instructor),
	}
	if st.TimeSlot.Valid() {
		dto.TimeSlot = st.TimeSlot.String()
	}
	return dto
}

func toReassignmentDTO(e compensation.ReassignmentEvent) ReassignmentDTO {
	return ReassignmentDTO{
		ID:            e.ID,
		StudentID:     string(e.StudentID),
		OldInstructor: string(e.OldInstructor),
		NewInstructor: string(e.NewInstructor),
		ChangedAt:     e.ChangedAt,
		Reason:        e.Reason,
	}
}
