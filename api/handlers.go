/*
handlers.go - HTTP API handlers for the compensation engine

PURPOSE:
  Exposes the compensation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and
  the SQLite store. Every write that can change a computed result evicts
  the affected cache entries before responding.

ENDPOINTS:
  Instructors:
    GET    /api/instructors                          List instructors
    POST   /api/instructors                          Create or rename an instructor
    GET    /api/instructors/{id}/compensation        One instructor, ?from=&to= or ?month=
    PUT    /api/instructors/{id}/payments            Mark a month paid

  Compensation:
    GET    /api/compensation                         Every instructor, partial failures listed

  Students:
    PUT    /api/students/{id}                        Create or update a student
    GET    /api/students/{id}/ownership              Derived ownership intervals

  Events:
    POST   /api/class-starts                         Record a class-start signal
    POST   /api/reassignments                        Record a reassignment

  Adjustments:
    POST   /api/waivers                              Waive lateness or absence on a date
    POST   /api/permissions                          Approved leave
    POST   /api/bonuses/quality                      Weekly quality bonus
    POST   /api/bonuses/manual                       One-off bonus

  Configuration:
    PUT    /api/rules                                Rule-set JSON document
    PUT    /api/rates                                Package rate table JSON

  Cache:
    POST   /api/cache/invalidate                     By instructor and/or range
    DELETE /api/cache                                Clear everything

PERIODS:
  Query periods are inclusive calendar dates. ?from=YYYY-MM-DD&to=YYYY-MM-DD
  wins; otherwise ?month=YYYY-MM; otherwise the current month in the
  engine time zone.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period, event or rule set
  - 404: Unknown instructor or student
  - 409: Reassignment history contradicts itself
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo dataset loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/factory"
	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/logger"
	"github.com/warp/compensation-engine/store/sqlite"
)

const maxDocumentBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *compensation.Engine
	Rules  *factory.RulesFactory

	log logger.Logger
	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store and engine.
func NewHandler(store *sqlite.Store, engine *compensation.Engine, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Store:  store,
		Engine: engine,
		Rules:  factory.NewRulesFactory(),
		log:    log.Named("api"),
		now:    time.Now,
	}
}

// =============================================================================
// INSTRUCTOR HANDLERS
// =============================================================================

// ListInstructors returns the instructor directory.
func (h *Handler) ListInstructors(w http.ResponseWriter, r *http.Request) {
	instructors, err := h.Store.ListInstructors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instructors", err)
		return
	}

	dtos := make([]InstructorDTO, len(instructors))
	for i, ins := range instructors {
		dtos[i] = toInstructorDTO(ins)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInstructor creates or renames an instructor.
func (h *Handler) CreateInstructor(w http.ResponseWriter, r *http.Request) {
	var req CreateInstructorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	ins := compensation.Instructor{ID: compensation.InstructorID(req.ID), Name: req.Name}
	if err := h.Store.SaveInstructor(r.Context(), ins); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save instructor", err)
		return
	}
	h.Engine.Invalidate(ins.ID)
	writeJSON(w, http.StatusCreated, toInstructorDTO(ins))
}

// GetCompensation computes one instructor's compensation.
func (h *Handler) GetCompensation(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	id := compensation.InstructorID(chi.URLParam(r, "id"))
	result, err := h.Engine.ComputeCompensation(r.Context(), id, period)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(result))
}

// SetPayment marks a month paid or unpaid.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM", err)
		return
	}

	id := compensation.InstructorID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetInstructor(r.Context(), id); err != nil {
		h.writeEngineError(w, r, "Failed to record payment", err)
		return
	}
	if err := h.Store.SetPaid(r.Context(), id, req.Month, req.Paid); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}
	h.Engine.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BATCH
// =============================================================================

// ListCompensation computes every instructor for the period.
func (h *Handler) ListCompensation(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	batch, err := h.Engine.ComputeAllCompensation(r.Context(), period)
	if err != nil {
		h.writeEngineError(w, r, "Failed to compute compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// SaveStudent creates or updates a student. A new instructor on an assigned
// student is recorded as a reassignment effective now, so dates already
// taught stay with the previous holder. Term changes can move money between
// any instructors that ever owned the student, so the whole cache is
// cleared.
func (h *Handler) SaveStudent(w http.ResponseWriter, r *http.Request) {
	var req SaveStudentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st := compensation.Student{
		ID:         compensation.StudentID(chi.URLParam(r, "id")),
		Name:       req.Name,
		Package:    compensation.PackageID(req.Package),
		DayPattern: compensation.ParseDayPattern(req.DayPattern),
		TimeSlot:   generic.NoClock,
		Status:     compensation.StudentStatus(req.Status),
		Instructor: compensation.InstructorID(req.InstructorID),
	}
	if req.TimeSlot != "" {
		slot, err := generic.ParseClock(req.TimeSlot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid time slot", err)
			return
		}
		st.TimeSlot = slot
	}
	switch st.Status {
	case "", compensation.StatusActive, compensation.StatusPending, compensation.StatusInactive:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status), nil)
		return
	}

	existing, err := h.Store.GetStudents(r.Context(), []compensation.StudentID{st.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load student", err)
		return
	}
	if len(existing) == 1 && existing[0].Instructor != "" && existing[0].Instructor != st.Instructor {
		// Ownership only changes forward in time; past dates keep their holder.
		if st.Instructor == "" {
			writeError(w, http.StatusConflict, "an assigned student cannot be unassigned; set status to inactive", nil)
			return
		}
		if _, err := h.Engine.RecordReassignment(r.Context(), compensation.ReassignmentEvent{
			StudentID:     st.ID,
			OldInstructor: existing[0].Instructor,
			NewInstructor: st.Instructor,
			ChangedAt:     h.now(),
			Reason:        "student record update",
		}); err != nil {
			h.writeEngineError(w, r, "Failed to reassign student", err)
			return
		}
	}

	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	h.Engine.InvalidateAll()

	if st.Status == "" {
		st.Status = compensation.StatusActive
	}
	writeJSON(w, http.StatusOK, toStudentDTO(st))
}

// GetOwnership returns the derived ownership intervals of one student.
func (h *Handler) GetOwnership(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	id := compensation.StudentID(chi.URLParam(r, "id"))
	intervals, err := h.Engine.Ownership(r.Context(), id, period)
	if err != nil {
		h.writeEngineError(w, r, "Failed to resolve ownership", err)
		return
	}

	dtos := make([]OwnershipIntervalDTO, len(intervals))
	for i, iv := range intervals {
		dtos[i] = toOwnershipDTO(iv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// RecordClassStart stores a class-start signal. A signal can lift an
// absence charged to another instructor, so every cached result covering
// the signal's date is evicted.
func (h *Handler) RecordClassStart(w http.ResponseWriter, r *http.Request) {
	var req ClassStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.InstructorID == "" || req.At.IsZero() {
		writeError(w, http.StatusBadRequest, "student_id, instructor_id and at are required", nil)
		return
	}

	cs := compensation.ClassStart{
		StudentID:    compensation.StudentID(req.StudentID),
		InstructorID: compensation.InstructorID(req.InstructorID),
		At:           req.At,
	}
	if err := h.Store.AddClassStart(r.Context(), cs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record class start", err)
		return
	}

	day := generic.DateOf(cs.At, h.Engine.Location())
	if _, err := h.Engine.InvalidateRange(generic.Period{Start: day, End: day}); err != nil {
		h.log.Warn(r.Context(), "cache invalidation failed", logger.Error(err))
	}
	w.WriteHeader(http.StatusCreated)
}

// RecordReassignment appends a reassignment event. The engine validates it
// against the student's history and evicts both instructors.
func (h *Handler) RecordReassignment(w http.ResponseWriter, r *http.Request) {
	var req ReassignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	event := compensation.ReassignmentEvent{
		ID:            req.ID,
		StudentID:     compensation.StudentID(req.StudentID),
		OldInstructor: compensation.InstructorID(req.OldInstructor),
		NewInstructor: compensation.InstructorID(req.NewInstructor),
		ChangedAt:     req.ChangedAt,
		Reason:        req.Reason,
	}
	if req.Snapshot != nil {
		snap, err := toSnapshot(*req.Snapshot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid snapshot", err)
			return
		}
		event.Snapshot = snap
	}

	recorded, err := h.Engine.RecordReassignment(r.Context(), event)
	if err != nil {
		h.writeEngineError(w, r, "Failed to record reassignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReassignmentDTO(recorded))
}

func toSnapshot(dto SnapshotDTO) (compensation.AssignmentSnapshot, error) {
	snap := compensation.AssignmentSnapshot{
		Package:     compensation.PackageID(dto.Package),
		DayPattern:  compensation.ParseDayPattern(dto.DayPattern),
		MonthlyRate: dto.MonthlyRate,
	}
	if dto.TimeSlot != "" {
		slot, err := generic.ParseClock(dto.TimeSlot)
		if err != nil {
			return compensation.AssignmentSnapshot{}, err
		}
		snap.TimeSlot = &slot
	}
	return snap, nil
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// CreateWaiver waives lateness or absence deductions on one date.
func (h *Handler) CreateWaiver(w http.ResponseWriter, r *http.Request) {
	var req WaiverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind := compensation.DeductionKind(req.Kind)
	if kind != compensation.DeductionLateness && kind != compensation.DeductionAbsence {
		writeError(w, http.StatusBadRequest, "kind must be lateness or absence", nil)
		return
	}
	if req.InstructorID == "" || req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "instructor_id and date are required", nil)
		return
	}

	id, err := h.Store.AddWaiver(r.Context(), compensation.Waiver{
		InstructorID: compensation.InstructorID(req.InstructorID),
		Kind:         kind,
		Date:         req.Date,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save waiver", err)
		return
	}
	h.Engine.Invalidate(compensation.InstructorID(req.InstructorID))
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// CreatePermission records approved leave.
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InstructorID == "" || req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "instructor_id and date are required", nil)
		return
	}

	id, err := h.Store.AddPermission(r.Context(), compensation.PermissionGrant{
		InstructorID: compensation.InstructorID(req.InstructorID),
		Date:         req.Date,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save permission", err)
		return
	}
	h.Engine.Invalidate(compensation.InstructorID(req.InstructorID))
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// CreateQualityBonus records or re-approves a weekly quality bonus.
func (h *Handler) CreateQualityBonus(w http.ResponseWriter, r *http.Request) {
	var req QualityBonusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InstructorID == "" || req.WeekStart.IsZero() || req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "instructor_id, week_start and a non-negative amount are required", nil)
		return
	}

	id, err := h.Store.SaveQualityBonus(r.Context(), compensation.QualityBonus{
		ID:              req.ID,
		InstructorID:    compensation.InstructorID(req.InstructorID),
		WeekStart:       req.WeekStart,
		Amount:          req.Amount,
		ManagerApproved: req.ManagerApproved,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save bonus", err)
		return
	}
	h.Engine.Invalidate(compensation.InstructorID(req.InstructorID))
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// CreateManualBonus records a one-off bonus.
func (h *Handler) CreateManualBonus(w http.ResponseWriter, r *http.Request) {
	var req ManualBonusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InstructorID == "" {
		writeError(w, http.StatusBadRequest, "instructor_id is required", nil)
		return
	}

	created := h.now()
	if req.CreatedAt != nil {
		created = *req.CreatedAt
	}
	id, err := h.Store.SaveManualBonus(r.Context(), compensation.ManualBonus{
		InstructorID: compensation.InstructorID(req.InstructorID),
		Amount:       req.Amount,
		Reason:       req.Reason,
		CreatedAt:    created,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save bonus", err)
		return
	}
	h.Engine.Invalidate(compensation.InstructorID(req.InstructorID))
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// SaveRules stores a rule-set document. The body is the document itself.
func (h *Handler) SaveRules(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}

	rs, err := h.Store.SaveRuleSetJSON(r.Context(), doc)
	if err != nil {
		h.writeEngineError(w, r, "Failed to save rule set", err)
		return
	}
	if rs.Scope == compensation.ScopeInstructor {
		h.Engine.Invalidate(rs.InstructorID)
	} else {
		h.Engine.InvalidateAll()
	}
	writeJSON(w, http.StatusOK, h.Rules.ToJSON(rs))
}

// SaveRates replaces entries of the package rate table.
func (h *Handler) SaveRates(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}

	if err := h.Store.SaveRateTableJSON(r.Context(), doc); err != nil {
		h.writeEngineError(w, r, "Failed to save rates", err)
		return
	}
	h.Engine.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CACHE HANDLERS
// =============================================================================

// InvalidateCache evicts by instructor, by range, or both.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InstructorID == "" && req.From == nil && req.To == nil {
		writeError(w, http.StatusBadRequest, "instructor_id or from/to is required", nil)
		return
	}

	var evicted int
	if req.InstructorID != "" {
		evicted += h.Engine.Invalidate(compensation.InstructorID(req.InstructorID))
	}
	if req.From != nil || req.To != nil {
		if req.From == nil || req.To == nil {
			writeError(w, http.StatusBadRequest, "from and to must be given together", nil)
			return
		}
		n, err := h.Engine.InvalidateRange(generic.Period{Start: *req.From, End: *req.To})
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
		evicted += n
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Evicted: evicted})
}

// ClearCache empties the result cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InvalidateResponse{Evicted: h.Engine.InvalidateAll()})
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// periodFromQuery resolves ?from=&to=, then ?month=, then the current month.
func (h *Handler) periodFromQuery(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	switch {
	case from != "" || to != "":
		if from == "" || to == "" {
			return generic.Period{}, fmt.Errorf("%w: from and to must be given together", generic.ErrInvalidPeriod)
		}
		start, err := generic.ParseDate(from)
		if err != nil {
			return generic.Period{}, err
		}
		end, err := generic.ParseDate(to)
		if err != nil {
			return generic.Period{}, err
		}
		return generic.NewPeriod(start, end)

	case q.Get("month") != "":
		start, err := generic.ParseDate(q.Get("month") + "-01")
		if err != nil {
			return generic.Period{}, err
		}
		return generic.MonthPeriod(start), nil

	default:
		return generic.MonthPeriod(generic.DateOf(h.now(), h.Engine.Location())), nil
	}
}

// writeEngineError maps domain errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var syntaxErr *json.SyntaxError
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsClientError(err), errors.As(err, &syntaxErr):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsInconsistency(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.log.Error(r.Context(), message, logger.String("path", r.URL.Path), logger.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func readDocument(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return "", false
	}
	return string(body), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
