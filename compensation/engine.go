/*
engine.go - Compensation orchestration

PURPOSE:
  Sequences the resolvers and deduction engines for one instructor and one
  period, assembles an immutable Result and writes it through the Cache.

ROUNDING:
  Amounts stay exact decimals while they are combined. Two figures are
  rounded where they are defined:
    - the daily rate, to cents (it is a published unit price)
    - each lateness deduction, to a whole amount (rule semantics)
  Every total on the Result is rounded to cents once, at assembly:

    net = round(base - lateness - absence + bonuses)

BATCH:
  ComputeAllCompensation runs one computation per instructor with bounded
  concurrency and a per-instructor deadline. A failing instructor is logged
  and left out; the batch still returns everyone else.

SEE ALSO:
  - assignment.go: ownership resolution
  - cache.go: invalidation contract
*/
package compensation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/logger"
	"github.com/warp/compensation-engine/metrics"
)

const (
	defaultConcurrency = 8
	defaultTimeout     = 30 * time.Second
)

// Engine computes instructor compensation. It is safe for concurrent use.
type Engine struct {
	src     Sources
	cache   Cache
	log     logger.Logger
	metrics *metrics.Manager

	calendar    Calendar
	loc         *time.Location
	now         func() time.Time
	fallback    FallbackPolicy
	concurrency int
	timeout     time.Duration

	rates       *RateResolver
	assignments *AssignmentResolver
	earnings    *EarningsCalculator
	lateness    *LatenessEngine
	absence     *AbsenceEngine
	bonuses     *BonusAggregator
}

// New creates an Engine. Instructors, Students, History and Signals are
// required; the remaining sources degrade to "nothing configured".
func New(src Sources, opts ...Option) (*Engine, error) {
	switch {
	case src.Instructors == nil:
		return nil, errors.New("compensation: instructor directory is required")
	case src.Students == nil:
		return nil, errors.New("compensation: student directory is required")
	case src.History == nil:
		return nil, errors.New("compensation: reassignment log is required")
	case src.Signals == nil:
		return nil, errors.New("compensation: signal log is required")
	}

	e := &Engine{
		src:         src,
		cache:       NewMemoryCache(),
		log:         logger.Nop(),
		calendar:    DefaultCalendar(),
		loc:         time.UTC,
		now:         time.Now,
		fallback:    FallbackFullPeriod,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.rates = NewRateResolver(src.Rates, e.calendar)
	e.assignments = NewAssignmentResolver(src.Students, src.History, src.Signals, e.rates, e.loc, e.fallback)
	e.earnings = NewEarningsCalculator(e.calendar, e.loc)
	e.lateness = NewLatenessEngine(e.loc)
	e.absence = NewAbsenceEngine(e.calendar, e.loc, e.now)
	e.bonuses = NewBonusAggregator(src.Bonuses, e.loc)
	return e, nil
}

// Calendar returns the calendar policy in use.
func (e *Engine) Calendar() Calendar { return e.calendar }

// Location returns the engine time zone.
func (e *Engine) Location() *time.Location { return e.loc }

// =============================================================================
// SINGLE INSTRUCTOR
// =============================================================================

// ComputeCompensation returns the compensation of id for period, from the
// cache when possible. Unknown instructors fail with ErrInstructorNotFound.
func (e *Engine) ComputeCompensation(ctx context.Context, id InstructorID, period generic.Period) (*Result, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}

	asOf := generic.MinDate(period.End, generic.DateOf(e.now(), e.loc))
	key := CacheKey{Instructor: id, Period: period, AsOf: asOf}
	if r, ok := e.cache.Get(key); ok {
		e.metrics.RecordCacheLookup(true)
		e.metrics.RecordComputation(metrics.OutcomeCacheHit)
		return r, nil
	}
	e.metrics.RecordCacheLookup(false)

	start := time.Now()
	r, err := e.compute(ctx, id, period, asOf)
	e.metrics.ObserveComputation(time.Since(start))
	if err != nil {
		e.metrics.RecordComputation(metrics.OutcomeFailed)
		return nil, err
	}

	e.cache.Put(key, r)
	e.metrics.RecordComputation(metrics.OutcomeComputed)
	return r, nil
}

func (e *Engine) compute(ctx context.Context, id InstructorID, period generic.Period, asOf generic.Date) (*Result, error) {
	instructor, err := e.src.Instructors.GetInstructor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}

	// 1. Ownership
	resolution, err := e.assignments.Resolve(ctx, id, period)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	if err := checkDisjoint(resolution.Assignments); err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	warnings := newWarningSet()
	warnings.add(resolution.Warnings...)

	// 2. Base earnings
	earned := e.earnings.Calculate(resolution.Assignments)

	// 3. Deduction inputs
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	rules, err := e.ruleSet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	lateWaived, absentWaived, err := e.waivers(ctx, id, period)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	permitted, err := e.permissions(ctx, id, period)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}
	attended, err := e.attendance(ctx, resolution.Assignments, period)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}

	// 4. Deductions
	late := e.lateness.Evaluate(resolution.Assignments, rules, lateWaived)
	warnings.add(late.Warnings...)
	absent := e.absence.Evaluate(AbsenceInput{
		Assignments: resolution.Assignments,
		Period:      period,
		Rules:       rules,
		Waived:      absentWaived,
		Permitted:   permitted,
		Attended:    attended,
		AsOf:        asOf,
	})
	warnings.add(absent.Warnings...)

	// 5. Bonuses
	bonus, bonusEntries, err := e.bonuses.Aggregate(ctx, id, period)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", id, err)
	}

	// 6. Payment status, informational only
	paid := false
	if e.src.Payments != nil {
		if paid, err = e.src.Payments.IsPaid(ctx, id, period.MonthKey()); err != nil {
			return nil, fmt.Errorf("compute %s: payment status: %w", id, err)
		}
	}

	e.report(ctx, id, period, warnings.list())

	return &Result{
		InstructorID:      instructor.ID,
		InstructorName:    instructor.Name,
		Period:            period,
		BaseSalary:        generic.RoundMoney(earned.Total),
		LatenessDeduction: generic.RoundMoney(late.Total),
		AbsenceDeduction:  generic.RoundMoney(absent.Total),
		Bonuses:           generic.RoundMoney(bonus),
		Net:               generic.RoundMoney(earned.Total.Sub(late.Total).Sub(absent.Total).Add(bonus)),
		StudentCount:      len(resolution.Assignments),
		TeachingDays:      earned.TeachingDays,
		AverageDaily:      generic.RoundMoney(earned.AverageDaily()),
		Paid:              paid,
		ComputedAt:        e.now(),
		Breakdown: Breakdown{
			DailyEarnings: earned.Daily,
			Students:      earned.Students,
			Lateness:      late.Entries,
			Absences:      absent.Entries,
			Bonuses:       bonusEntries,
			Warnings:      warnings.list(),
		},
	}, nil
}

func (e *Engine) ruleSet(ctx context.Context, id InstructorID) (*RuleSet, error) {
	if e.src.Rules == nil {
		return nil, nil
	}
	rs, err := e.src.Rules.RuleSet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rule set: %w", err)
	}
	return rs, nil
}

func (e *Engine) waivers(ctx context.Context, id InstructorID, period generic.Period) (late, absent map[generic.Date]bool, err error) {
	late, absent = make(map[generic.Date]bool), make(map[generic.Date]bool)
	if e.src.Waivers == nil {
		return late, absent, nil
	}
	ws, err := e.src.Waivers.Waivers(ctx, id, period)
	if err != nil {
		return nil, nil, fmt.Errorf("waivers: %w", err)
	}
	for _, w := range ws {
		if w.InstructorID != id {
			continue
		}
		switch w.Kind {
		case DeductionLateness:
			late[w.Date] = true
		case DeductionAbsence:
			absent[w.Date] = true
		}
	}
	return late, absent, nil
}

func (e *Engine) permissions(ctx context.Context, id InstructorID, period generic.Period) (map[generic.Date]bool, error) {
	out := make(map[generic.Date]bool)
	if e.src.Permissions == nil {
		return out, nil
	}
	grants, err := e.src.Permissions.Permissions(ctx, id, period)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	for _, g := range grants {
		if g.InstructorID == id {
			out[g.Date] = true
		}
	}
	return out, nil
}

// attendance indexes signals from any instructor for the owned students.
func (e *Engine) attendance(ctx context.Context, assignments []StudentAssignment, period generic.Period) (map[StudentID]map[generic.Date]bool, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	ids := make([]StudentID, len(assignments))
	for i, sa := range assignments {
		ids[i] = sa.Student.ID
	}
	signals, err := e.src.Signals.ClassStartsByStudents(ctx, ids, period)
	if err != nil {
		return nil, fmt.Errorf("student class starts: %w", err)
	}
	return AttendanceIndex(signals, e.loc), nil
}

func (e *Engine) report(ctx context.Context, id InstructorID, period generic.Period, warnings []Warning) {
	for _, w := range warnings {
		e.metrics.RecordConfigWarning(w.Kind)
		e.log.Warn(ctx, w.Message,
			logger.String("instructor", string(id)),
			logger.Stringer("period", period),
			logger.String("kind", w.Kind),
			logger.String("student", string(w.StudentID)),
			logger.String("package", string(w.Package)),
		)
	}
}

// checkDisjoint guards the one-owner-per-date invariant.
func checkDisjoint(assignments []StudentAssignment) error {
	for _, sa := range assignments {
		ivs := append([]OwnershipInterval(nil), sa.Intervals...)
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Period.Start.Before(ivs[j].Period.Start) })
		for i := 1; i < len(ivs); i++ {
			if ivs[i].Period.Overlaps(ivs[i-1].Period) {
				return fmt.Errorf("%w: student %s %s and %s",
					generic.ErrOverlappingOwnership, sa.Student.ID, ivs[i-1].Period, ivs[i].Period)
			}
		}
	}
	return nil
}

// =============================================================================
// BATCH
// =============================================================================

// Failure is one instructor the batch could not compute.
type Failure struct {
	InstructorID InstructorID
	Err          error
}

// Batch is the partial-failure tolerant output of ComputeAllCompensation.
type Batch struct {
	Period   generic.Period
	Results  []*Result // directory order
	Failures []Failure
}

// ComputeAllCompensation computes every instructor in the directory.
// Individual failures never fail the batch; only an unreadable directory or
// an invalid period does.
func (e *Engine) ComputeAllCompensation(ctx context.Context, period generic.Period) (*Batch, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("compute all: %w", err)
	}
	instructors, err := e.src.Instructors.ListInstructors(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute all: list instructors: %w", err)
	}

	results := make([]*Result, len(instructors))
	errs := make([]error, len(instructors))
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, ins := range instructors {
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			r, err := e.ComputeCompensation(ictx, ins.ID, period)
			if err != nil {
				failed.Add(1)
				errs[i] = err
				e.log.Error(ctx, "instructor compensation failed",
					logger.String("instructor", string(ins.ID)),
					logger.Stringer("period", period),
					logger.Error(err),
				)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	batch := &Batch{Period: period}
	for i, r := range results {
		if r != nil {
			batch.Results = append(batch.Results, r)
			continue
		}
		batch.Failures = append(batch.Failures, Failure{InstructorID: instructors[i].ID, Err: errs[i]})
	}

	e.metrics.RecordBatch(int(failed.Load()))
	e.log.Info(ctx, "batch compensation finished",
		logger.Stringer("period", period),
		logger.Int("computed", len(batch.Results)),
		logger.Int("failed", len(batch.Failures)),
	)
	return batch, nil
}

// =============================================================================
// OWNERSHIP AUDIT
// =============================================================================

// Ownership returns the derived ownership intervals of one student.
func (e *Engine) Ownership(ctx context.Context, studentID StudentID, period generic.Period) ([]OwnershipInterval, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("ownership %s: %w", studentID, err)
	}
	return e.assignments.Ownership(ctx, studentID, period)
}

// =============================================================================
// MUTATIONS AND INVALIDATION
// =============================================================================

// RecordReassignment appends event to the reassignment log and evicts the
// cached results of both instructors. The event must continue the student's
// existing history. An empty ID is filled in.
func (e *Engine) RecordReassignment(ctx context.Context, event ReassignmentEvent) (ReassignmentEvent, error) {
	if err := validateEvent(event); err != nil {
		return ReassignmentEvent{}, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	students, err := e.src.Students.GetStudents(ctx, []StudentID{event.StudentID})
	if err != nil {
		return ReassignmentEvent{}, fmt.Errorf("record reassignment: %w", err)
	}
	if len(students) == 0 {
		return ReassignmentEvent{}, &generic.UnknownStudentError{StudentID: string(event.StudentID), EventID: event.ID}
	}
	history, err := e.src.History.EventsForStudents(ctx, []StudentID{event.StudentID})
	if err != nil {
		return ReassignmentEvent{}, fmt.Errorf("record reassignment: %w", err)
	}
	if len(history) == 0 && students[0].Instructor != "" && event.OldInstructor != students[0].Instructor {
		// The first event hands over from the live pointer.
		return ReassignmentEvent{}, &generic.HistoryError{
			StudentID: string(event.StudentID),
			EventID:   event.ID,
			ChangedAt: event.ChangedAt,
			Expected:  string(students[0].Instructor),
			Got:       string(event.OldInstructor),
		}
	}
	if len(history) > 0 {
		for _, prev := range history {
			if event.ChangedAt.Before(prev.ChangedAt) {
				return ReassignmentEvent{}, fmt.Errorf("%w: change instant %s precedes recorded event %s",
					generic.ErrInvalidEvent, event.ChangedAt.Format(time.RFC3339), prev.ID)
			}
		}
		// Validate the extended chain the same way reads will.
		if _, err := BuildTimeline(students[0], append(history, event), e.loc); err != nil {
			return ReassignmentEvent{}, err
		}
	}

	if e.src.Recorder != nil {
		if err := e.src.Recorder.AppendReassignment(ctx, event); err != nil {
			return ReassignmentEvent{}, fmt.Errorf("record reassignment: %w", err)
		}
	}
	e.metrics.RecordReassignment()

	evicted := e.cache.InvalidateInstructor(event.NewInstructor)
	if event.OldInstructor != "" {
		evicted += e.cache.InvalidateInstructor(event.OldInstructor)
	}
	e.metrics.RecordEvictions(evicted)
	e.log.Info(ctx, "reassignment recorded",
		logger.String("event", event.ID),
		logger.String("student", string(event.StudentID)),
		logger.String("from", string(event.OldInstructor)),
		logger.String("to", string(event.NewInstructor)),
		logger.Int("evicted", evicted),
	)
	return event, nil
}

func validateEvent(event ReassignmentEvent) error {
	switch {
	case event.StudentID == "":
		return fmt.Errorf("%w: student is required", generic.ErrInvalidEvent)
	case event.NewInstructor == "":
		return fmt.Errorf("%w: new instructor is required", generic.ErrInvalidEvent)
	case event.OldInstructor == event.NewInstructor:
		return fmt.Errorf("%w: old and new instructor are the same", generic.ErrInvalidEvent)
	case event.ChangedAt.IsZero():
		return fmt.Errorf("%w: change instant is required", generic.ErrInvalidEvent)
	case event.Snapshot.MonthlyRate != nil && event.Snapshot.MonthlyRate.LessThan(decimal.Zero):
		return fmt.Errorf("%w: snapshot rate must not be negative", generic.ErrInvalidEvent)
	}
	return nil
}

// Invalidate evicts every cached result of id.
func (e *Engine) Invalidate(id InstructorID) int {
	n := e.cache.InvalidateInstructor(id)
	e.metrics.RecordEvictions(n)
	e.log.Debug(context.Background(), "cache invalidated", logger.String("instructor", string(id)), logger.Int("evicted", n))
	return n
}

// InvalidateRange evicts every cached result whose period overlaps period.
func (e *Engine) InvalidateRange(period generic.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	n := e.cache.InvalidateRange(period)
	e.metrics.RecordEvictions(n)
	e.log.Debug(context.Background(), "cache invalidated", logger.Stringer("period", period), logger.Int("evicted", n))
	return n, nil
}

// InvalidateAll empties the cache.
func (e *Engine) InvalidateAll() int {
	n := e.cache.InvalidateAll()
	e.metrics.RecordEvictions(n)
	e.log.Debug(context.Background(), "cache cleared", logger.Int("evicted", n))
	return n
}
