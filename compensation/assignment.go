/*
assignment.go - Which students an instructor owned, and when

PURPOSE:
  Turns the reassignment event log into per-student ownership timelines and
  answers "who was responsible for student S on date D?". The answer is a
  pure function of the event log, so a date can never be billed to two
  instructors.

KEY CONCEPTS:
  Timeline:
    The ordered list of holders of one student. Each segment starts on the
    calendar date (engine time zone) its event took effect and runs until
    the next segment starts. Before the first event, the first event's old
    instructor holds the student. A student without events is held by its
    live pointer for all time.

  Candidates:
    Students the instructor might owe or be owed for:
    - live pointer at the instructor (eligible status only)
    - any reassignment event naming the instructor
    - class-start signals by the instructor in the period

  Fallback synthesis:
    A candidate with signals but no timeline at all (no events, no pointer)
    gets a synthesized interval chosen by FallbackPolicy. A student whose
    timeline says someone else held it is never synthesized for the
    instructor, whatever the signals say.

CONSISTENCY:
  - an event for a student missing from the directory  -> UnknownStudentError
  - an event whose old instructor is not the previous
    event's new instructor                            -> HistoryError
  - live pointer disagreeing with the latest event    -> Warning (log wins)

SEE ALSO:
  - calendar.go: dates inside an interval
  - absence.go: per-date ownership checks
*/
package compensation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// FallbackPolicy decides how students with signals but no ownership record
// are treated.
type FallbackPolicy string

const (
	FallbackExclude       FallbackPolicy = "exclude"
	FallbackFullPeriod    FallbackPolicy = "full_period"
	FallbackSignalBounded FallbackPolicy = "signal_bounded"
)

// =============================================================================
// TIMELINE - Per-student ownership history
// =============================================================================

// Terms are the conditions a holder teaches a student on.
type Terms struct {
	Package     PackageID
	DayPattern  DayPattern
	TimeSlot    generic.Clock
	MonthlyRate *decimal.Decimal // nil = look up Package in the rate table
}

type segment struct {
	from   generic.Date // zero = since forever
	holder InstructorID
	terms  Terms
}

// Timeline is the derived ownership history of one student.
type Timeline struct {
	Student  Student
	segments []segment
}

// HasOwner reports whether anyone ever held the student.
func (tl *Timeline) HasOwner() bool {
	if tl == nil {
		return false
	}
	for _, s := range tl.segments {
		if s.holder != "" {
			return true
		}
	}
	return false
}

// OwnerOn returns the holder on date d, empty when nobody held it.
func (tl *Timeline) OwnerOn(d generic.Date) InstructorID {
	if tl == nil {
		return ""
	}
	holder := InstructorID("")
	for _, s := range tl.segments {
		if !s.from.IsZero() && s.from.After(d) {
			break
		}
		holder = s.holder
	}
	return holder
}

// Latest returns the current holder.
func (tl *Timeline) Latest() InstructorID {
	if tl == nil || len(tl.segments) == 0 {
		return ""
	}
	return tl.segments[len(tl.segments)-1].holder
}

// spans yields each segment clipped to period, in order.
func (tl *Timeline) spans(period generic.Period, fn func(seg segment, span generic.Period)) {
	for i, s := range tl.segments {
		start := period.Start
		if !s.from.IsZero() {
			start = generic.MaxDate(start, s.from)
		}
		end := period.End
		if i+1 < len(tl.segments) {
			end = generic.MinDate(end, tl.segments[i+1].from.AddDays(-1))
		}
		if end.Before(start) {
			continue
		}
		fn(s, generic.Period{Start: start, End: end})
	}
}

func currentTerms(st Student) Terms {
	return Terms{Package: st.Package, DayPattern: st.DayPattern, TimeSlot: st.TimeSlot}
}

func snapshotTerms(st Student, snap AssignmentSnapshot) Terms {
	t := currentTerms(st)
	if snap.Package != "" {
		t.Package = snap.Package
	}
	if !snap.DayPattern.IsZero() {
		t.DayPattern = snap.DayPattern
	}
	if snap.TimeSlot != nil && snap.TimeSlot.Valid() {
		t.TimeSlot = *snap.TimeSlot
	}
	if snap.MonthlyRate != nil {
		r := *snap.MonthlyRate
		t.MonthlyRate = &r
	}
	return t
}

// BuildTimeline derives a student's ownership timeline. events may be in
// any order and may include other students' events, which are ignored.
// It returns nil when the student has neither events nor a live pointer.
func BuildTimeline(st Student, events []ReassignmentEvent, loc *time.Location) (*Timeline, error) {
	var own []ReassignmentEvent
	for _, e := range events {
		if e.StudentID == st.ID {
			own = append(own, e)
		}
	}

	if len(own) == 0 {
		if st.Instructor == "" {
			return nil, nil
		}
		return &Timeline{
			Student:  st,
			segments: []segment{{holder: st.Instructor, terms: currentTerms(st)}},
		}, nil
	}

	sort.SliceStable(own, func(i, j int) bool { return own[i].ChangedAt.Before(own[j].ChangedAt) })

	tl := &Timeline{Student: st}
	tl.segments = append(tl.segments, segment{holder: own[0].OldInstructor, terms: currentTerms(st)})

	for i, e := range own {
		if i > 0 && e.OldInstructor != own[i-1].NewInstructor {
			return nil, &generic.HistoryError{
				StudentID: string(st.ID),
				EventID:   e.ID,
				ChangedAt: e.ChangedAt,
				Expected:  string(own[i-1].NewInstructor),
				Got:       string(e.OldInstructor),
			}
		}
		seg := segment{
			from:   generic.DateOf(e.ChangedAt, loc),
			holder: e.NewInstructor,
			terms:  snapshotTerms(st, e.Snapshot),
		}
		// Same-day events collapse; the last one of the day holds the date.
		last := &tl.segments[len(tl.segments)-1]
		if !last.from.IsZero() && last.from.Equal(seg.from) {
			*last = seg
			continue
		}
		tl.segments = append(tl.segments, seg)
	}
	return tl, nil
}

// =============================================================================
// ASSIGNMENT RESOLVER
// =============================================================================

// AssignmentResolver finds the students an instructor is responsible for.
type AssignmentResolver struct {
	students StudentDirectory
	history  ReassignmentLog
	signals  SignalLog
	rates    *RateResolver
	loc      *time.Location
	fallback FallbackPolicy
}

// NewAssignmentResolver creates an AssignmentResolver.
func NewAssignmentResolver(
	students StudentDirectory,
	history ReassignmentLog,
	signals SignalLog,
	rates *RateResolver,
	loc *time.Location,
	fallback FallbackPolicy,
) *AssignmentResolver {
	if loc == nil {
		loc = time.UTC
	}
	if fallback == "" {
		fallback = FallbackFullPeriod
	}
	return &AssignmentResolver{
		students: students,
		history:  history,
		signals:  signals,
		rates:    rates,
		loc:      loc,
		fallback: fallback,
	}
}

// Resolution is the output of Resolve.
type Resolution struct {
	Assignments []StudentAssignment // ordered by student id
	Warnings    []Warning
}

// Resolve returns the students instructor owned during period, each with its
// ownership intervals clipped to period and the instructor's signals.
func (r *AssignmentResolver) Resolve(ctx context.Context, instructor InstructorID, period generic.Period) (*Resolution, error) {
	res := &Resolution{}
	warn := newWarningSet()

	// 1. Candidates
	current, err := r.students.StudentsByInstructor(ctx, instructor)
	if err != nil {
		return nil, fmt.Errorf("students of %s: %w", instructor, err)
	}
	involved, err := r.history.StudentsInvolving(ctx, instructor)
	if err != nil {
		return nil, fmt.Errorf("reassignments of %s: %w", instructor, err)
	}
	signals, err := r.signals.ClassStartsByInstructor(ctx, instructor, period)
	if err != nil {
		return nil, fmt.Errorf("class starts of %s: %w", instructor, err)
	}

	// 2. Union, de-duplicated by id
	known := make(map[StudentID]Student)
	for _, st := range current {
		if st.Status.Eligible() {
			known[st.ID] = st
		}
	}
	signalsByStudent := make(map[StudentID][]ClassStart)
	for _, s := range signals {
		if s.InstructorID != instructor || !period.Contains(generic.DateOf(s.At, r.loc)) {
			continue
		}
		signalsByStudent[s.StudentID] = append(signalsByStudent[s.StudentID], s)
	}
	var missing []StudentID
	seen := make(map[StudentID]bool)
	for _, id := range involved {
		if _, ok := known[id]; !ok && !seen[id] {
			missing, seen[id] = append(missing, id), true
		}
	}
	for id := range signalsByStudent {
		if _, ok := known[id]; !ok && !seen[id] {
			missing, seen[id] = append(missing, id), true
		}
	}
	sortIDs(missing)
	if len(missing) > 0 {
		loaded, err := r.students.GetStudents(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load students: %w", err)
		}
		for _, st := range loaded {
			known[st.ID] = st
		}
	}

	ids := make([]StudentID, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sortIDs(ids)

	lookup := append([]StudentID{}, ids...)
	for _, id := range missing {
		if _, ok := known[id]; !ok {
			lookup = append(lookup, id)
		}
	}
	events, err := r.history.EventsForStudents(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("load reassignment events: %w", err)
	}
	eventsByStudent := make(map[StudentID][]ReassignmentEvent)
	for _, e := range events {
		if _, ok := known[e.StudentID]; !ok {
			return nil, &generic.UnknownStudentError{StudentID: string(e.StudentID), EventID: e.ID}
		}
		eventsByStudent[e.StudentID] = append(eventsByStudent[e.StudentID], e)
	}
	for _, id := range missing {
		if _, ok := known[id]; !ok && len(signalsByStudent[id]) > 0 {
			warn.add(Warning{
				Kind:      WarnUnknownStudent,
				StudentID: id,
				Message:   "class-start signals reference a student missing from the directory",
			})
		}
	}

	// 3-4. Timelines, intervals, fallback
	for _, id := range ids {
		st := known[id]
		evs := eventsByStudent[id]
		if !st.Status.Eligible() && len(evs) == 0 {
			continue
		}

		tl, err := BuildTimeline(st, evs, r.loc)
		if err != nil {
			return nil, err
		}
		if len(evs) > 0 && st.Instructor != "" && st.Instructor != tl.Latest() {
			warn.add(Warning{
				Kind:      WarnPointerDisagrees,
				StudentID: id,
				Message:   fmt.Sprintf("live pointer %q disagrees with reassignment log holder %q", st.Instructor, tl.Latest()),
			})
		}

		var intervals []OwnershipInterval
		if tl.HasOwner() {
			intervals, err = r.intervals(ctx, tl, instructor, period, warn)
		} else {
			intervals, err = r.synthesize(ctx, st, instructor, period, signalsByStudent[id], warn)
		}
		if err != nil {
			return nil, err
		}
		if len(intervals) == 0 {
			continue
		}

		res.Assignments = append(res.Assignments, StudentAssignment{
			Student:   st,
			Intervals: intervals,
			Signals:   signalsInside(signalsByStudent[id], intervals, r.loc),
		})
	}

	res.Warnings = warn.list()
	return res, nil
}

// Ownership returns every holder's intervals for one student within period.
func (r *AssignmentResolver) Ownership(ctx context.Context, studentID StudentID, period generic.Period) ([]OwnershipInterval, error) {
	students, err := r.students.GetStudents(ctx, []StudentID{studentID})
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("%w: %s", generic.ErrStudentNotFound, studentID)
	}
	events, err := r.history.EventsForStudents(ctx, []StudentID{studentID})
	if err != nil {
		return nil, fmt.Errorf("load reassignment events: %w", err)
	}
	tl, err := BuildTimeline(students[0], events, r.loc)
	if err != nil {
		return nil, err
	}
	if tl == nil {
		return nil, nil
	}
	return r.intervals(ctx, tl, "", period, newWarningSet())
}

// intervals clips the timeline to period. An empty instructor keeps every
// held segment.
func (r *AssignmentResolver) intervals(
	ctx context.Context,
	tl *Timeline,
	instructor InstructorID,
	period generic.Period,
	warn *warningSet,
) ([]OwnershipInterval, error) {
	var out []OwnershipInterval
	var firstErr error
	tl.spans(period, func(seg segment, span generic.Period) {
		if firstErr != nil || seg.holder == "" {
			return
		}
		if instructor != "" && seg.holder != instructor {
			return
		}
		iv, err := r.interval(ctx, tl.Student, seg.holder, seg.terms, span, period, warn)
		if err != nil {
			firstErr = err
			return
		}
		// Adjacent spans with the same holder and terms read as one interval.
		if n := len(out); n > 0 && sameTerms(out[n-1], iv) && out[n-1].Period.End.AddDays(1).Equal(span.Start) {
			out[n-1].Period.End = span.End
			return
		}
		out = append(out, iv)
	})
	return out, firstErr
}

func (r *AssignmentResolver) synthesize(
	ctx context.Context,
	st Student,
	instructor InstructorID,
	period generic.Period,
	signals []ClassStart,
	warn *warningSet,
) ([]OwnershipInterval, error) {
	if len(signals) == 0 || r.fallback == FallbackExclude {
		return nil, nil
	}

	span := period
	if r.fallback == FallbackSignalBounded {
		first, last := generic.DateOf(signals[0].At, r.loc), generic.DateOf(signals[0].At, r.loc)
		for _, s := range signals[1:] {
			d := generic.DateOf(s.At, r.loc)
			first, last = generic.MinDate(first, d), generic.MaxDate(last, d)
		}
		span = generic.Period{Start: first, End: last}
	}

	iv, err := r.interval(ctx, st, instructor, currentTerms(st), span, period, warn)
	if err != nil {
		return nil, err
	}
	iv.Synthesized = true
	warn.add(Warning{
		Kind:      WarnSynthesized,
		StudentID: st.ID,
		Message:   fmt.Sprintf("no ownership record; %s interval %s synthesized from class-start signals", r.fallback, span),
	})
	return []OwnershipInterval{iv}, nil
}

func (r *AssignmentResolver) interval(
	ctx context.Context,
	st Student,
	holder InstructorID,
	terms Terms,
	span, period generic.Period,
	warn *warningSet,
) (OwnershipInterval, error) {
	monthly := decimal.Zero
	if terms.MonthlyRate != nil {
		monthly = *terms.MonthlyRate
	} else {
		rate, w, err := r.rates.Monthly(ctx, terms.Package)
		if err != nil {
			return OwnershipInterval{}, err
		}
		if w != nil {
			w.StudentID = st.ID
			warn.add(*w)
		}
		monthly = rate
	}
	if terms.DayPattern.Kind == PatternUnknown {
		warn.add(Warning{
			Kind:      WarnUnknownPattern,
			StudentID: st.ID,
			Message:   fmt.Sprintf("unrecognised day pattern %q", terms.DayPattern.Raw),
		})
	}
	return OwnershipInterval{
		StudentID:    st.ID,
		InstructorID: holder,
		Period:       span,
		TimeSlot:     terms.TimeSlot,
		DayPattern:   terms.DayPattern,
		Package:      terms.Package,
		MonthlyRate:  monthly,
		DailyRate:    r.rates.Daily(monthly, period),
	}, nil
}

func sameTerms(a, b OwnershipInterval) bool {
	return a.InstructorID == b.InstructorID &&
		a.Package == b.Package &&
		a.TimeSlot == b.TimeSlot &&
		a.DayPattern.Equal(b.DayPattern) &&
		a.MonthlyRate.Equal(b.MonthlyRate)
}

// signalsInside keeps signals dated inside any interval, in time order.
func signalsInside(signals []ClassStart, intervals []OwnershipInterval, loc *time.Location) []ClassStart {
	var out []ClassStart
	for _, s := range signals {
		d := generic.DateOf(s.At, loc)
		for _, iv := range intervals {
			if iv.Period.Contains(d) {
				out = append(out, s)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func sortIDs(ids []StudentID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// =============================================================================
// WARNINGS
// =============================================================================

// warningSet de-duplicates warnings while keeping first-seen order.
type warningSet struct {
	seen  map[Warning]bool
	items []Warning
}

func newWarningSet() *warningSet { return &warningSet{seen: make(map[Warning]bool)} }

func (w *warningSet) add(items ...Warning) {
	for _, it := range items {
		if w.seen[it] {
			continue
		}
		w.seen[it] = true
		w.items = append(w.items, it)
	}
}

func (w *warningSet) list() []Warning { return w.items }
