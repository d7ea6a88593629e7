// Package memory provides an in-memory compensation.Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps everything in maps behind one RWMutex. Reassignment events
// and signals are append-only.
type Store struct {
	mu sync.RWMutex

	instructors map[compensation.InstructorID]compensation.Instructor
	order       []compensation.InstructorID
	students    map[compensation.StudentID]compensation.Student
	events      []compensation.ReassignmentEvent
	signals     []compensation.ClassStart
	rates       map[compensation.PackageID]decimal.Decimal
	globalRules *compensation.RuleSet
	rules       map[compensation.InstructorID]*compensation.RuleSet
	waivers     []compensation.Waiver
	permissions []compensation.PermissionGrant
	quality     []compensation.QualityBonus
	manual      []compensation.ManualBonus
	paid        map[paidKey]bool
}

type paidKey struct {
	instructor compensation.InstructorID
	month      string
}

var _ compensation.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		instructors: make(map[compensation.InstructorID]compensation.Instructor),
		students:    make(map[compensation.StudentID]compensation.Student),
		rates:       make(map[compensation.PackageID]decimal.Decimal),
		rules:       make(map[compensation.InstructorID]*compensation.RuleSet),
		paid:        make(map[paidKey]bool),
	}
}

// ===== SEEDING =====

func (s *Store) AddInstructor(ins compensation.Instructor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instructors[ins.ID]; !ok {
		s.order = append(s.order, ins.ID)
	}
	s.instructors[ins.ID] = ins
}

// PutStudent inserts or replaces a student.
func (s *Store) PutStudent(st compensation.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

func (s *Store) AddClassStart(cs compensation.ClassStart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, cs)
}

func (s *Store) SetRate(pkg compensation.PackageID, monthly decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pkg] = monthly
}

// SetRuleSet stores rs under its scope.
func (s *Store) SetRuleSet(rs *compensation.RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs.Scope == compensation.ScopeInstructor {
		s.rules[rs.InstructorID] = rs
		return
	}
	s.globalRules = rs
}

func (s *Store) AddWaiver(w compensation.Waiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waivers = append(s.waivers, w)
}

func (s *Store) AddPermission(p compensation.PermissionGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = append(s.permissions, p)
}

func (s *Store) AddQualityBonus(b compensation.QualityBonus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = append(s.quality, b)
}

func (s *Store) AddManualBonus(b compensation.ManualBonus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = append(s.manual, b)
}

// SetPaid marks a "YYYY-MM" month as paid for id.
func (s *Store) SetPaid(id compensation.InstructorID, month string, paid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid[paidKey{instructor: id, month: month}] = paid
}

// ===== compensation.InstructorDirectory =====

func (s *Store) GetInstructor(ctx context.Context, id compensation.InstructorID) (compensation.Instructor, error) {
	if err := ctx.Err(); err != nil {
		return compensation.Instructor{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.instructors[id]
	if !ok {
		return compensation.Instructor{}, generic.ErrInstructorNotFound
	}
	return ins, nil
}

func (s *Store) ListInstructors(ctx context.Context) ([]compensation.Instructor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]compensation.Instructor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.instructors[id])
	}
	return out, nil
}

// ===== compensation.StudentDirectory =====

func (s *Store) GetStudents(ctx context.Context, ids []compensation.StudentID) ([]compensation.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.Student
	seen := make(map[compensation.StudentID]bool, len(ids))
	for _, id := range ids {
		if st, ok := s.students[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) StudentsByInstructor(ctx context.Context, id compensation.InstructorID) ([]compensation.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.Student
	for _, st := range s.students {
		if st.Instructor == id {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== compensation.ReassignmentLog =====

func (s *Store) StudentsInvolving(ctx context.Context, id compensation.InstructorID) ([]compensation.StudentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[compensation.StudentID]bool)
	var out []compensation.StudentID
	for _, e := range s.events {
		if (e.OldInstructor == id || e.NewInstructor == id) && !seen[e.StudentID] {
			seen[e.StudentID] = true
			out = append(out, e.StudentID)
		}
	}
	return out, nil
}

func (s *Store) EventsForStudents(ctx context.Context, ids []compensation.StudentID) ([]compensation.ReassignmentEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[compensation.StudentID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.ReassignmentEvent
	for _, e := range s.events {
		if want[e.StudentID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// AppendReassignment adds an event. Append-only; insertion order breaks
// ties between equal change instants.
func (s *Store) AppendReassignment(ctx context.Context, e compensation.ReassignmentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// ===== compensation.SignalLog =====

func (s *Store) ClassStartsByInstructor(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.ClassStart, error) {
	return s.filterSignals(ctx, period, func(cs compensation.ClassStart) bool { return cs.InstructorID == id })
}

func (s *Store) ClassStartsByStudents(ctx context.Context, ids []compensation.StudentID, period generic.Period) ([]compensation.ClassStart, error) {
	want := make(map[compensation.StudentID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.filterSignals(ctx, period, func(cs compensation.ClassStart) bool { return want[cs.StudentID] })
}

// filterSignals matches on the UTC window of period widened by a day on each
// side; the engine re-buckets by its own time zone.
func (s *Store) filterSignals(ctx context.Context, period generic.Period, match func(compensation.ClassStart) bool) ([]compensation.ClassStart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := period.Start.AddDays(-1).Start(nil), period.End.AddDays(1).End(nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.ClassStart
	for _, cs := range s.signals {
		if cs.At.Before(from) || cs.At.After(to) || !match(cs) {
			continue
		}
		out = append(out, cs)
	}
	return out, nil
}

// ===== compensation.RateTable / RuleBook =====

func (s *Store) MonthlyRate(ctx context.Context, pkg compensation.PackageID) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[pkg]
	return r, ok, nil
}

func (s *Store) RuleSet(ctx context.Context, id compensation.InstructorID) (*compensation.RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rs, ok := s.rules[id]; ok {
		return rs, nil
	}
	return s.globalRules, nil
}

// ===== compensation.WaiverLog / PermissionLog =====

func (s *Store) Waivers(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.Waiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.Waiver
	for _, w := range s.waivers {
		if w.InstructorID == id && period.Contains(w.Date) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) Permissions(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.PermissionGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.PermissionGrant
	for _, p := range s.permissions {
		if p.InstructorID == id && period.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ===== compensation.BonusSource / PaymentLedger =====

func (s *Store) QualityBonuses(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.QualityBonus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.QualityBonus
	for _, b := range s.quality {
		if b.InstructorID == id && period.Contains(b.WeekStart) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ManualBonuses widens the window by a day on each side, like signals.
func (s *Store) ManualBonuses(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.ManualBonus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := period.Start.AddDays(-1).Start(nil), period.End.AddDays(1).End(nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []compensation.ManualBonus
	for _, b := range s.manual {
		if b.InstructorID == id && !b.CreatedAt.Before(from) && !b.CreatedAt.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) IsPaid(ctx context.Context, id compensation.InstructorID, month string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paid[paidKey{instructor: id, month: month}], nil
}
