/*
Package compensation implements the instructor compensation engine.

PURPOSE:
  Computes what an instructor earned for an arbitrary date range: a base
  amount per student taught, minus lateness and absence deductions, plus
  bonuses. Every figure is traceable to the dated class-start signals and
  reassignment events it was derived from.

PIPELINE:
  1. AssignmentResolver: which students did the instructor own, and when?
  2. Calendar + RateResolver: which dates were expected, at what daily rate?
  3. EarningsCalculator: expected dates that carry a class-start signal
  4. LatenessEngine / AbsenceEngine: tiered and per-day deductions
  5. BonusAggregator: quality and manual bonuses
  6. Engine: assembles a Result and writes it through the Cache

KEY INVARIANT:
  Ownership of a (student, date) is a pure function of the reassignment
  log. No date is ever billed to, or charged against, two instructors.

SEE ALSO:
  - sources.go: read-only collaborator interfaces
  - engine.go: public entry points
  - cache.go: memoization and invalidation contract
*/
package compensation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InstructorID string
type StudentID string
type PackageID string

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Instructor is a tutor whose compensation is computed.
type Instructor struct {
	ID   InstructorID
	Name string
}

// StudentStatus is the enrolment state of a student.
type StudentStatus string

const (
	StatusActive   StudentStatus = "active"
	StatusPending  StudentStatus = "pending"
	StatusInactive StudentStatus = "inactive"
)

// Eligible reports whether the status participates in compensation.
func (s StudentStatus) Eligible() bool {
	return s == StatusActive || s == StatusPending
}

// Student is a learner with a package, a weekly pattern and a class time.
type Student struct {
	ID         StudentID
	Name       string
	Package    PackageID
	DayPattern DayPattern
	TimeSlot   generic.Clock
	Status     StudentStatus

	// Instructor is the live assignment pointer. It is only consulted when
	// the student has no reassignment events.
	Instructor InstructorID
}

// AssignmentSnapshot freezes the terms a reassignment was made on.
// Zero or nil fields mean "use the student's current value".
type AssignmentSnapshot struct {
	Package     PackageID
	DayPattern  DayPattern
	TimeSlot    *generic.Clock
	MonthlyRate *decimal.Decimal
}

// ReassignmentEvent records that a student changed instructor.
// Events are append-only; ChangedAt orders them.
type ReassignmentEvent struct {
	ID            string
	StudentID     StudentID
	OldInstructor InstructorID // empty = first assignment
	NewInstructor InstructorID
	ChangedAt     time.Time
	Reason        string
	Snapshot      AssignmentSnapshot
}

// ClassStart is a timestamped proof that a class began.
type ClassStart struct {
	StudentID    StudentID
	InstructorID InstructorID
	At           time.Time
}

// DeductionKind distinguishes the two deduction families.
type DeductionKind string

const (
	DeductionLateness DeductionKind = "lateness"
	DeductionAbsence  DeductionKind = "absence"
)

// Waiver suppresses one kind of deduction for an instructor on a date.
type Waiver struct {
	InstructorID InstructorID
	Kind         DeductionKind
	Date         generic.Date
	Reason       string
}

// PermissionGrant is approved leave. It suppresses absence deductions only.
type PermissionGrant struct {
	InstructorID InstructorID
	Date         generic.Date
	Reason       string
}

// QualityBonus is a weekly quality-review bonus.
type QualityBonus struct {
	ID              string
	InstructorID    InstructorID
	WeekStart       generic.Date
	Amount          decimal.Decimal
	ManagerApproved bool
}

// ManualBonus is a one-off award.
type ManualBonus struct {
	ID           string
	InstructorID InstructorID
	Amount       decimal.Decimal
	Reason       string
	CreatedAt    time.Time
}

// =============================================================================
// DEDUCTION RULES
// =============================================================================

// Tier is one lateness band: [StartMinute, EndMinute] inclusive.
type Tier struct {
	Label       string
	StartMinute int
	EndMinute   int
	Percent     decimal.Decimal
}

// Contains reports whether minutes falls inside the tier.
func (t Tier) Contains(minutes int) bool {
	return minutes >= t.StartMinute && minutes <= t.EndMinute
}

// PackageDeduction holds the base amounts tiers and absences apply to.
type PackageDeduction struct {
	Lateness decimal.Decimal
	Absence  decimal.Decimal
}

// RuleScope says whether a rule set is global or instructor specific.
type RuleScope string

const (
	ScopeGlobal     RuleScope = "global"
	ScopeInstructor RuleScope = "instructor"
)

// RuleSet is the complete deduction configuration applied to an instructor.
type RuleSet struct {
	Scope          RuleScope
	InstructorID   InstructorID // set when Scope is ScopeInstructor
	ExcusedMinutes int
	Tiers          []Tier
	Packages       map[PackageID]PackageDeduction
}

// TierFor returns the first tier containing minutes.
func (rs *RuleSet) TierFor(minutes int) (Tier, bool) {
	if rs == nil {
		return Tier{}, false
	}
	for _, t := range rs.Tiers {
		if t.Contains(minutes) {
			return t, true
		}
	}
	return Tier{}, false
}

// BaseFor returns the package's base amounts.
func (rs *RuleSet) BaseFor(pkg PackageID) (PackageDeduction, bool) {
	if rs == nil || rs.Packages == nil {
		return PackageDeduction{}, false
	}
	d, ok := rs.Packages[pkg]
	return d, ok
}

// =============================================================================
// OWNERSHIP
// =============================================================================

// OwnershipInterval is a span of dates during which one instructor is
// financially responsible for one student, with the terms in force.
type OwnershipInterval struct {
	StudentID    StudentID
	InstructorID InstructorID
	Period       generic.Period
	TimeSlot     generic.Clock
	DayPattern   DayPattern
	Package      PackageID
	MonthlyRate  decimal.Decimal
	DailyRate    decimal.Decimal
	Synthesized  bool // inferred from signals, no ownership record
}

// StudentAssignment is one student the instructor is responsible for.
type StudentAssignment struct {
	Student   Student
	Intervals []OwnershipInterval // clipped to the query period, ascending
	Signals   []ClassStart        // this instructor's signals for the student
}

// IntervalOn returns the interval covering date.
func (sa StudentAssignment) IntervalOn(date generic.Date) (OwnershipInterval, bool) {
	for _, iv := range sa.Intervals {
		if iv.Period.Contains(date) {
			return iv, true
		}
	}
	return OwnershipInterval{}, false
}

// =============================================================================
// RESULT
// =============================================================================

// Warning is a missing-configuration condition that degraded to zero.
type Warning struct {
	Kind      string
	StudentID StudentID
	Package   PackageID
	Message   string
}

// Warning kinds.
const (
	WarnMissingRate      = "missing_rate"
	WarnUnknownPattern   = "unknown_day_pattern"
	WarnNoRuleSet        = "no_rule_set"
	WarnNoTiers          = "no_tiers"
	WarnMissingBase      = "missing_package_base"
	WarnMissingTimeSlot  = "missing_time_slot"
	WarnUnknownStudent   = "unknown_student_signal"
	WarnPointerDisagrees = "assignment_pointer_disagrees"
	WarnSynthesized      = "synthesized_interval"
)

// DailyEarning is the amount earned on one date across all students.
type DailyEarning struct {
	Date   generic.Date
	Amount decimal.Decimal
}

// StudentEarning is one student's contribution over one ownership interval.
type StudentEarning struct {
	StudentID   StudentID
	StudentName string
	Package     PackageID
	Period      generic.Period
	DailyRate   decimal.Decimal
	Days        []generic.Date
	Total       decimal.Decimal
	Synthesized bool
}

// LatenessEntry is one penalised class start.
type LatenessEntry struct {
	Date        generic.Date
	StudentID   StudentID
	StudentName string
	Scheduled   generic.Clock
	Actual      time.Time
	Minutes     int
	Tier        string
	Amount      decimal.Decimal
}

// AbsenceEntry is one expected class that did not happen.
type AbsenceEntry struct {
	Date        generic.Date
	StudentID   StudentID
	StudentName string
	Package     PackageID
	Amount      decimal.Decimal
}

// BonusEntry is one bonus that contributed to the total.
type BonusEntry struct {
	Source string // "quality" or "manual"
	ID     string
	Date   generic.Date
	Amount decimal.Decimal
}

// Breakdown is the audit trail behind a Result.
type Breakdown struct {
	DailyEarnings []DailyEarning
	Students      []StudentEarning
	Lateness      []LatenessEntry
	Absences      []AbsenceEntry
	Bonuses       []BonusEntry
	Warnings      []Warning
}

// Result is the compensation of one instructor for one period.
// It is a value object: never mutated after construction, safe to share.
type Result struct {
	InstructorID      InstructorID
	InstructorName    string
	Period            generic.Period
	BaseSalary        decimal.Decimal
	LatenessDeduction decimal.Decimal
	AbsenceDeduction  decimal.Decimal
	Bonuses           decimal.Decimal
	Net               decimal.Decimal
	StudentCount      int
	TeachingDays      int
	AverageDaily      decimal.Decimal
	Paid              bool
	ComputedAt        time.Time
	Breakdown         Breakdown
}
