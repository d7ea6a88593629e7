package compensation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// COLLABORATORS - Read-only views the engine consumes
// =============================================================================
//
// Implementations live in store/memory (tests, demos) and store/sqlite.
// Every method is read-only except ReassignmentRecorder.Append.

// InstructorDirectory resolves instructors.
type InstructorDirectory interface {
	// GetInstructor returns generic.ErrInstructorNotFound for unknown ids.
	GetInstructor(ctx context.Context, id InstructorID) (Instructor, error)
	ListInstructors(ctx context.Context) ([]Instructor, error)
}

// StudentDirectory resolves students.
type StudentDirectory interface {
	// GetStudents returns the known subset of ids; unknown ids are omitted.
	GetStudents(ctx context.Context, ids []StudentID) ([]Student, error)

	// StudentsByInstructor returns students whose live pointer is id.
	StudentsByInstructor(ctx context.Context, id InstructorID) ([]Student, error)
}

// ReassignmentLog is the append-only ownership history.
type ReassignmentLog interface {
	// StudentsInvolving returns students with any event naming id as old or new instructor.
	StudentsInvolving(ctx context.Context, id InstructorID) ([]StudentID, error)

	// EventsForStudents returns every event of the given students, any order.
	EventsForStudents(ctx context.Context, ids []StudentID) ([]ReassignmentEvent, error)
}

// ReassignmentRecorder appends to the reassignment log.
type ReassignmentRecorder interface {
	AppendReassignment(ctx context.Context, event ReassignmentEvent) error
}

// SignalLog serves class-start signals.
type SignalLog interface {
	// ClassStartsByInstructor returns signals by id with dates inside period.
	ClassStartsByInstructor(ctx context.Context, id InstructorID, period generic.Period) ([]ClassStart, error)

	// ClassStartsByStudents returns signals (any instructor) for the students inside period.
	ClassStartsByStudents(ctx context.Context, ids []StudentID, period generic.Period) ([]ClassStart, error)
}

// RateTable maps packages to monthly rates.
type RateTable interface {
	// MonthlyRate reports ok=false for unknown packages.
	MonthlyRate(ctx context.Context, pkg PackageID) (rate decimal.Decimal, ok bool, err error)
}

// RuleBook serves deduction rule sets.
type RuleBook interface {
	// RuleSet returns the instructor-specific set, else the global one, else nil.
	RuleSet(ctx context.Context, id InstructorID) (*RuleSet, error)
}

// WaiverLog serves deduction waivers.
type WaiverLog interface {
	Waivers(ctx context.Context, id InstructorID, period generic.Period) ([]Waiver, error)
}

// PermissionLog serves approved leave.
type PermissionLog interface {
	Permissions(ctx context.Context, id InstructorID, period generic.Period) ([]PermissionGrant, error)
}

// BonusSource serves both bonus feeds.
type BonusSource interface {
	QualityBonuses(ctx context.Context, id InstructorID, period generic.Period) ([]QualityBonus, error)
	ManualBonuses(ctx context.Context, id InstructorID, period generic.Period) ([]ManualBonus, error)
}

// PaymentLedger reports whether a month was paid out.
type PaymentLedger interface {
	IsPaid(ctx context.Context, id InstructorID, month string) (bool, error)
}

// Sources bundles every collaborator. A single store usually satisfies all
// of them; see Store.
type Sources struct {
	Instructors InstructorDirectory
	Students    StudentDirectory
	History     ReassignmentLog
	Signals     SignalLog
	Rates       RateTable
	Rules       RuleBook
	Waivers     WaiverLog
	Permissions PermissionLog
	Bonuses     BonusSource
	Payments    PaymentLedger

	// Recorder is optional; without it RecordReassignment only invalidates.
	Recorder ReassignmentRecorder
}

// Store is implemented by backends that provide every view.
type Store interface {
	InstructorDirectory
	StudentDirectory
	ReassignmentLog
	ReassignmentRecorder
	SignalLog
	RateTable
	RuleBook
	WaiverLog
	PermissionLog
	BonusSource
	PaymentLedger
}

// SourcesFrom wires every collaborator to one Store.
func SourcesFrom(s Store) Sources {
	return Sources{
		Instructors: s,
		Students:    s,
		History:     s,
		Signals:     s,
		Rates:       s,
		Rules:       s,
		Waivers:     s,
		Permissions: s,
		Bonuses:     s,
		Payments:    s,
		Recorder:    s,
	}
}
