/*
errors.go - Centralized error types for the compensation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these errors with additional context using %w.

ERROR CATEGORIES:
  1. Not found - the instructor (or other root entity) cannot be resolved
  2. Data inconsistency - the stored history contradicts itself; fail fast
  3. Client errors - malformed periods or requests

  Missing configuration (unknown package rate, unparseable day-pattern, no
  deduction tiers) is NOT an error: it degrades to a zero contribution and
  is reported as a warning on the result.

USAGE:
  if errors.Is(err, generic.ErrInstructorNotFound) {
      // 404
  }

SEE ALSO:
  - compensation/assignment.go: raises HistoryError
  - api/handlers.go: maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInstructorNotFound is returned when an instructor id cannot be resolved.
	ErrInstructorNotFound = errors.New("instructor not found")

	// ErrStudentNotFound is returned by directories when a student id is unknown.
	ErrStudentNotFound = errors.New("student not found")

	// ErrUnknownStudent is returned when a reassignment event references a
	// student the directory does not know.
	ErrUnknownStudent = errors.New("reassignment references unknown student")

	// ErrInconsistentHistory is returned when the reassignment log contradicts
	// itself (an event's old instructor is not the previous holder).
	ErrInconsistentHistory = errors.New("inconsistent reassignment history")

	// ErrOverlappingOwnership is returned when two ownership intervals of the
	// same student would cover the same date.
	ErrOverlappingOwnership = errors.New("overlapping ownership intervals")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidEvent is returned when a reassignment event is malformed.
	ErrInvalidEvent = errors.New("invalid reassignment event")

	// ErrInvalidRuleSet is returned when a deduction rule set fails validation.
	ErrInvalidRuleSet = errors.New("invalid deduction rule set")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// HistoryError describes a break in a student's reassignment chain.
type HistoryError struct {
	StudentID string
	EventID   string
	ChangedAt time.Time
	Expected  string // holder according to the previous event
	Got       string // old instructor named by this event
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("inconsistent reassignment history for student %s: event %s at %s names %q as previous instructor, expected %q",
		e.StudentID, e.EventID, e.ChangedAt.Format(time.RFC3339), e.Got, e.Expected)
}

func (e *HistoryError) Unwrap() error {
	return ErrInconsistentHistory
}

// UnknownStudentError names the student an event referenced.
type UnknownStudentError struct {
	StudentID string
	EventID   string
}

func (e *UnknownStudentError) Error() string {
	return fmt.Sprintf("reassignment event %s references unknown student %s", e.EventID, e.StudentID)
}

func (e *UnknownStudentError) Unwrap() error {
	return ErrUnknownStudent
}

// RuleSetError provides details about a rule set validation failure.
type RuleSetError struct {
	Field   string
	Message string
}

func (e *RuleSetError) Error() string {
	return fmt.Sprintf("invalid deduction rule set: %s: %s", e.Field, e.Message)
}

func (e *RuleSetError) Unwrap() error {
	return ErrInvalidRuleSet
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidRuleSet)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstructorNotFound) ||
		errors.Is(err, ErrStudentNotFound)
}

// IsInconsistency returns true if the stored data contradicts itself.
func IsInconsistency(err error) bool {
	return errors.Is(err, ErrInconsistentHistory) ||
		errors.Is(err, ErrUnknownStudent) ||
		errors.Is(err, ErrOverlappingOwnership)
}
