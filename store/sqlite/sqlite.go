/*
Package sqlite provides a SQLite-backed implementation of compensation.Store.

PURPOSE:
  Persists the reference data, the reassignment log, class-start signals and
  the deduction configuration the engine reads. In production the same
  schema runs on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  compensation.InstructorDirectory, StudentDirectory
  compensation.ReassignmentLog, ReassignmentRecorder
  compensation.SignalLog
  compensation.RateTable, RuleBook
  compensation.WaiverLog, PermissionLog, BonusSource, PaymentLedger

APPEND-ONLY ENFORCEMENT:
  reassignments and class_starts are never updated or deleted (Reset aside).
  seq breaks ties between events with the same change instant.

LIVE POINTER:
  AppendReassignment moves students.instructor_id to the new instructor in
  the same transaction, so the directory and the log agree after every
  recorded event.

KEY TABLES:
  instructors, students:   directory
  reassignments:           ownership history (append-only)
  class_starts:            class-start signals (append-only)
  package_rates:           monthly rate per package
  rule_sets:               deduction rules as JSON ('' = global scope)
  waivers, permissions:    deduction suppressions
  quality_bonuses,
  manual_bonuses:          bonus sources
  payments:                paid flag per instructor and month

TIME STORAGE:
  Instants are stored in UTC with a fixed-width layout so that string
  comparison orders them. Dates are stored as YYYY-MM-DD.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := compensation.New(compensation.SourcesFrom(store))

SEE ALSO:
  - compensation/sources.go: interface definitions
  - store/memory: in-memory implementation for tests
  - factory/rules.go: rule_sets.config_json format
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/factory"
	"github.com/warp/compensation-engine/generic"
)

const instantLayout = "2006-01-02T15:04:05.000000000Z"

// globalScope is the rule_sets key of the global rule set.
const globalScope = ""

var _ compensation.Store = (*Store)(nil)

// Store implements compensation.Store using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rules *factory.RulesFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, rules: factory.NewRulesFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instructors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		package_id TEXT NOT NULL DEFAULT '',
		day_pattern TEXT NOT NULL DEFAULT '',
		time_slot TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		instructor_id TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_instructor
		ON students(instructor_id);

	-- Reassignment log (append-only)
	CREATE TABLE IF NOT EXISTS reassignments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		student_id TEXT NOT NULL,
		old_instructor TEXT NOT NULL DEFAULT '',
		new_instructor TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		reason TEXT,
		snapshot_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reassignments_student
		ON reassignments(student_id, changed_at);
	CREATE INDEX IF NOT EXISTS idx_reassignments_old
		ON reassignments(old_instructor);
	CREATE INDEX IF NOT EXISTS idx_reassignments_new
		ON reassignments(new_instructor);

	-- Class-start signals (append-only)
	CREATE TABLE IF NOT EXISTS class_starts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	-- Hot path: one instructor's signals in a period
	CREATE INDEX IF NOT EXISTS idx_class_starts_instructor_time
		ON class_starts(instructor_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_class_starts_student_time
		ON class_starts(student_id, started_at);

	CREATE TABLE IF NOT EXISTS package_rates (
		package_id TEXT PRIMARY KEY,
		monthly_rate TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rule_sets (
		scope_key TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS waivers (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_waivers_instructor_date
		ON waivers(instructor_id, date);

	CREATE TABLE IF NOT EXISTS permissions (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL,
		date TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_permissions_instructor_date
		ON permissions(instructor_id, date);

	CREATE TABLE IF NOT EXISTS quality_bonuses (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL,
		week_start TEXT NOT NULL,
		amount TEXT NOT NULL,
		manager_approved BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quality_bonuses_instructor_week
		ON quality_bonuses(instructor_id, week_start);

	CREATE TABLE IF NOT EXISTS manual_bonuses (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_manual_bonuses_instructor_created
		ON manual_bonuses(instructor_id, created_at);

	CREATE TABLE IF NOT EXISTS payments (
		instructor_id TEXT NOT NULL,
		month TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (instructor_id, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DIRECTORY (compensation.InstructorDirectory, StudentDirectory)
// =============================================================================

// SaveInstructor inserts or renames an instructor.
func (s *Store) SaveInstructor(ctx context.Context, ins compensation.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO instructors (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, ins.ID, ins.Name, now())
	return err
}

// GetInstructor retrieves an instructor by ID.
func (s *Store) GetInstructor(ctx context.Context, id compensation.InstructorID) (compensation.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ins compensation.Instructor
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM instructors WHERE id = ?", id,
	).Scan(&ins.ID, &ins.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return compensation.Instructor{}, fmt.Errorf("%w: %s", generic.ErrInstructorNotFound, id)
	}
	if err != nil {
		return compensation.Instructor{}, fmt.Errorf("failed to get instructor: %w", err)
	}
	return ins, nil
}

// ListInstructors returns all instructors ordered by name.
func (s *Store) ListInstructors(ctx context.Context) ([]compensation.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM instructors ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list instructors: %w", err)
	}
	defer rows.Close()

	var out []compensation.Instructor
	for rows.Next() {
		var ins compensation.Instructor
		if err := rows.Scan(&ins.ID, &ins.Name); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// SaveStudent inserts or replaces a student record.
func (s *Store) SaveStudent(ctx context.Context, st compensation.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO students (id, name, package_id, day_pattern, time_slot, status, instructor_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			package_id = excluded.package_id,
			day_pattern = excluded.day_pattern,
			time_slot = excluded.time_slot,
			status = excluded.status,
			instructor_id = excluded.instructor_id,
			updated_at = excluded.updated_at
	`
	status := st.Status
	if status == "" {
		status = compensation.StatusActive
	}
	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.Name, st.Package,
		patternText(st.DayPattern),
		st.TimeSlot.String(),
		status, st.Instructor, now(),
	)
	return err
}

const studentColumns = "id, name, package_id, day_pattern, time_slot, status, instructor_id"

// GetStudents returns the known subset of ids.
func (s *Store) GetStudents(ctx context.Context, ids []compensation.StudentID) ([]compensation.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + studentColumns + " FROM students WHERE id IN (" + placeholders(len(ids)) + ") ORDER BY id"
	return s.queryStudents(ctx, query, anySlice(ids)...)
}

// StudentsByInstructor returns the students whose live pointer is id.
func (s *Store) StudentsByInstructor(ctx context.Context, id compensation.InstructorID) ([]compensation.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + studentColumns + " FROM students WHERE instructor_id = ? ORDER BY id"
	return s.queryStudents(ctx, query, id)
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]compensation.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var out []compensation.Student
	for rows.Next() {
		var st compensation.Student
		var pattern, slot string
		if err := rows.Scan(&st.ID, &st.Name, &st.Package, &pattern, &slot, &st.Status, &st.Instructor); err != nil {
			return nil, err
		}
		st.DayPattern = compensation.ParseDayPattern(pattern)
		st.TimeSlot = parseSlot(slot)
		out = append(out, st)
	}
	return out, rows.Err()
}

// =============================================================================
// REASSIGNMENT LOG (compensation.ReassignmentLog, ReassignmentRecorder)
// =============================================================================

type snapshotJSON struct {
	Package     string           `json:"package,omitempty"`
	DayPattern  string           `json:"day_pattern,omitempty"`
	TimeSlot    string           `json:"time_slot,omitempty"`
	MonthlyRate *decimal.Decimal `json:"monthly_rate,omitempty"`
}

// AppendReassignment adds an event and moves the student's live pointer.
// A duplicate event id is rejected with ErrInvalidEvent.
func (s *Store) AppendReassignment(ctx context.Context, e compensation.ReassignmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshotJSON{
		Package:     string(e.Snapshot.Package),
		DayPattern:  patternText(e.Snapshot.DayPattern),
		MonthlyRate: e.Snapshot.MonthlyRate,
	}
	if e.Snapshot.TimeSlot != nil {
		snap.TimeSlot = e.Snapshot.TimeSlot.String()
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reassignments
		(id, student_id, old_instructor, new_instructor, changed_at, reason, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.StudentID, e.OldInstructor, e.NewInstructor,
		instant(e.ChangedAt), nullString(e.Reason), string(snapJSON), now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: duplicate event id %s", generic.ErrInvalidEvent, e.ID)
		}
		return fmt.Errorf("failed to append reassignment: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE students SET instructor_id = ?, updated_at = ? WHERE id = ?",
		e.NewInstructor, now(), e.StudentID,
	); err != nil {
		return fmt.Errorf("failed to move student pointer: %w", err)
	}

	return tx.Commit()
}

// StudentsInvolving returns every student with an event naming id.
func (s *Store) StudentsInvolving(ctx context.Context, id compensation.InstructorID) ([]compensation.StudentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT student_id FROM reassignments
		WHERE old_instructor = ? OR new_instructor = ?
		ORDER BY student_id
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reassignments: %w", err)
	}
	defer rows.Close()

	var out []compensation.StudentID
	for rows.Next() {
		var sid compensation.StudentID
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out = append(out, sid)
	}
	return out, rows.Err()
}

// EventsForStudents returns the events of ids in insertion order.
func (s *Store) EventsForStudents(ctx context.Context, ids []compensation.StudentID) ([]compensation.ReassignmentEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, student_id, old_instructor, new_instructor, changed_at, reason, snapshot_json
		FROM reassignments
		WHERE student_id IN (` + placeholders(len(ids)) + `)
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, anySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reassignments: %w", err)
	}
	defer rows.Close()

	var out []compensation.ReassignmentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (compensation.ReassignmentEvent, error) {
	var e compensation.ReassignmentEvent
	var changedAt string
	var reason, snapJSON sql.NullString

	if err := rows.Scan(&e.ID, &e.StudentID, &e.OldInstructor, &e.NewInstructor, &changedAt, &reason, &snapJSON); err != nil {
		return e, err
	}
	at, err := parseInstant(changedAt)
	if err != nil {
		return e, fmt.Errorf("event %s: %w", e.ID, err)
	}
	e.ChangedAt = at
	e.Reason = reason.String

	if snapJSON.Valid && snapJSON.String != "" {
		var snap snapshotJSON
		if err := json.Unmarshal([]byte(snapJSON.String), &snap); err != nil {
			return e, fmt.Errorf("event %s snapshot: %w", e.ID, err)
		}
		e.Snapshot.Package = compensation.PackageID(snap.Package)
		if snap.DayPattern != "" {
			e.Snapshot.DayPattern = compensation.ParseDayPattern(snap.DayPattern)
		}
		if snap.TimeSlot != "" {
			if c := parseSlot(snap.TimeSlot); c.Valid() {
				e.Snapshot.TimeSlot = &c
			}
		}
		e.Snapshot.MonthlyRate = snap.MonthlyRate
	}
	return e, nil
}

// =============================================================================
// SIGNALS (compensation.SignalLog)
// =============================================================================

// AddClassStart records one class-start signal.
func (s *Store) AddClassStart(ctx context.Context, cs compensation.ClassStart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO class_starts (student_id, instructor_id, started_at) VALUES (?, ?, ?)",
		cs.StudentID, cs.InstructorID, instant(cs.At),
	)
	return err
}

// ClassStartsByInstructor returns id's signals in the UTC window of period
// widened by a day on each side; the engine re-buckets by its time zone.
func (s *Store) ClassStartsByInstructor(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.ClassStart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := signalWindow(period)
	return s.queryClassStarts(ctx, `
		SELECT student_id, instructor_id, started_at FROM class_starts
		WHERE instructor_id = ? AND started_at >= ? AND started_at <= ?
		ORDER BY started_at, id
	`, id, from, to)
}

// ClassStartsByStudents returns every instructor's signals for ids.
func (s *Store) ClassStartsByStudents(ctx context.Context, ids []compensation.StudentID, period generic.Period) ([]compensation.ClassStart, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := signalWindow(period)
	args := append(anySlice(ids), from, to)
	return s.queryClassStarts(ctx, `
		SELECT student_id, instructor_id, started_at FROM class_starts
		WHERE student_id IN (`+placeholders(len(ids))+`) AND started_at >= ? AND started_at <= ?
		ORDER BY started_at, id
	`, args...)
}

func (s *Store) queryClassStarts(ctx context.Context, query string, args ...any) ([]compensation.ClassStart, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class starts: %w", err)
	}
	defer rows.Close()

	var out []compensation.ClassStart
	for rows.Next() {
		var cs compensation.ClassStart
		var at string
		if err := rows.Scan(&cs.StudentID, &cs.InstructorID, &at); err != nil {
			return nil, err
		}
		if cs.At, err = parseInstant(at); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func signalWindow(period generic.Period) (string, string) {
	return instant(period.Start.AddDays(-1).Start(time.UTC)), instant(period.End.AddDays(1).End(time.UTC))
}

// =============================================================================
// RATES AND RULES (compensation.RateTable, RuleBook)
// =============================================================================

// SaveRate sets the monthly rate of a package.
func (s *Store) SaveRate(ctx context.Context, pkg compensation.PackageID, monthly decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO package_rates (package_id, monthly_rate, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(package_id) DO UPDATE SET
			monthly_rate = excluded.monthly_rate,
			updated_at = excluded.updated_at
	`, pkg, monthly.String(), now())
	return err
}

// SaveRateTableJSON validates a rate-table document and stores every rate.
func (s *Store) SaveRateTableJSON(ctx context.Context, doc string) error {
	rates, err := s.rules.ParseRateTable(doc)
	if err != nil {
		return err
	}
	for pkg, rate := range rates {
		if err := s.SaveRate(ctx, pkg, rate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) MonthlyRate(ctx context.Context, pkg compensation.PackageID) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT monthly_rate FROM package_rates WHERE package_id = ?", pkg,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get rate: %w", err)
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("rate of %s: %w", pkg, err)
	}
	return rate, true, nil
}

// SaveRuleSetJSON validates a rule-set document and stores it under its
// scope. It returns the parsed rule set.
func (s *Store) SaveRuleSetJSON(ctx context.Context, doc string) (*compensation.RuleSet, error) {
	rs, err := s.rules.ParseRuleSet(doc)
	if err != nil {
		return nil, err
	}
	key := globalScope
	if rs.Scope == compensation.ScopeInstructor {
		key = string(rs.InstructorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_sets (scope_key, config_json, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
			config_json = excluded.config_json,
			version = rule_sets.version + 1,
			updated_at = excluded.updated_at
	`, key, doc, now())
	if err != nil {
		return nil, fmt.Errorf("failed to save rule set: %w", err)
	}
	return rs, nil
}

// RuleSet returns the instructor-specific rule set, else the global one,
// else nil.
func (s *Store) RuleSet(ctx context.Context, id compensation.InstructorID) (*compensation.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT config_json FROM rule_sets
		WHERE scope_key IN (?, ?)
		ORDER BY scope_key = ? ASC
		LIMIT 1
	`, id, globalScope, globalScope).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}
	return s.rules.ParseRuleSet(doc)
}

// =============================================================================
// SUPPRESSIONS (compensation.WaiverLog, PermissionLog)
// =============================================================================

// AddWaiver stores a waiver and returns its generated id.
func (s *Store) AddWaiver(ctx context.Context, w compensation.Waiver) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO waivers (id, instructor_id, kind, date, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, w.InstructorID, w.Kind, w.Date.String(), nullString(w.Reason), now(),
	)
	return id, err
}

func (s *Store) Waivers(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.Waiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT instructor_id, kind, date, reason FROM waivers
		WHERE instructor_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, id, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query waivers: %w", err)
	}
	defer rows.Close()

	var out []compensation.Waiver
	for rows.Next() {
		var w compensation.Waiver
		var date string
		var reason sql.NullString
		if err := rows.Scan(&w.InstructorID, &w.Kind, &date, &reason); err != nil {
			return nil, err
		}
		if w.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		w.Reason = reason.String
		out = append(out, w)
	}
	return out, rows.Err()
}

// AddPermission stores an approved leave day and returns its generated id.
func (s *Store) AddPermission(ctx context.Context, p compensation.PermissionGrant) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO permissions (id, instructor_id, date, reason, created_at) VALUES (?, ?, ?, ?, ?)",
		id, p.InstructorID, p.Date.String(), nullString(p.Reason), now(),
	)
	return id, err
}

func (s *Store) Permissions(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT instructor_id, date, reason FROM permissions
		WHERE instructor_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, id, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var out []compensation.PermissionGrant
	for rows.Next() {
		var p compensation.PermissionGrant
		var date string
		var reason sql.NullString
		if err := rows.Scan(&p.InstructorID, &date, &reason); err != nil {
			return nil, err
		}
		if p.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		p.Reason = reason.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// BONUSES AND PAYMENTS (compensation.BonusSource, PaymentLedger)
// =============================================================================

// SaveQualityBonus inserts or updates a quality bonus. An empty id is
// generated.
func (s *Store) SaveQualityBonus(ctx context.Context, b compensation.QualityBonus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_bonuses (id, instructor_id, week_start, amount, manager_approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			manager_approved = excluded.manager_approved
	`, b.ID, b.InstructorID, b.WeekStart.String(), b.Amount.String(), b.ManagerApproved, now())
	return b.ID, err
}

func (s *Store) QualityBonuses(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.QualityBonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instructor_id, week_start, amount, manager_approved FROM quality_bonuses
		WHERE instructor_id = ? AND week_start >= ? AND week_start <= ?
		ORDER BY week_start, id
	`, id, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query quality bonuses: %w", err)
	}
	defer rows.Close()

	var out []compensation.QualityBonus
	for rows.Next() {
		var b compensation.QualityBonus
		var week, amount string
		if err := rows.Scan(&b.ID, &b.InstructorID, &week, &amount, &b.ManagerApproved); err != nil {
			return nil, err
		}
		if b.WeekStart, err = generic.ParseDate(week); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bonus %s amount: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveManualBonus inserts a one-off bonus. An empty id is generated and a
// zero CreatedAt is set to now.
func (s *Store) SaveManualBonus(ctx context.Context, b compensation.ManualBonus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO manual_bonuses (id, instructor_id, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.InstructorID, b.Amount.String(), nullString(b.Reason), instant(b.CreatedAt),
	)
	return b.ID, err
}

// ManualBonuses matches on the same widened UTC window as signals.
func (s *Store) ManualBonuses(ctx context.Context, id compensation.InstructorID, period generic.Period) ([]compensation.ManualBonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := signalWindow(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instructor_id, amount, reason, created_at FROM manual_bonuses
		WHERE instructor_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at, id
	`, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual bonuses: %w", err)
	}
	defer rows.Close()

	var out []compensation.ManualBonus
	for rows.Next() {
		var b compensation.ManualBonus
		var amount, createdAt string
		var reason sql.NullString
		if err := rows.Scan(&b.ID, &b.InstructorID, &amount, &reason, &createdAt); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bonus %s amount: %w", b.ID, err)
		}
		if b.CreatedAt, err = parseInstant(createdAt); err != nil {
			return nil, err
		}
		b.Reason = reason.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetPaid records the paid flag of an instructor's "YYYY-MM" month.
func (s *Store) SetPaid(ctx context.Context, id compensation.InstructorID, month string, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (instructor_id, month, paid, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instructor_id, month) DO UPDATE SET
			paid = excluded.paid,
			updated_at = excluded.updated_at
	`, id, month, paid, now())
	return err
}

func (s *Store) IsPaid(ctx context.Context, id compensation.InstructorID, month string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paid bool
	err := s.db.QueryRowContext(ctx,
		"SELECT paid FROM payments WHERE instructor_id = ? AND month = ?", id, month,
	).Scan(&paid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return paid, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payments", "manual_bonuses", "quality_bonuses", "permissions", "waivers",
		"rule_sets", "package_rates", "class_starts", "reassignments", "students", "instructors",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func now() string { return instant(time.Now()) }

func instant(t time.Time) string { return t.UTC().Format(instantLayout) }

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(instantLayout, s)
	if err != nil {
		// Rows written by hand or by other tools.
		if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t, nil
}

func parseSlot(s string) generic.Clock {
	if s == "" {
		return generic.NoClock
	}
	c, err := generic.ParseClock(s)
	if err != nil {
		return generic.NoClock
	}
	return c
}

func patternText(p compensation.DayPattern) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anySlice[T ~string](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
