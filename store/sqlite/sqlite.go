/*
Package sqlite provides a SQLite-backed implementation of roster.Store.

PURPOSE:
  Persists groups, enrollments, sessions, attendance, the payment ledger
  and billing snapshots. The billing engine never sees this package; the
  roster.Service loads records through it and hands plain slices over.

APPEND-ONLY ENFORCEMENT:
  The payments table is a ledger:
  - No UPDATE statements on payments
  - No DELETE statements on payments (except Reset)
  - A status change is recorded as a new entry
  - A reused payment ID fails with billing.ErrDuplicatePayment

KEY TABLES:
  tutoring_groups:   Group records, tariff stored as JSON (sparse fields kept)
  students:          Student records
  enrollments:       Group-to-student links
  sessions:          Session records, upserted on status transitions
  attendance:        One mark per (session, student), upserted
  payments:          Immutable payment ledger
  billing_snapshots: Statuses computed by the scheduler (history kept)

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order is chronological. A value
  that does not parse comes back as the zero time, which the engine rejects
  as an unparseable date instead of guessing.

MIGRATION:
  Versioned goose migrations embedded from migrations/*.sql run on New().

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, SQLite serializes writers anyway.

USAGE:
  store, err := sqlite.New("./data/billing.db", log)
  if err != nil {
      log.Fatal("open store", zap.Error(err))
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/roster"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements roster.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *zap.Logger
}

var _ roster.Store = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, log: log}
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

func (s *Store) migrate() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s.log.Sugar()})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

// =============================================================================
// GROUPS & STUDENTS
// =============================================================================

// SaveGroup inserts or updates a group. The tariff is stored as given,
// sparse fields included.
func (s *Store) SaveGroup(ctx context.Context, group billing.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tariffJSON, err := json.Marshal(group.Tariff)
	if err != nil {
		return fmt.Errorf("failed to encode tariff: %w", err)
	}

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tutoring_groups (id, name, tariff_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tariff_json = excluded.tariff_json,
			updated_at = excluded.updated_at
	`, group.ID, group.Name, string(tariffJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id billing.GroupID) (*billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, name, tariff_json FROM tutoring_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, tariff_json FROM tutoring_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []billing.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (billing.Group, error) {
	var g billing.Group
	var tariffJSON string
	if err := row.Scan(&g.ID, &g.Name, &tariffJSON); err != nil {
		return billing.Group{}, err
	}
	if err := json.Unmarshal([]byte(tariffJSON), &g.Tariff); err != nil {
		return billing.Group{}, fmt.Errorf("failed to decode tariff of group %s: %w", g.ID, err)
	}
	return g, nil
}

func (s *Store) SaveStudent(ctx context.Context, student billing.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, student.ID, student.Name, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st billing.Student
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM students WHERE id = ?`, id).Scan(&st.ID, &st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &st, nil
}

// Enroll links an existing student to an existing group. Enrolling twice
// is a no-op.
func (s *Store) Enroll(ctx context.Context, groupID billing.GroupID, studentID billing.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.exists(ctx, `SELECT 1 FROM tutoring_groups WHERE id = ?`, groupID); err != nil {
		return err
	} else if !ok {
		return &billing.NotFoundError{Kind: "group", ID: string(groupID)}
	}
	if ok, err := s.exists(ctx, `SELECT 1 FROM students WHERE id = ?`, studentID); err != nil {
		return err
	} else if !ok {
		return &billing.NotFoundError{Kind: "student", ID: string(studentID)}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO enrollments (group_id, student_id, enrolled_at) VALUES (?, ?, ?)
	`, groupID, studentID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to enroll student: %w", err)
	}
	return nil
}

func (s *Store) ListEnrolled(ctx context.Context, groupID billing.GroupID) ([]billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.name
		FROM enrollments e
		JOIN students st ON st.id = e.student_id
		WHERE e.group_id = ?
		ORDER BY st.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrolled students: %w", err)
	}
	defer rows.Close()

	students := []billing.Student{}
	for rows.Next() {
		var st billing.Student
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// =============================================================================
// SESSIONS & ATTENDANCE
// =============================================================================

// SaveSession inserts a session or replaces its date and status.
func (s *Store) SaveSession(ctx context.Context, session billing.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, group_id, date, status, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			date = excluded.date,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, session.ID, session.GroupID, formatTime(session.Date), session.Status, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id billing.SessionID) (*billing.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, group_id, date, status FROM sessions WHERE id = ?`, id)
	ses, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &ses, nil
}

func (s *Store) ListSessions(ctx context.Context, groupID billing.GroupID) ([]billing.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, date, status FROM sessions
		WHERE group_id = ?
		ORDER BY date ASC, id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []billing.SessionRecord
	for rows.Next() {
		ses, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ses)
	}
	return sessions, rows.Err()
}

func scanSession(row scanner) (billing.SessionRecord, error) {
	var ses billing.SessionRecord
	var date, status string
	if err := row.Scan(&ses.ID, &ses.GroupID, &date, &status); err != nil {
		return billing.SessionRecord{}, err
	}
	ses.Date = parseTime(date)
	ses.Status = billing.SessionStatus(status)
	return ses, nil
}

// RecordAttendance inserts or replaces the mark of (session, student).
func (s *Store) RecordAttendance(ctx context.Context, mark billing.AttendanceMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.exists(ctx, `SELECT 1 FROM sessions WHERE id = ?`, mark.SessionID); err != nil {
		return err
	} else if !ok {
		return &billing.NotFoundError{Kind: "session", ID: string(mark.SessionID)}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (session_id, student_id, status, recorded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, student_id) DO UPDATE SET
			status = excluded.status,
			recorded_at = excluded.recorded_at
	`, mark.SessionID, mark.StudentID, mark.Status, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}
	return nil
}

func (s *Store) ListAttendance(ctx context.Context, groupID billing.GroupID) ([]billing.AttendanceMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.session_id, a.student_id, a.status
		FROM attendance a
		JOIN sessions ses ON ses.id = a.session_id
		WHERE ses.group_id = ?
		ORDER BY ses.date ASC, ses.id ASC, a.student_id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	var marks []billing.AttendanceMark
	for rows.Next() {
		var m billing.AttendanceMark
		var status string
		if err := rows.Scan(&m.SessionID, &m.StudentID, &status); err != nil {
			return nil, err
		}
		m.Status = billing.AttendanceStatus(status)
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// =============================================================================
// PAYMENT LEDGER (append-only)
// =============================================================================

// AppendPayment adds a ledger entry.
func (s *Store) AppendPayment(ctx context.Context, entry billing.PaymentLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paid sql.NullString
	if entry.PaidDate != nil {
		paid = sql.NullString{String: formatTime(*entry.PaidDate), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
		(id, student_id, group_id, amount, payment_type, status, due_date, paid_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.StudentID,
		entry.GroupID,
		entry.Amount.String(),
		entry.Type,
		entry.Status,
		formatTime(entry.DueDate),
		paid,
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, groupID billing.GroupID, studentID billing.StudentID) ([]billing.PaymentLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, student_id, group_id, amount, payment_type, status, due_date, paid_date
		FROM payments
		WHERE group_id = ?`
	args := []any{groupID}
	if studentID != "" {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var entries []billing.PaymentLedgerEntry
	for rows.Next() {
		var p billing.PaymentLedgerEntry
		var amount, typ, status, due string
		var paid sql.NullString
		if err := rows.Scan(&p.ID, &p.StudentID, &p.GroupID, &amount, &typ, &status, &due, &paid); err != nil {
			return nil, err
		}
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount of payment %s: %w", p.ID, err)
		}
		p.Type = billing.PaymentType(typ)
		p.Status = billing.PaymentStatus(status)
		p.DueDate = parseTime(due)
		if paid.Valid {
			t := parseTime(paid.String)
			p.PaidDate = &t
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}

// =============================================================================
// BILLING SNAPSHOTS
// =============================================================================

// SaveSnapshots writes a batch of snapshots atomically.
func (s *Store) SaveSnapshots(ctx context.Context, snapshots []roster.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, snap := range snapshots {
		statusJSON, err := json.Marshal(snap.Status)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO billing_snapshots (id, group_id, student_id, status_json, computed_at)
			VALUES (?, ?, ?, ?, ?)
		`, snap.ID, snap.GroupID, snap.StudentID, string(statusJSON), formatTime(snap.ComputedAt))
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// ListSnapshots returns the latest snapshot per student of a group.
func (s *Store) ListSnapshots(ctx context.Context, groupID billing.GroupID) ([]roster.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.group_id, b.student_id, b.status_json, b.computed_at
		FROM billing_snapshots b
		WHERE b.group_id = ?
		  AND b.computed_at = (
			SELECT MAX(computed_at) FROM billing_snapshots
			WHERE group_id = b.group_id AND student_id = b.student_id
		  )
		ORDER BY b.student_id ASC, b.id DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []roster.Snapshot
	seen := make(map[billing.StudentID]bool)
	for rows.Next() {
		var snap roster.Snapshot
		var statusJSON, computed string
		if err := rows.Scan(&snap.ID, &snap.GroupID, &snap.StudentID, &statusJSON, &computed); err != nil {
			return nil, err
		}
		if seen[snap.StudentID] {
			continue
		}
		seen[snap.StudentID] = true
		if err := json.Unmarshal([]byte(statusJSON), &snap.Status); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", snap.ID, err)
		}
		snap.ComputedAt = parseTime(computed)
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"billing_snapshots", "payments", "attendance", "sessions", "enrollments", "students", "tutoring_groups"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the storage layout, RFC 3339 and plain dates.
// Anything else is the zero time.
func parseTime(v string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
