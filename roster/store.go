/*
store.go - Collaborator ports consumed by the billing callers

PURPOSE:
  The billing engine never fetches. These interfaces describe what the
  calling layer needs from the outside world: the group configuration
  store, the session/attendance store and the payment ledger.

APPEND-ONLY CONTRACT:
  The payment ledger has no Update and no Delete. A payment that changed
  status is recorded as a new entry. Duplicate IDs are rejected with
  billing.ErrDuplicatePayment.

LOOKUPS:
  Get* methods return (nil, nil) when the record does not exist; the
  Service turns that into a billing.NotFoundError.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and demos
  - store/sqlite: production SQLite
*/
package roster

import (
	"context"
	"time"

	"github.com/warp/tutoring-billing/billing"
)

// Source is the read side used to compute billing statuses.
type Source interface {
	GetGroup(ctx context.Context, id billing.GroupID) (*billing.Group, error)
	ListGroups(ctx context.Context) ([]billing.Group, error)
	GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error)

	// ListEnrolled returns the students of a group, ordered by ID.
	ListEnrolled(ctx context.Context, groupID billing.GroupID) ([]billing.Student, error)

	// ListSessions returns every session of a group, ordered by date.
	ListSessions(ctx context.Context, groupID billing.GroupID) ([]billing.SessionRecord, error)

	// ListAttendance returns every mark recorded for the group's sessions.
	ListAttendance(ctx context.Context, groupID billing.GroupID) ([]billing.AttendanceMark, error)

	// ListPayments returns the ledger of a group. An empty studentID
	// returns the entries of every student.
	ListPayments(ctx context.Context, groupID billing.GroupID, studentID billing.StudentID) ([]billing.PaymentLedgerEntry, error)
}

// Snapshot is a persisted billing status, written by the scheduler.
type Snapshot struct {
	ID         string
	GroupID    billing.GroupID
	StudentID  billing.StudentID
	Status     billing.StudentBillingStatus
	ComputedAt time.Time
}

// Store is the full collaborator surface: reads plus the writes the API
// and the demo scenarios need.
type Store interface {
	Source

	SaveGroup(ctx context.Context, group billing.Group) error
	SaveStudent(ctx context.Context, student billing.Student) error
	Enroll(ctx context.Context, groupID billing.GroupID, studentID billing.StudentID) error

	// SaveSession inserts or replaces a session (status transitions).
	SaveSession(ctx context.Context, session billing.SessionRecord) error
	GetSession(ctx context.Context, id billing.SessionID) (*billing.SessionRecord, error)

	// RecordAttendance inserts or replaces the mark of (session, student).
	RecordAttendance(ctx context.Context, mark billing.AttendanceMark) error

	// AppendPayment adds a ledger entry. This is the only payment write.
	AppendPayment(ctx context.Context, entry billing.PaymentLedgerEntry) error

	SaveSnapshots(ctx context.Context, snapshots []Snapshot) error
	// ListSnapshots returns the latest snapshot per student of a group.
	ListSnapshots(ctx context.Context, groupID billing.GroupID) ([]Snapshot, error)

	// Reset drops all data. Development only.
	Reset(ctx context.Context) error
}
