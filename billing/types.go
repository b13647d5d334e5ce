/*
Package billing provides the attendance-billing engine.

PURPOSE:
  Turns the append-only logs of a tutoring group (sessions, attendance marks,
  payments) into the derived billing state of one (student, group) pair:
  how many sessions accrued since the last payment, whether a cycle is owed,
  how much, and whether the student drifted into arrears.

KEY CONCEPTS IN THIS FILE (types.go):
  - SessionRecord:      one scheduled or completed class meeting
  - AttendanceMark:     one student's presence for one session
  - PaymentLedgerEntry: one recorded payment (never edited)
  - Group / Tariff:     raw, possibly sparse, billing fields of a group
  - StudentBillingStatus: the engine output

PIPELINE:
  Group ──ResolveConfig──► CycleConfig
  payments ──ResolveAnchor──► Anchor
  sessions + marks ──WalkSessions──► Accrual
  Accrual ──Classify──► Classification
  all of the above ──ComputeBillingStatus──► StudentBillingStatus

  Every stage is a pure function. Nothing in this package reads the clock,
  touches a database or logs. The caller passes `now`.

USAGE:
  status, err := billing.ComputeBillingStatus(student, group,
      sessions, marks, payments, time.Now())
  if err != nil {
      // status unknown, never default to PAID or OVERDUE
  }

SEE ALSO:
  - tariff.go:     configuration resolver
  - anchor.go:     cycle anchor resolver
  - accrual.go:    session accrual walker
  - classifier.go: status classifier
  - engine.go:     result assembler
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type GroupID string
type SessionID string
type PaymentID string

// =============================================================================
// SESSIONS & ATTENDANCE
// =============================================================================

type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// SessionRecord is one class meeting of a group.
// Only COMPLETED sessions dated at or before `now` accrue.
type SessionRecord struct {
	ID      SessionID     `json:"id"`
	GroupID GroupID       `json:"group_id"`
	Date    time.Time     `json:"date"`
	Status  SessionStatus `json:"status"`
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

// Attended reports whether the student used the session. LATE counts as PRESENT.
func (s AttendanceStatus) Attended() bool {
	return s == AttendancePresent || s == AttendanceLate
}

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// AttendanceMark records one student's presence for one session.
// At most one mark exists per (session, student); a missing mark is ABSENT.
type AttendanceMark struct {
	SessionID SessionID        `json:"session_id"`
	StudentID StudentID        `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
}

// =============================================================================
// PAYMENT LEDGER
// =============================================================================

type PaymentType string

const (
	PaymentSessionCycle PaymentType = "SESSION_CYCLE"
	PaymentRegistration PaymentType = "REGISTRATION"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// PaymentLedgerEntry is an immutable payment record.
// Only PAID entries with a PaidDate move the cycle anchor.
type PaymentLedgerEntry struct {
	ID        PaymentID       `json:"id"`
	StudentID StudentID       `json:"student_id"`
	GroupID   GroupID         `json:"group_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      PaymentType     `json:"type"`
	Status    PaymentStatus   `json:"status"`
	DueDate   time.Time       `json:"due_date"`
	PaidDate  *time.Time      `json:"paid_date,omitempty"`
}

// Settled reports whether the entry is PAID and carries a paid date.
func (p PaymentLedgerEntry) Settled() bool {
	return p.Status == PaymentPaid && p.PaidDate != nil
}

// =============================================================================
// GROUP & TARIFF - raw collaborator data
// =============================================================================

type Student struct {
	ID   StudentID `json:"id"`
	Name string    `json:"name"`
}

// Tariff holds the billing fields of a group as stored. Fields are sparse:
// legacy groups only carry MonthlyFee, newer groups carry SessionFee and
// PaymentThreshold. ResolveConfig turns it into a CycleConfig.
type Tariff struct {
	SessionFee       *decimal.Decimal `json:"session_fee,omitempty"`
	MonthlyFee       *decimal.Decimal `json:"monthly_fee,omitempty"`
	PaymentThreshold *int             `json:"payment_threshold,omitempty"`
	RegistrationFee  *decimal.Decimal `json:"registration_fee,omitempty"`
	GracePeriodDays  *int             `json:"grace_period_days,omitempty"`
	CountAbsences    *bool            `json:"count_absences,omitempty"`
	SemesterStart    *time.Time       `json:"semester_start,omitempty"`
	SemesterEnd      *time.Time       `json:"semester_end,omitempty"`
}

type Group struct {
	ID     GroupID `json:"id"`
	Name   string  `json:"name"`
	Tariff Tariff  `json:"tariff"`
}

// =============================================================================
// CYCLE CONFIG - canonical billing parameters
// =============================================================================

type FeeSource string

const (
	FeeFromSession FeeSource = "session_fee"
	FeeFromMonthly FeeSource = "monthly_fee"
)

// CycleConfig is the canonical, validated tariff of a group.
// Nothing downstream of ResolveConfig looks at Tariff again.
type CycleConfig struct {
	SessionsPerCycle int             `json:"sessions_per_cycle"`
	PricePerSession  decimal.Decimal `json:"price_per_session"`
	// CycleFee is the exact price of SessionsPerCycle sessions. For legacy
	// monthly groups it is the monthly fee itself.
	CycleFee        decimal.Decimal `json:"cycle_fee"`
	RegistrationFee decimal.Decimal `json:"registration_fee"`
	GracePeriodDays int             `json:"grace_period_days"`
	CountAbsences   bool            `json:"count_absences"`
	SemesterStart   *time.Time      `json:"semester_start,omitempty"`
	SemesterEnd     *time.Time      `json:"semester_end,omitempty"`
	FeeSource       FeeSource       `json:"fee_source"`
}

// =============================================================================
// OUTPUT
// =============================================================================

type Status string

const (
	StatusPaid        Status = "PAID"
	StatusApproaching Status = "APPROACHING"
	StatusDue         Status = "DUE"
	StatusOverdue     Status = "OVERDUE"
)

// StudentBillingStatus is the per (student, group) result.
//
// INVARIANTS:
//   - Status == PAID        ⇔ CyclesUnpaid == 0 && Countable < N-1
//   - Status == APPROACHING ⇔ CyclesUnpaid == 0 && Countable >= N-1
//   - Status ∈ {DUE,OVERDUE} ⇔ CyclesUnpaid >= 1, OVERDUE iff AsOf > DueDate
//   - AmountDue == 0 and DueDate == nil when CyclesUnpaid == 0
type StudentBillingStatus struct {
	StudentID StudentID `json:"student_id"`
	GroupID   GroupID   `json:"group_id"`

	CountableSessionsInCycle int `json:"countable_sessions_in_cycle"`
	AttendedSessionsInCycle  int `json:"attended_sessions_in_cycle"`
	AbsentSessionsInCycle    int `json:"absent_sessions_in_cycle"`
	SessionsWalked           int `json:"sessions_walked"`
	SessionsPerCycle         int `json:"sessions_per_cycle"`
	SessionsUntilNextCycle   int `json:"sessions_until_next_cycle"`

	CyclesUnpaid      int `json:"cycles_unpaid"`
	CyclesAlreadyPaid int `json:"cycles_already_paid"`

	// AmountDue is session-cycle debt only.
	AmountDue          decimal.Decimal `json:"amount_due"`
	RegistrationFeeDue decimal.Decimal `json:"registration_fee_due"`
	TotalDue           decimal.Decimal `json:"total_due"`

	DueDate          *time.Time `json:"due_date"`
	CycleCompletedAt *time.Time `json:"cycle_completed_at,omitempty"`
	Status           Status     `json:"status"`

	AnchorAt      *time.Time   `json:"anchor_at,omitempty"`
	AnchorSource  AnchorSource `json:"anchor_source"`
	LastPaymentAt *time.Time   `json:"last_payment_at,omitempty"`
	AsOf          time.Time    `json:"as_of"`
}
