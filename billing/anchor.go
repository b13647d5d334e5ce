package billing

import "time"

// =============================================================================
// CYCLE ANCHOR RESOLVER
// =============================================================================

type AnchorSource string

const (
	AnchorPayment       AnchorSource = "payment"        // latest PAID session-cycle entry
	AnchorSemesterStart AnchorSource = "semester_start" // no payment yet
	AnchorFirstSession  AnchorSource = "first_session"  // no payment, no semester start
	AnchorOpen          AnchorSource = "open"           // nothing to anchor on
)

// Anchor is the point after which sessions accrue toward the current,
// possibly unpaid, cycle.
//
// A payment anchor is exclusive: a session dated exactly at the paid date
// belongs to the paid cycle. Semester and first-session anchors are
// inclusive, otherwise the very first session of a semester would never
// be billed.
type Anchor struct {
	At        time.Time
	Inclusive bool
	Source    AnchorSource
	PaymentID PaymentID

	// Bookkeeping reported alongside the anchor.
	CyclesAlreadyPaid   int
	RegistrationSettled bool
}

// Admits reports whether a session dated t falls after the anchor.
func (a Anchor) Admits(t time.Time) bool {
	switch {
	case a.Source == AnchorOpen:
		return true
	case a.Inclusive:
		return !t.Before(a.At)
	default:
		return t.After(a.At)
	}
}

// ResolveAnchor selects the anchor of the current cycle for a student.
//
// ALGORITHM:
//  1. Among the pair's PAID SESSION_CYCLE entries with a paid date, take the
//     latest paid date (ties broken by the greater ID). Exclusive anchor.
//  2. Otherwise the semester start, inclusive.
//  3. Otherwise the date of the group's earliest completed session, inclusive.
//  4. Otherwise open.
//
// REGISTRATION entries never anchor; they only set RegistrationSettled.
// Entries of other students or groups are ignored.
func ResolveAnchor(
	cfg CycleConfig,
	studentID StudentID,
	groupID GroupID,
	payments []PaymentLedgerEntry,
	sessions []SessionRecord,
) (Anchor, error) {
	var (
		anchor Anchor
		latest *PaymentLedgerEntry
	)

	for i := range payments {
		p := &payments[i]
		if p.StudentID != studentID || p.GroupID != groupID {
			continue
		}
		if err := validatePayment(*p); err != nil {
			return Anchor{}, err
		}
		if !p.Settled() {
			continue
		}

		switch p.Type {
		case PaymentRegistration:
			anchor.RegistrationSettled = true
		case PaymentSessionCycle:
			anchor.CyclesAlreadyPaid++
			if latest == nil || laterPayment(*p, *latest) {
				latest = p
			}
		}
	}

	if latest != nil {
		anchor.At = *latest.PaidDate
		anchor.Source = AnchorPayment
		anchor.PaymentID = latest.ID
		return anchor, nil
	}

	if cfg.SemesterStart != nil {
		anchor.At = *cfg.SemesterStart
		anchor.Inclusive = true
		anchor.Source = AnchorSemesterStart
		return anchor, nil
	}

	var first *time.Time
	for _, s := range sessions {
		if s.GroupID != groupID || s.Status != SessionCompleted {
			continue
		}
		if s.Date.IsZero() {
			return Anchor{}, &OrderingError{Record: "session", ID: string(s.ID), Field: "date"}
		}
		if first == nil || s.Date.Before(*first) {
			d := s.Date
			first = &d
		}
	}
	if first != nil {
		anchor.At = *first
		anchor.Inclusive = true
		anchor.Source = AnchorFirstSession
		return anchor, nil
	}

	anchor.Source = AnchorOpen
	return anchor, nil
}

func laterPayment(a, b PaymentLedgerEntry) bool {
	if a.PaidDate.Equal(*b.PaidDate) {
		return a.ID > b.ID
	}
	return a.PaidDate.After(*b.PaidDate)
}

func validatePayment(p PaymentLedgerEntry) error {
	switch p.Type {
	case PaymentSessionCycle, PaymentRegistration:
	default:
		return &InvalidInputError{Field: "payment.type", Reason: "unknown type " + string(p.Type) + " on " + string(p.ID)}
	}
	switch p.Status {
	case PaymentPending, PaymentPaid, PaymentCancelled:
	default:
		return &InvalidInputError{Field: "payment.status", Reason: "unknown status " + string(p.Status) + " on " + string(p.ID)}
	}
	if p.Amount.IsNegative() {
		return &InvalidInputError{Field: "payment.amount", Reason: "must not be negative on " + string(p.ID)}
	}
	if p.DueDate.IsZero() {
		return &OrderingError{Record: "payment", ID: string(p.ID), Field: "due_date"}
	}
	if p.PaidDate != nil && p.PaidDate.IsZero() {
		return &OrderingError{Record: "payment", ID: string(p.ID), Field: "paid_date"}
	}
	return nil
}
