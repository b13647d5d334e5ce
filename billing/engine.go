package billing

import "time"

// =============================================================================
// RESULT ASSEMBLER
// =============================================================================

// ComputeBillingStatus computes the billing status of one student in one
// group as of now.
//
// The inputs are collaborator data: sessions are expected to be the group's
// sessions (others are ignored), attendance and payments may cover other
// students (ignored as well). The function never fetches, never reads the
// clock and never returns a partial status: on error the status is unknown.
//
// Identical inputs yield identical output.
func ComputeBillingStatus(
	student Student,
	group Group,
	sessions []SessionRecord,
	attendance []AttendanceMark,
	payments []PaymentLedgerEntry,
	now time.Time,
) (StudentBillingStatus, error) {
	if student.ID == "" {
		return StudentBillingStatus{}, &NotFoundError{Kind: "student", ID: string(student.ID)}
	}
	if group.ID == "" {
		return StudentBillingStatus{}, &NotFoundError{Kind: "group", ID: string(group.ID)}
	}
	if now.IsZero() {
		return StudentBillingStatus{}, &InvalidInputError{Field: "now", Reason: "must be set"}
	}

	cfg, err := ResolveConfig(group)
	if err != nil {
		return StudentBillingStatus{}, err
	}

	anchor, err := ResolveAnchor(cfg, student.ID, group.ID, payments, sessions)
	if err != nil {
		return StudentBillingStatus{}, err
	}

	selected, err := SelectSessions(cfg, anchor, group.ID, sessions, now)
	if err != nil {
		return StudentBillingStatus{}, err
	}

	acc, err := WalkSessions(cfg, student.ID, selected, attendance)
	if err != nil {
		return StudentBillingStatus{}, err
	}

	verdict := Classify(cfg, acc, now)
	return assemble(student, group, cfg, anchor, acc, verdict, now), nil
}

func assemble(
	student Student,
	group Group,
	cfg CycleConfig,
	anchor Anchor,
	acc Accrual,
	verdict Classification,
	now time.Time,
) StudentBillingStatus {
	registration := RegistrationDue(cfg, anchor)

	status := StudentBillingStatus{
		StudentID:                student.ID,
		GroupID:                  group.ID,
		CountableSessionsInCycle: acc.Countable,
		AttendedSessionsInCycle:  acc.Attended,
		AbsentSessionsInCycle:    acc.Absent(),
		SessionsWalked:           acc.Walked,
		SessionsPerCycle:         cfg.SessionsPerCycle,
		SessionsUntilNextCycle:   cfg.SessionsPerCycle - acc.Countable%cfg.SessionsPerCycle,
		CyclesUnpaid:             verdict.CyclesUnpaid,
		CyclesAlreadyPaid:        anchor.CyclesAlreadyPaid,
		AmountDue:                verdict.AmountDue,
		RegistrationFeeDue:       registration,
		TotalDue:                 verdict.AmountDue.Add(registration),
		DueDate:                  verdict.DueDate,
		CycleCompletedAt:         verdict.CycleCompletedAt,
		Status:                   verdict.Status,
		AnchorSource:             anchor.Source,
		AsOf:                     now,
	}

	if anchor.Source != AnchorOpen {
		at := anchor.At
		status.AnchorAt = &at
	}
	if anchor.Source == AnchorPayment {
		paid := anchor.At
		status.LastPaymentAt = &paid
	}
	return status
}
