package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS CLASSIFIER
// =============================================================================

// Classification is the billing verdict for an accrual.
type Classification struct {
	CyclesUnpaid int
	AmountDue    decimal.Decimal
	DueDate      *time.Time
	// CycleCompletedAt is the date of the session that completed the last
	// full unpaid cycle.
	CycleCompletedAt *time.Time
	Status           Status
}

// Classify maps the countable total C against the threshold N.
//
// ALGORITHM:
//  1. cyclesUnpaid = floor(C / N). The Nth session completes its cycle.
//  2. cyclesUnpaid == 0: nothing due; APPROACHING if C >= N-1, else PAID.
//  3. cyclesUnpaid >= 1: AmountDue = cyclesUnpaid × CycleFee; the due date
//     is the date of countable session #(cyclesUnpaid × N) plus the grace
//     period; OVERDUE once now is strictly after it, DUE before.
//
// EXAMPLE (N=8, grace 30d):
//
//	C=7  → APPROACHING, due 0
//	C=8  → 1 cycle, due = date(8th) + 30d
//	C=17 → 2 cycles, due = date(16th) + 30d, 17th starts the next cycle
func Classify(cfg CycleConfig, acc Accrual, now time.Time) Classification {
	n := cfg.SessionsPerCycle
	c := acc.Countable

	cycles := c / n
	if cycles == 0 {
		status := StatusPaid
		if c >= n-1 {
			status = StatusApproaching
		}
		return Classification{AmountDue: decimal.Zero, Status: status}
	}

	completed := acc.CountableDates[cycles*n-1]
	due := completed.AddDate(0, 0, cfg.GracePeriodDays)

	status := StatusDue
	if now.After(due) {
		status = StatusOverdue
	}

	return Classification{
		CyclesUnpaid:     cycles,
		AmountDue:        cfg.CycleFee.Mul(decimal.NewFromInt(int64(cycles))),
		DueDate:          &due,
		CycleCompletedAt: &completed,
		Status:           status,
	}
}

// RegistrationDue is the one-time fee still owed, zero when none is
// configured or it was already paid. It is reported next to the cycle debt
// and never changes the status.
func RegistrationDue(cfg CycleConfig, anchor Anchor) decimal.Decimal {
	if anchor.RegistrationSettled || !cfg.RegistrationFee.IsPositive() {
		return decimal.Zero
	}
	return cfg.RegistrationFee
}
