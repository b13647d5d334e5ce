package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func accrualOf(countable int, first time.Time) Accrual {
	acc := Accrual{Countable: countable, Attended: countable, Walked: countable}
	for i := 0; i < countable; i++ {
		acc.CountableDates = append(acc.CountableDates, first.AddDate(0, 0, i))
	}
	return acc
}

func testConfig() CycleConfig {
	return CycleConfig{
		SessionsPerCycle: 8,
		PricePerSession:  decimal.NewFromInt(10),
		CycleFee:         decimal.NewFromInt(80),
		GracePeriodDays:  30,
	}
}

func TestClassify_Table(t *testing.T) {
	first := time.Date(2025, time.October, 1, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		countable int
		cycles    int
		amount    int64
		status    Status
	}{
		{0, 0, 0, StatusPaid},
		{6, 0, 0, StatusPaid},
		{7, 0, 0, StatusApproaching},
		{8, 1, 80, StatusDue},
		{9, 1, 80, StatusDue},
		{15, 1, 80, StatusDue},
		{16, 2, 160, StatusDue},
		{24, 3, 240, StatusDue},
	}

	for _, tt := range tests {
		acc := accrualOf(tt.countable, first)
		// now is the day of the last countable session, well within grace
		now := first.AddDate(0, 0, tt.countable)

		got := Classify(testConfig(), acc, now)
		if got.CyclesUnpaid != tt.cycles {
			t.Errorf("C=%d: expected %d cycles, got %d", tt.countable, tt.cycles, got.CyclesUnpaid)
		}
		if !got.AmountDue.Equal(decimal.NewFromInt(tt.amount)) {
			t.Errorf("C=%d: expected amount %d, got %v", tt.countable, tt.amount, got.AmountDue)
		}
		if got.Status != tt.status {
			t.Errorf("C=%d: expected %s, got %s", tt.countable, tt.status, got.Status)
		}
		if (tt.cycles == 0) != (got.DueDate == nil) {
			t.Errorf("C=%d: due date presence mismatch", tt.countable)
		}
	}
}

func TestClassify_DueDateFromLastCompletedCycle(t *testing.T) {
	first := time.Date(2025, time.October, 1, 16, 0, 0, 0, time.UTC)
	acc := accrualOf(17, first)

	got := Classify(testConfig(), acc, first)

	// 16th countable session is first + 15 days
	want := first.AddDate(0, 0, 15+30)
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Fatalf("expected due date %v, got %v", want, got.DueDate)
	}
}

func TestClassify_OverdueOnlyStrictlyAfterDueDate(t *testing.T) {
	first := time.Date(2025, time.October, 1, 16, 0, 0, 0, time.UTC)
	acc := accrualOf(8, first)
	due := first.AddDate(0, 0, 7+30)

	if got := Classify(testConfig(), acc, due); got.Status != StatusDue {
		t.Errorf("at the due instant expected DUE, got %s", got.Status)
	}
	if got := Classify(testConfig(), acc, due.Add(time.Second)); got.Status != StatusOverdue {
		t.Errorf("after the due instant expected OVERDUE, got %s", got.Status)
	}
}

func TestClassify_SingleSessionCycle(t *testing.T) {
	cfg := testConfig()
	cfg.SessionsPerCycle = 1
	cfg.CycleFee = decimal.NewFromInt(10)
	first := time.Date(2025, time.October, 1, 16, 0, 0, 0, time.UTC)

	if got := Classify(cfg, accrualOf(0, first), first); got.Status != StatusApproaching {
		t.Errorf("N=1 with nothing accrued: next session is owed, expected APPROACHING, got %s", got.Status)
	}
	if got := Classify(cfg, accrualOf(3, first), first); got.CyclesUnpaid != 3 {
		t.Errorf("expected 3 cycles, got %d", got.CyclesUnpaid)
	}
}

func TestRegistrationDue(t *testing.T) {
	cfg := testConfig()
	if !RegistrationDue(cfg, Anchor{}).IsZero() {
		t.Error("no registration fee configured: nothing due")
	}

	cfg.RegistrationFee = decimal.NewFromInt(25)
	if !RegistrationDue(cfg, Anchor{}).Equal(decimal.NewFromInt(25)) {
		t.Error("unsettled registration fee should be due")
	}
	if !RegistrationDue(cfg, Anchor{RegistrationSettled: true}).IsZero() {
		t.Error("settled registration fee should not be due")
	}
}

func TestAnchor_Admits(t *testing.T) {
	at := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

	exclusive := Anchor{At: at, Source: AnchorPayment}
	if exclusive.Admits(at) {
		t.Error("payment anchor must exclude a session at the paid instant")
	}
	if !exclusive.Admits(at.Add(time.Minute)) {
		t.Error("payment anchor must admit later sessions")
	}

	inclusive := Anchor{At: at, Inclusive: true, Source: AnchorSemesterStart}
	if !inclusive.Admits(at) {
		t.Error("semester anchor must admit a session at the start instant")
	}
	if inclusive.Admits(at.Add(-time.Minute)) {
		t.Error("semester anchor must exclude earlier sessions")
	}

	if !(Anchor{Source: AnchorOpen}).Admits(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("open anchor admits everything")
	}
}
