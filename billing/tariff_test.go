package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tutoring-billing/billing"
)

func TestResolveConfig_SessionFee_Defaults(t *testing.T) {
	cfg, err := billing.ResolveConfig(billing.Group{
		ID:     groupMath,
		Tariff: billing.Tariff{SessionFee: ptr(money("15"))},
	})
	require.NoError(t, err)

	assert.Equal(t, billing.FeeFromSession, cfg.FeeSource)
	assert.Equal(t, 8, cfg.SessionsPerCycle)
	assertMoney(t, "15", cfg.PricePerSession)
	assertMoney(t, "120", cfg.CycleFee)
	assert.Equal(t, 30, cfg.GracePeriodDays)
	assert.False(t, cfg.CountAbsences)
	assertMoney(t, "0", cfg.RegistrationFee)
}

func TestResolveConfig_SessionFeeWinsOverMonthly(t *testing.T) {
	cfg, err := billing.ResolveConfig(billing.Group{
		ID: groupMath,
		Tariff: billing.Tariff{
			SessionFee:       ptr(money("12")),
			MonthlyFee:       ptr(money("200")),
			PaymentThreshold: ptr(10),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, billing.FeeFromSession, cfg.FeeSource)
	assert.Equal(t, 10, cfg.SessionsPerCycle)
	assertMoney(t, "120", cfg.CycleFee)
}

func TestResolveConfig_LegacyMonthly(t *testing.T) {
	cfg, err := billing.ResolveConfig(billing.Group{
		ID:     groupMath,
		Tariff: billing.Tariff{MonthlyFee: ptr(money("100")), SessionFee: ptr(money("0"))},
	})
	require.NoError(t, err)

	assert.Equal(t, billing.FeeFromMonthly, cfg.FeeSource)
	assert.Equal(t, 4, cfg.SessionsPerCycle)
	assertMoney(t, "25", cfg.PricePerSession)
	assertMoney(t, "100", cfg.CycleFee)
}

func TestResolveConfig_LegacyMonthly_CycleFeeStaysExact(t *testing.T) {
	// 100 / 3 repeats; the cycle still costs exactly 100.
	cfg, err := billing.ResolveConfig(billing.Group{
		ID:     groupMath,
		Tariff: billing.Tariff{MonthlyFee: ptr(money("100")), PaymentThreshold: ptr(3)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.SessionsPerCycle)
	assertMoney(t, "100", cfg.CycleFee)
	assert.True(t, cfg.PricePerSession.GreaterThan(money("33.33")))
	assert.True(t, cfg.PricePerSession.LessThan(money("33.34")))

	sessions := weeklySessions(6)
	group := billing.Group{ID: groupMath, Tariff: billing.Tariff{MonthlyFee: ptr(money("100")), PaymentThreshold: ptr(3)}}
	status := compute(t, group, sessions, marksFor(alice, sessions, billing.AttendancePresent), nil, sessions[5].Date)
	assert.Equal(t, 2, status.CyclesUnpaid)
	assertMoney(t, "200", status.AmountDue)
}

func TestResolveConfig_ExplicitOverrides(t *testing.T) {
	start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)

	cfg, err := billing.ResolveConfig(billing.Group{
		ID: groupMath,
		Tariff: billing.Tariff{
			SessionFee:      ptr(money("10")),
			RegistrationFee: ptr(money("50")),
			GracePeriodDays: ptr(7),
			CountAbsences:   ptr(true),
			SemesterStart:   &start,
			SemesterEnd:     &end,
		},
	})
	require.NoError(t, err)

	assertMoney(t, "50", cfg.RegistrationFee)
	assert.Equal(t, 7, cfg.GracePeriodDays)
	assert.True(t, cfg.CountAbsences)
	require.NotNil(t, cfg.SemesterStart)
	assert.True(t, start.Equal(*cfg.SemesterStart))
	require.NotNil(t, cfg.SemesterEnd)
	assert.True(t, end.Equal(*cfg.SemesterEnd))
}

func TestResolveConfig_ZeroGraceIsAllowed(t *testing.T) {
	cfg, err := billing.ResolveConfig(billing.Group{
		ID:     groupMath,
		Tariff: billing.Tariff{SessionFee: ptr(money("10")), GracePeriodDays: ptr(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.GracePeriodDays)
}

func TestResolveConfig_Errors(t *testing.T) {
	zero := time.Time{}
	start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)

	tests := []struct {
		name   string
		tariff billing.Tariff
		target error
	}{
		{"no fee at all", billing.Tariff{}, billing.ErrConfig},
		{"zero fees", billing.Tariff{SessionFee: ptr(money("0")), MonthlyFee: ptr(money("0"))}, billing.ErrConfig},
		{"negative session fee", billing.Tariff{SessionFee: ptr(money("-1"))}, billing.ErrInvalidInput},
		{"negative monthly fee", billing.Tariff{MonthlyFee: ptr(money("-100"))}, billing.ErrInvalidInput},
		{"negative registration fee", billing.Tariff{SessionFee: ptr(money("10")), RegistrationFee: ptr(money("-5"))}, billing.ErrInvalidInput},
		{"negative threshold", billing.Tariff{SessionFee: ptr(money("10")), PaymentThreshold: ptr(-2)}, billing.ErrInvalidInput},
		{"negative grace", billing.Tariff{SessionFee: ptr(money("10")), GracePeriodDays: ptr(-1)}, billing.ErrInvalidInput},
		{"null semester start", billing.Tariff{SessionFee: ptr(money("10")), SemesterStart: &zero}, billing.ErrOrdering},
		{"null semester end", billing.Tariff{SessionFee: ptr(money("10")), SemesterEnd: &zero}, billing.ErrOrdering},
		{"end before start", billing.Tariff{SessionFee: ptr(money("10")), SemesterStart: &start, SemesterEnd: &before}, billing.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := billing.ResolveConfig(billing.Group{ID: groupMath, Tariff: tt.tariff})
			assert.ErrorIs(t, err, tt.target)
		})
	}
}
