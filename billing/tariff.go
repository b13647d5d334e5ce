package billing

import "github.com/shopspring/decimal"

// =============================================================================
// BILLING CONFIGURATION RESOLVER
// =============================================================================

const (
	DefaultSessionThreshold = 8  // per-session tariffs
	DefaultMonthlyThreshold = 4  // legacy monthly tariffs
	DefaultGracePeriodDays  = 30 // days between cycle completion and OVERDUE
)

// ResolveConfig normalizes the sparse tariff of a group into a CycleConfig.
//
// RULES:
//   - SessionFee > 0: price = SessionFee, N = PaymentThreshold (default 8)
//   - else MonthlyFee > 0: N = PaymentThreshold (default 4), price = MonthlyFee / N
//   - neither: ConfigError
//
// A nil or zero threshold takes the default of the fee source. Negative
// fees, thresholds and grace periods are InvalidInputError.
func ResolveConfig(group Group) (CycleConfig, error) {
	t := group.Tariff

	fees := []struct {
		field string
		value *decimal.Decimal
	}{
		{"session_fee", t.SessionFee},
		{"monthly_fee", t.MonthlyFee},
		{"registration_fee", t.RegistrationFee},
	}
	for _, fee := range fees {
		if fee.value != nil && fee.value.IsNegative() {
			return CycleConfig{}, &InvalidInputError{Field: fee.field, Reason: "must not be negative"}
		}
	}
	if t.PaymentThreshold != nil && *t.PaymentThreshold < 0 {
		return CycleConfig{}, &InvalidInputError{Field: "payment_threshold", Reason: "must not be negative"}
	}
	if t.GracePeriodDays != nil && *t.GracePeriodDays < 0 {
		return CycleConfig{}, &InvalidInputError{Field: "grace_period_days", Reason: "must not be negative"}
	}

	cfg := CycleConfig{
		RegistrationFee: decimal.Zero,
		GracePeriodDays: DefaultGracePeriodDays,
	}

	switch {
	case t.SessionFee != nil && t.SessionFee.IsPositive():
		cfg.FeeSource = FeeFromSession
		cfg.SessionsPerCycle = threshold(t.PaymentThreshold, DefaultSessionThreshold)
		cfg.PricePerSession = *t.SessionFee
		cfg.CycleFee = t.SessionFee.Mul(decimal.NewFromInt(int64(cfg.SessionsPerCycle)))
	case t.MonthlyFee != nil && t.MonthlyFee.IsPositive():
		cfg.FeeSource = FeeFromMonthly
		cfg.SessionsPerCycle = threshold(t.PaymentThreshold, DefaultMonthlyThreshold)
		cfg.PricePerSession = t.MonthlyFee.Div(decimal.NewFromInt(int64(cfg.SessionsPerCycle)))
		cfg.CycleFee = *t.MonthlyFee
	default:
		return CycleConfig{}, &ConfigError{GroupID: group.ID, Reason: "no positive session_fee or monthly_fee"}
	}

	if cfg.SessionsPerCycle <= 0 || !cfg.PricePerSession.IsPositive() {
		return CycleConfig{}, &ConfigError{GroupID: group.ID, Reason: "cannot derive a positive price per session"}
	}

	if t.RegistrationFee != nil {
		cfg.RegistrationFee = *t.RegistrationFee
	}
	if t.GracePeriodDays != nil {
		cfg.GracePeriodDays = *t.GracePeriodDays
	}
	if t.CountAbsences != nil {
		cfg.CountAbsences = *t.CountAbsences
	}

	if t.SemesterStart != nil {
		if t.SemesterStart.IsZero() {
			return CycleConfig{}, &OrderingError{Record: "group", ID: string(group.ID), Field: "semester_start"}
		}
		start := *t.SemesterStart
		cfg.SemesterStart = &start
	}
	if t.SemesterEnd != nil {
		if t.SemesterEnd.IsZero() {
			return CycleConfig{}, &OrderingError{Record: "group", ID: string(group.ID), Field: "semester_end"}
		}
		end := *t.SemesterEnd
		cfg.SemesterEnd = &end
	}
	if cfg.SemesterStart != nil && cfg.SemesterEnd != nil && cfg.SemesterEnd.Before(*cfg.SemesterStart) {
		return CycleConfig{}, &ConfigError{GroupID: group.ID, Reason: "semester_end before semester_start"}
	}

	return cfg, nil
}

func threshold(v *int, def int) int {
	if v == nil || *v == 0 {
		return def
	}
	return *v
}
