/*
Package factory provides JSON to Go group conversion.

PURPOSE:
  Converts JSON group definitions into billing.Group values. Tariffs are
  configured by admins, not code: the factory validates the document shape
  and keeps the tariff sparse, so legacy groups that only carry a monthly
  fee survive the round trip unchanged.

JSON SCHEMA:
  {
    "id": "grp-math",
    "name": "Math 101",
    "tariff": {
      "session_fee": "10.00",
      "payment_threshold": 8,
      "registration_fee": "25",
      "grace_period_days": 30,
      "count_absences": false,
      "semester_start": "2025-09-01",
      "semester_end": "2026-01-31"
    }
  }

  Fees accept JSON numbers or decimal strings. Dates accept YYYY-MM-DD or
  RFC 3339. Absent fields stay absent; defaults are applied by
  billing.ResolveConfig, never here.

USAGE:
  f := factory.NewGroupFactory()
  group, err := f.ParseGroup(factory.SessionTariffJSON("grp-math", "Math 101", "10", 8))

SEE ALSO:
  - billing/tariff.go: defaults and tariff validation
  - api/scenarios.go:  demo groups built from the presets below
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/tutoring-billing/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// GroupJSON is the JSON representation of a group.
type GroupJSON struct {
	ID     string     `json:"id" validate:"required,max=64"`
	Name   string     `json:"name" validate:"required,max=200"`
	Tariff TariffJSON `json:"tariff"`
}

// TariffJSON represents the billing fields of a group.
type TariffJSON struct {
	SessionFee       *decimal.Decimal `json:"session_fee,omitempty"`
	MonthlyFee       *decimal.Decimal `json:"monthly_fee,omitempty"`
	PaymentThreshold *int             `json:"payment_threshold,omitempty" validate:"omitempty,gte=0"`
	RegistrationFee  *decimal.Decimal `json:"registration_fee,omitempty"`
	GracePeriodDays  *int             `json:"grace_period_days,omitempty" validate:"omitempty,gte=0"`
	CountAbsences    *bool            `json:"count_absences,omitempty"`
	SemesterStart    *string          `json:"semester_start,omitempty"`
	SemesterEnd      *string          `json:"semester_end,omitempty"`
}

// =============================================================================
// GROUP FACTORY
// =============================================================================

// GroupFactory converts JSON groups to billing.Group.
type GroupFactory struct {
	validate *validator.Validate
}

// NewGroupFactory creates a new group factory.
func NewGroupFactory() *GroupFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &GroupFactory{validate: v}
}

// ParseGroup parses a JSON string into a Group.
func (f *GroupFactory) ParseGroup(jsonStr string) (billing.Group, error) {
	var gj GroupJSON
	if err := json.Unmarshal([]byte(jsonStr), &gj); err != nil {
		return billing.Group{}, &billing.InvalidInputError{Field: "group", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return f.FromJSON(gj)
}

// FromJSON validates gj and converts it. Every failure is an
// InvalidInputError naming the offending field.
func (f *GroupFactory) FromJSON(gj GroupJSON) (billing.Group, error) {
	if err := f.validate.Struct(gj); err != nil {
		return billing.Group{}, validationError(err)
	}

	t := gj.Tariff
	tariff := billing.Tariff{
		SessionFee:       t.SessionFee,
		MonthlyFee:       t.MonthlyFee,
		PaymentThreshold: t.PaymentThreshold,
		RegistrationFee:  t.RegistrationFee,
		GracePeriodDays:  t.GracePeriodDays,
		CountAbsences:    t.CountAbsences,
	}

	var err error
	if tariff.SemesterStart, err = parseDate("tariff.semester_start", t.SemesterStart); err != nil {
		return billing.Group{}, err
	}
	if tariff.SemesterEnd, err = parseDate("tariff.semester_end", t.SemesterEnd); err != nil {
		return billing.Group{}, err
	}

	return billing.Group{
		ID:     billing.GroupID(gj.ID),
		Name:   gj.Name,
		Tariff: tariff,
	}, nil
}

// ToJSON converts a Group to GroupJSON.
func (f *GroupFactory) ToJSON(g billing.Group) GroupJSON {
	return GroupJSON{
		ID:   string(g.ID),
		Name: g.Name,
		Tariff: TariffJSON{
			SessionFee:       g.Tariff.SessionFee,
			MonthlyFee:       g.Tariff.MonthlyFee,
			PaymentThreshold: g.Tariff.PaymentThreshold,
			RegistrationFee:  g.Tariff.RegistrationFee,
			GracePeriodDays:  g.Tariff.GracePeriodDays,
			CountAbsences:    g.Tariff.CountAbsences,
			SemesterStart:    formatDate(g.Tariff.SemesterStart),
			SemesterEnd:      formatDate(g.Tariff.SemesterEnd),
		},
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// SessionTariffJSON returns a per-session group: fee is charged per
// countable session, billed every threshold sessions.
func SessionTariffJSON(id, name, fee string, threshold int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"tariff": {
			"session_fee": %q,
			"payment_threshold": %d
		}
	}`, id, name, fee, threshold)
}

// MonthlyTariffJSON returns a legacy group that only knows a monthly fee
// and a one-off registration fee.
func MonthlyTariffJSON(id, name, monthlyFee, registrationFee string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"tariff": {
			"monthly_fee": %q,
			"registration_fee": %q
		}
	}`, id, name, monthlyFee, registrationFee)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

var dateLayouts = []string{"2006-01-02", time.RFC3339Nano}

func parseDate(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &billing.InvalidInputError{Field: field, Reason: fmt.Sprintf("unparseable date %q", *v)}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	var s string
	if u := t.UTC(); u.Equal(u.Truncate(24 * time.Hour)) {
		s = u.Format("2006-01-02")
	} else {
		s = u.Format(time.RFC3339Nano)
	}
	return &s
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return &billing.InvalidInputError{
			Field:  jsonPath(fe.Namespace()),
			Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &billing.InvalidInputError{Field: "group", Reason: err.Error()}
}

// jsonPath drops the root struct name: "GroupJSON.tariff.grace_period_days"
// becomes "tariff.grace_period_days".
func jsonPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
