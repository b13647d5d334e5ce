package roster

import (
	"github.com/shopspring/decimal"

	"github.com/warp/tutoring-billing/billing"
)

// Summary aggregates a roster for dashboards.
type Summary struct {
	Students int                    `json:"students"`
	ByStatus map[billing.Status]int `json:"by_status"`
	Errors   int                    `json:"errors"`

	AmountDue          decimal.Decimal `json:"amount_due"`
	RegistrationFeeDue decimal.Decimal `json:"registration_fee_due"`
	TotalDue           decimal.Decimal `json:"total_due"`

	// Overdue lists overdue students in roster order.
	Overdue []billing.StudentID `json:"overdue"`
}

// Summarize totals the entries. Failed entries are counted but contribute
// nothing to the amounts.
func Summarize(entries []Entry) Summary {
	s := Summary{
		Students: len(entries),
		ByStatus: map[billing.Status]int{
			billing.StatusPaid:        0,
			billing.StatusApproaching: 0,
			billing.StatusDue:         0,
			billing.StatusOverdue:     0,
		},
		AmountDue:          decimal.Zero,
		RegistrationFeeDue: decimal.Zero,
		TotalDue:           decimal.Zero,
		Overdue:            []billing.StudentID{},
	}

	for _, e := range entries {
		if e.Err != nil || e.Status == nil {
			s.Errors++
			continue
		}
		st := e.Status
		s.ByStatus[st.Status]++
		s.AmountDue = s.AmountDue.Add(st.AmountDue)
		s.RegistrationFeeDue = s.RegistrationFeeDue.Add(st.RegistrationFeeDue)
		s.TotalDue = s.TotalDue.Add(st.TotalDue)
		if st.Status == billing.StatusOverdue {
			s.Overdue = append(s.Overdue, st.StudentID)
		}
	}
	return s
}
