/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a group,
	its students, sessions, attendance and payments. Each scenario leaves
	its featured student in a known billing status as of the load day.

AVAILABLE SCENARIOS:

	fresh-student:   3 of 8 sessions attended                  -> PAID
	at-threshold:    7 of 8 sessions attended                  -> APPROACHING
	past-grace:      8 sessions, last one 40 days ago          -> OVERDUE
	paid-and-reset:  cycle paid, 2 sessions since              -> PAID
	multi-cycle:     17 sessions attended, nothing paid        -> DUE, 2 cycles
	legacy-monthly:  monthly fee group with registration fee   -> DUE

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the group via the factory presets
 3. Create and enroll students
 4. Add sessions relative to today (17:00 UTC)
 5. Record attendance and payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "past-grace"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - factory/group.go: Group presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-student",
		Name:        "Fresh Student",
		Description: "Per-session group (8 x 10.00), three sessions attended, one scheduled",
		GroupID:     "grp-fresh",
		StudentID:   "stu-maya",
		Expected:    string(billing.StatusPaid),
	},
	{
		ID:          "at-threshold",
		Name:        "At Threshold",
		Description: "Seven of eight sessions attended; a cancelled session does not count",
		GroupID:     "grp-threshold",
		StudentID:   "stu-omar",
		Expected:    string(billing.StatusApproaching),
	},
	{
		ID:          "past-grace",
		Name:        "Past Grace Period",
		Description: "A full cycle completed 40 days ago with a 30 day grace period",
		GroupID:     "grp-grace",
		StudentID:   "stu-lena",
		Expected:    string(billing.StatusOverdue),
	},
	{
		ID:          "paid-and-reset",
		Name:        "Paid and Reset",
		Description: "First cycle paid after session 8; two sessions attended since",
		GroupID:     "grp-reset",
		StudentID:   "stu-ivan",
		Expected:    string(billing.StatusPaid),
	},
	{
		ID:          "multi-cycle",
		Name:        "Multi-Cycle Arrears",
		Description: "Seventeen sessions attended without payment: two cycles owed",
		GroupID:     "grp-arrears",
		StudentID:   "stu-zoe",
		Expected:    string(billing.StatusDue),
	},
	{
		ID:          "legacy-monthly",
		Name:        "Legacy Monthly Group",
		Description: "Monthly fee 100 over 4 sessions plus an unpaid registration fee of 25",
		GroupID:     "grp-legacy",
		StudentID:   "stu-ana",
		Expected:    string(billing.StatusDue),
	},
}

var scenarioLoaders = map[string]func(*scenarioBuilder){
	"fresh-student":  loadFreshStudentScenario,
	"at-threshold":   loadAtThresholdScenario,
	"past-grace":     loadPastGraceScenario,
	"paid-and-reset": loadPaidAndResetScenario,
	"multi-cycle":    loadMultiCycleScenario,
	"legacy-monthly": loadLegacyMonthlyScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, ok := scenarioLoaders[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID, h.Now()); err != nil {
		h.fail(w, r, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string, now time.Time) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &billing.NotFoundError{Kind: "scenario", ID: id}
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.setScenario("")

	b := &scenarioBuilder{ctx: ctx, h: h, today: dayOf(now)}
	load(b)
	if b.err != nil {
		return b.err
	}
	h.setScenario(id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadFreshStudentScenario(b *scenarioBuilder) {
	g := b.group(factory.SessionTariffJSON("grp-fresh", "Algebra I", "10.00", 8), nil)
	b.student(g, "stu-maya", "Maya Chen")

	held := b.sessions(g, "fresh", weekly(3, 1), billing.SessionCompleted)
	b.sessions(g, "fresh-next", []int{-6}, billing.SessionScheduled)
	b.attend(held, "stu-maya", billing.AttendancePresent)
}

func loadAtThresholdScenario(b *scenarioBuilder) {
	g := b.group(factory.SessionTariffJSON("grp-threshold", "Geometry", "10.00", 8), nil)
	b.student(g, "stu-omar", "Omar Haddad")

	held := b.sessions(g, "thr", weekly(7, 1), billing.SessionCompleted)
	b.sessions(g, "thr-cancel", []int{3}, billing.SessionCancelled)
	b.attend(held[:5], "stu-omar", billing.AttendancePresent)
	b.attend(held[5:], "stu-omar", billing.AttendanceLate)
}

func loadPastGraceScenario(b *scenarioBuilder) {
	semesterStart := b.today.AddDate(0, 0, -120)
	g := b.group(factory.SessionTariffJSON("grp-grace", "Physics", "12.50", 8), func(t *billing.Tariff) {
		grace := 30
		t.GracePeriodDays = &grace
		t.SemesterStart = &semesterStart
	})
	b.student(g, "stu-lena", "Lena Novak")

	held := b.sessions(g, "grace", weekly(8, 40), billing.SessionCompleted)
	b.attend(held, "stu-lena", billing.AttendancePresent)
}

func loadPaidAndResetScenario(b *scenarioBuilder) {
	g := b.group(factory.SessionTariffJSON("grp-reset", "Chemistry", "10.00", 8), nil)
	b.student(g, "stu-ivan", "Ivan Petrov")

	held := b.sessions(g, "reset", weekly(10, 1), billing.SessionCompleted)
	b.attend(held, "stu-ivan", billing.AttendancePresent)

	// paid the day after session 8, before session 9
	paidAt := b.today.AddDate(0, 0, -14).Add(12 * time.Hour)
	b.pay(billing.PaymentLedgerEntry{
		ID:        "pay-reset-1",
		StudentID: "stu-ivan",
		GroupID:   g,
		Amount:    decimal.NewFromInt(80),
		Type:      billing.PaymentSessionCycle,
		Status:    billing.PaymentPaid,
		DueDate:   paidAt,
		PaidDate:  &paidAt,
	})
}

func loadMultiCycleScenario(b *scenarioBuilder) {
	g := b.group(factory.SessionTariffJSON("grp-arrears", "Calculus", "10.00", 8), nil)
	b.student(g, "stu-zoe", "Zoe Martin")
	b.student(g, "stu-sam", "Sam Okafor")

	days := make([]int, 17)
	for i := range days {
		days[i] = 1 + 2*(16-i)
	}
	held := b.sessions(g, "arr", days, billing.SessionCompleted)
	b.attend(held, "stu-zoe", billing.AttendancePresent)
	b.attend(held, "stu-sam", billing.AttendanceAbsent)
}

func loadLegacyMonthlyScenario(b *scenarioBuilder) {
	g := b.group(factory.MonthlyTariffJSON("grp-legacy", "Piano (legacy)", "100", "25"), nil)
	b.student(g, "stu-ana", "Ana Souza")

	held := b.sessions(g, "leg", weekly(4, 1), billing.SessionCompleted)
	b.attend(held, "stu-ana", billing.AttendancePresent)
	b.pay(billing.PaymentLedgerEntry{
		ID:        "pay-legacy-reg",
		StudentID: "stu-ana",
		GroupID:   g,
		Amount:    decimal.NewFromInt(25),
		Type:      billing.PaymentRegistration,
		Status:    billing.PaymentPending,
		DueDate:   b.today,
	})
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

// scenarioBuilder writes scenario records and keeps the first error.
type scenarioBuilder struct {
	ctx   context.Context
	h     *Handler
	today time.Time
	err   error
}

func (b *scenarioBuilder) group(jsonStr string, mutate func(*billing.Tariff)) billing.GroupID {
	if b.err != nil {
		return ""
	}
	g, err := b.h.GroupFactory.ParseGroup(jsonStr)
	if err != nil {
		b.err = err
		return ""
	}
	if mutate != nil {
		mutate(&g.Tariff)
	}
	b.err = b.h.Store.SaveGroup(b.ctx, g)
	return g.ID
}

func (b *scenarioBuilder) student(g billing.GroupID, id billing.StudentID, name string) {
	if b.err != nil {
		return
	}
	if b.err = b.h.Store.SaveStudent(b.ctx, billing.Student{ID: id, Name: name}); b.err != nil {
		return
	}
	b.err = b.h.Store.Enroll(b.ctx, g, id)
}

// sessions creates one session per entry of daysAgo, at 17:00 UTC.
// Negative values are in the future.
func (b *scenarioBuilder) sessions(g billing.GroupID, prefix string, daysAgo []int, status billing.SessionStatus) []billing.SessionID {
	ids := make([]billing.SessionID, 0, len(daysAgo))
	for i, d := range daysAgo {
		if b.err != nil {
			return ids
		}
		id := billing.SessionID(fmt.Sprintf("ses-%s-%02d", prefix, i+1))
		b.err = b.h.Store.SaveSession(b.ctx, billing.SessionRecord{
			ID:      id,
			GroupID: g,
			Date:    b.today.AddDate(0, 0, -d).Add(17 * time.Hour),
			Status:  status,
		})
		ids = append(ids, id)
	}
	return ids
}

func (b *scenarioBuilder) attend(sessions []billing.SessionID, student billing.StudentID, status billing.AttendanceStatus) {
	for _, s := range sessions {
		if b.err != nil {
			return
		}
		b.err = b.h.Store.RecordAttendance(b.ctx, billing.AttendanceMark{SessionID: s, StudentID: student, Status: status})
	}
}

func (b *scenarioBuilder) pay(entry billing.PaymentLedgerEntry) {
	if b.err != nil {
		return
	}
	b.err = b.h.Store.AppendPayment(b.ctx, entry)
}

// weekly returns n weekly offsets ending lastDaysAgo days before today.
func weekly(n, lastDaysAgo int) []int {
	days := make([]int, n)
	for i := range days {
		days[i] = lastDaysAgo + 7*(n-1-i)
	}
	return days
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
