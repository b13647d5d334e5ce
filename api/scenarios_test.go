/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves its featured student in the billing
	status it advertises, both through the service and over HTTP. These
	tests double as integration tests of store + service + engine.
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/store/sqlite"
)

// scenarioNow is mid-afternoon so every "1 day ago, 17:00" session is past.
var scenarioNow = time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)

func TestScenarios_ExpectedStatus(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			// GIVEN: a freshly loaded scenario
			h := newTestHandler(t)
			ctx := context.Background()
			require.NoError(t, h.loadScenario(ctx, sc.ID, scenarioNow))

			// WHEN: the featured student is computed on the load day
			status, err := h.Service.StudentStatus(ctx, billing.GroupID(sc.GroupID), billing.StudentID(sc.StudentID), scenarioNow)
			require.NoError(t, err)

			// THEN: the advertised status comes out
			assert.Equal(t, sc.Expected, string(status.Status))
			assert.Equal(t, sc.ID, h.scenario())
		})
	}
}

func TestScenario_PaidAndResetCountsSincePayment(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "paid-and-reset", scenarioNow))

	status, err := h.Service.StudentStatus(ctx, "grp-reset", "stu-ivan", scenarioNow)
	require.NoError(t, err)

	assert.Equal(t, 2, status.CountableSessionsInCycle)
	assert.Equal(t, 1, status.CyclesAlreadyPaid)
	assert.Equal(t, billing.AnchorPayment, status.AnchorSource)
}

func TestScenario_MultiCycleArrears(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "multi-cycle", scenarioNow))

	report, err := h.Service.GroupReport(ctx, "grp-arrears", scenarioNow)
	require.NoError(t, err)
	require.Len(t, report.Entries, 2)

	zoe := report.Entries[1].Status
	require.NotNil(t, zoe)
	assert.Equal(t, billing.StudentID("stu-zoe"), zoe.StudentID)
	assert.Equal(t, 2, zoe.CyclesUnpaid)
	assert.True(t, zoe.AmountDue.Equal(decimal.NewFromInt(160)), "got %s", zoe.AmountDue)

	// the 16th session was 3 days ago at 17:00
	wantDue := time.Date(2026, time.March, 7, 17, 0, 0, 0, time.UTC).AddDate(0, 0, 30)
	require.NotNil(t, zoe.DueDate)
	assert.True(t, zoe.DueDate.Equal(wantDue), "got %s", zoe.DueDate)

	sam := report.Entries[0].Status
	require.NotNil(t, sam)
	assert.Equal(t, billing.StatusPaid, sam.Status)
	assert.Equal(t, 17, sam.AbsentSessionsInCycle)
}

func TestScenario_LegacyMonthlyAddsRegistration(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "legacy-monthly", scenarioNow))

	status, err := h.Service.StudentStatus(ctx, "grp-legacy", "stu-ana", scenarioNow)
	require.NoError(t, err)

	assert.Equal(t, 4, status.SessionsPerCycle)
	assert.True(t, status.AmountDue.Equal(decimal.NewFromInt(100)))
	assert.True(t, status.RegistrationFeeDue.Equal(decimal.NewFromInt(25)))
	assert.True(t, status.TotalDue.Equal(decimal.NewFromInt(125)))
}

func TestScenario_LoadReplacesPrevious(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadScenario(ctx, "fresh-student", scenarioNow))
	require.NoError(t, h.loadScenario(ctx, "past-grace", scenarioNow))

	groups, err := h.Store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, billing.GroupID("grp-grace"), groups[0].ID)
}

func TestScenario_UnknownID(t *testing.T) {
	h := newTestHandler(t)
	err := h.loadScenario(context.Background(), "nope", scenarioNow)
	assert.True(t, billing.IsNotFound(err))
}

func TestScenarios_OverHTTPWithSQLite(t *testing.T) {
	// GIVEN: the production store behind the router
	store, err := sqlite.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h := NewHandler(store, nil)
	h.Now = func() time.Time { return scenarioNow }
	srv := newServer(t, h)

	// WHEN: a scenario is loaded through the API
	resp := do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "past-grace"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// THEN: the current scenario and the billing endpoint agree
	var current ScenarioDTO
	decodeBody(t, do(t, srv, http.MethodGet, "/api/scenarios/current", ""), &current)
	assert.Equal(t, "past-grace", current.ID)

	var status billing.StudentBillingStatus
	resp = do(t, srv, http.MethodGet, "/api/groups/grp-grace/students/stu-lena/billing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &status)
	assert.Equal(t, billing.StatusOverdue, status.Status)
	assert.True(t, status.AmountDue.Equal(decimal.NewFromInt(100)))

	// reset clears everything
	resp = do(t, srv, http.MethodPost, "/api/scenarios/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/scenarios/current", "")
	var raw json.RawMessage
	decodeBody(t, resp, &raw)
	assert.Equal(t, "null", string(raw))
}
