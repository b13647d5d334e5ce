package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/roster"
)

var semesterStart = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveGroup(ctx, billing.Group{
		ID:   "grp-1",
		Name: "Physics",
		Tariff: billing.Tariff{
			SessionFee:       ptr(decimal.RequireFromString("12.50")),
			PaymentThreshold: ptr(8),
			SemesterStart:    ptr(semesterStart),
		},
	}))
	require.NoError(t, s.SaveStudent(ctx, billing.Student{ID: "stu-1", Name: "Noor"}))
	require.NoError(t, s.Enroll(ctx, "grp-1", "stu-1"))
}

func TestStore_GroupRoundTripKeepsSparseTariff(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	g, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Physics", g.Name)
	require.NotNil(t, g.Tariff.SessionFee)
	assert.True(t, g.Tariff.SessionFee.Equal(decimal.RequireFromString("12.5")))
	assert.Nil(t, g.Tariff.MonthlyFee)
	assert.Nil(t, g.Tariff.GracePeriodDays)
	require.NotNil(t, g.Tariff.SemesterStart)
	assert.True(t, g.Tariff.SemesterStart.Equal(semesterStart))

	missing, err := s.GetGroup(ctx, "grp-none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestStore_Enroll(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	// idempotent
	require.NoError(t, s.Enroll(ctx, "grp-1", "stu-1"))

	students, err := s.ListEnrolled(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Noor", students[0].Name)

	assert.True(t, billing.IsNotFound(s.Enroll(ctx, "grp-none", "stu-1")))
	assert.True(t, billing.IsNotFound(s.Enroll(ctx, "grp-1", "stu-none")))
}

func TestStore_SessionsAndAttendance(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	first := semesterStart.Add(17 * time.Hour)

	require.NoError(t, s.SaveSession(ctx, billing.SessionRecord{ID: "ses-2", GroupID: "grp-1", Date: first.AddDate(0, 0, 7), Status: billing.SessionScheduled}))
	require.NoError(t, s.SaveSession(ctx, billing.SessionRecord{ID: "ses-1", GroupID: "grp-1", Date: first, Status: billing.SessionCompleted}))
	require.NoError(t, s.SaveSession(ctx, billing.SessionRecord{ID: "ses-2", GroupID: "grp-1", Date: first.AddDate(0, 0, 7), Status: billing.SessionCompleted}))

	sessions, err := s.ListSessions(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, billing.SessionID("ses-1"), sessions[0].ID)
	assert.True(t, sessions[0].Date.Equal(first))
	assert.Equal(t, billing.SessionCompleted, sessions[1].Status)

	require.NoError(t, s.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "ses-1", StudentID: "stu-1", Status: billing.AttendanceAbsent}))
	require.NoError(t, s.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "ses-1", StudentID: "stu-1", Status: billing.AttendanceLate}))

	marks, err := s.ListAttendance(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, billing.AttendanceLate, marks[0].Status)

	err = s.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "ses-x", StudentID: "stu-1", Status: billing.AttendancePresent})
	assert.True(t, billing.IsNotFound(err))
}

func TestStore_UnparseableDateComesBackZero(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, group_id, date, status, updated_at) VALUES ('ses-bad', 'grp-1', 'not-a-date', 'COMPLETED', '')`)
	require.NoError(t, err)

	ses, err := s.GetSession(ctx, "ses-bad")
	require.NoError(t, err)
	require.NotNil(t, ses)
	assert.True(t, ses.Date.IsZero())
}

func TestStore_PaymentLedger(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	paidAt := semesterStart.AddDate(0, 2, 0)

	settled := billing.PaymentLedgerEntry{
		ID: "pay-1", StudentID: "stu-1", GroupID: "grp-1",
		Amount: decimal.RequireFromString("100.00"), Type: billing.PaymentSessionCycle,
		Status: billing.PaymentPaid, DueDate: paidAt, PaidDate: &paidAt,
	}
	pending := billing.PaymentLedgerEntry{
		ID: "pay-2", StudentID: "stu-1", GroupID: "grp-1",
		Amount: decimal.NewFromInt(25), Type: billing.PaymentRegistration,
		Status: billing.PaymentPending, DueDate: paidAt,
	}
	require.NoError(t, s.AppendPayment(ctx, settled))
	require.NoError(t, s.AppendPayment(ctx, pending))
	assert.ErrorIs(t, s.AppendPayment(ctx, settled), billing.ErrDuplicatePayment)

	entries, err := s.ListPayments(ctx, "grp-1", "stu-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[billing.PaymentID]billing.PaymentLedgerEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	require.NotNil(t, byID["pay-1"].PaidDate)
	assert.True(t, byID["pay-1"].PaidDate.Equal(paidAt))
	assert.True(t, byID["pay-1"].Amount.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, byID["pay-2"].PaidDate)
	assert.Equal(t, billing.PaymentRegistration, byID["pay-2"].Type)

	others, err := s.ListPayments(ctx, "grp-1", "stu-other")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestStore_SnapshotsReturnLatestPerStudent(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	at := semesterStart.AddDate(0, 1, 0)

	older := roster.Snapshot{ID: "snap-1", GroupID: "grp-1", StudentID: "stu-1", ComputedAt: at,
		Status: billing.StudentBillingStatus{StudentID: "stu-1", Status: billing.StatusPaid}}
	newer := roster.Snapshot{ID: "snap-2", GroupID: "grp-1", StudentID: "stu-1", ComputedAt: at.Add(time.Hour),
		Status: billing.StudentBillingStatus{StudentID: "stu-1", Status: billing.StatusDue}}

	require.NoError(t, s.SaveSnapshots(ctx, []roster.Snapshot{older}))
	require.NoError(t, s.SaveSnapshots(ctx, []roster.Snapshot{newer}))

	snaps, err := s.ListSnapshots(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "snap-2", snaps[0].ID)
	assert.Equal(t, billing.StatusDue, snaps[0].Status.Status)
	assert.True(t, snaps[0].ComputedAt.Equal(at.Add(time.Hour)))
}

func TestStore_ServesTheBillingService(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		id := billing.SessionID("ses-" + string(rune('a'+i)))
		require.NoError(t, s.SaveSession(ctx, billing.SessionRecord{
			ID: id, GroupID: "grp-1", Date: semesterStart.AddDate(0, 0, 7*i).Add(17 * time.Hour), Status: billing.SessionCompleted,
		}))
		require.NoError(t, s.RecordAttendance(ctx, billing.AttendanceMark{SessionID: id, StudentID: "stu-1", Status: billing.AttendancePresent}))
	}

	svc := roster.NewService(s, nil)
	status, err := svc.StudentStatus(ctx, "grp-1", "stu-1", semesterStart.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusDue, status.Status)
	assert.True(t, status.AmountDue.Equal(decimal.NewFromInt(100)), "got %s", status.AmountDue)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx))

	g, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)
	assert.True(t, parseTime(formatTime(want)).Equal(want))
	assert.True(t, parseTime("2025-03-03T09:30:00Z").Equal(want))
	assert.True(t, parseTime("2025-03-03").Equal(time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)))
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("03/03/2025").IsZero())
	assert.Equal(t, "", formatTime(time.Time{}))
}
