package memory

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

var day = time.Date(2025, time.September, 1, 17, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveGroup(ctx, billing.Group{ID: "grp-1", Name: "Algebra"}))
	require.NoError(t, m.SaveStudent(ctx, billing.Student{ID: "stu-b", Name: "Bea"}))
	require.NoError(t, m.SaveStudent(ctx, billing.Student{ID: "stu-a", Name: "Ari"}))
	require.NoError(t, m.Enroll(ctx, "grp-1", "stu-b"))
	require.NoError(t, m.Enroll(ctx, "grp-1", "stu-a"))
	return m
}

func TestMemory_GetMissingReturnsNil(t *testing.T) {
	m := New()
	ctx := context.Background()

	g, err := m.GetGroup(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, g)

	s, err := m.GetStudent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, s)

	ses, err := m.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, ses)
}

func TestMemory_EnrollRequiresKnownRecords(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	assert.True(t, billing.IsNotFound(m.Enroll(ctx, "grp-x", "stu-a")))
	assert.True(t, billing.IsNotFound(m.Enroll(ctx, "grp-1", "stu-x")))

	enrolled, err := m.ListEnrolled(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, enrolled, 2)
	assert.Equal(t, billing.StudentID("stu-a"), enrolled[0].ID)
	assert.Equal(t, billing.StudentID("stu-b"), enrolled[1].ID)
}

func TestMemory_SessionsOrderedAndScopedToGroup(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	require.NoError(t, m.SaveSession(ctx, billing.SessionRecord{ID: "s2", GroupID: "grp-1", Date: day.AddDate(0, 0, 7), Status: billing.SessionCompleted}))
	require.NoError(t, m.SaveSession(ctx, billing.SessionRecord{ID: "s1", GroupID: "grp-1", Date: day, Status: billing.SessionCompleted}))
	require.NoError(t, m.SaveSession(ctx, billing.SessionRecord{ID: "o1", GroupID: "grp-2", Date: day, Status: billing.SessionCompleted}))

	sessions, err := m.ListSessions(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, billing.SessionID("s1"), sessions[0].ID)
	assert.Equal(t, billing.SessionID("s2"), sessions[1].ID)

	// status transition replaces the record
	require.NoError(t, m.SaveSession(ctx, billing.SessionRecord{ID: "s2", GroupID: "grp-1", Date: day.AddDate(0, 0, 7), Status: billing.SessionCancelled}))
	got, err := m.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, billing.SessionCancelled, got.Status)
}

func TestMemory_RecordAttendanceUpserts(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	require.NoError(t, m.SaveSession(ctx, billing.SessionRecord{ID: "s1", GroupID: "grp-1", Date: day, Status: billing.SessionCompleted}))

	require.NoError(t, m.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "s1", StudentID: "stu-a", Status: billing.AttendanceAbsent}))
	require.NoError(t, m.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "s1", StudentID: "stu-a", Status: billing.AttendancePresent}))
	require.NoError(t, m.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "s1", StudentID: "stu-b", Status: billing.AttendanceLate}))

	marks, err := m.ListAttendance(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, billing.StudentID("stu-a"), marks[0].StudentID)
	assert.Equal(t, billing.AttendancePresent, marks[0].Status)

	err = m.RecordAttendance(ctx, billing.AttendanceMark{SessionID: "ghost", StudentID: "stu-a", Status: billing.AttendancePresent})
	assert.True(t, billing.IsNotFound(err))
}

func TestMemory_PaymentLedgerIsAppendOnly(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	paid := day.AddDate(0, 1, 0)
	entry := billing.PaymentLedgerEntry{
		ID: "pay-1", StudentID: "stu-a", GroupID: "grp-1",
		Amount: decimal.NewFromInt(80), Type: billing.PaymentSessionCycle,
		Status: billing.PaymentPaid, DueDate: paid, PaidDate: &paid,
	}

	require.NoError(t, m.AppendPayment(ctx, entry))
	assert.ErrorIs(t, m.AppendPayment(ctx, entry), billing.ErrDuplicatePayment)

	other := entry
	other.ID, other.StudentID = "pay-2", "stu-b"
	require.NoError(t, m.AppendPayment(ctx, other))

	all, err := m.ListPayments(ctx, "grp-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := m.ListPayments(ctx, "grp-1", "stu-a")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, billing.PaymentID("pay-1"), mine[0].ID)
}

func TestMemory_SnapshotsKeepLatest(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	older := roster.Snapshot{ID: "snap-1", GroupID: "grp-1", StudentID: "stu-a", ComputedAt: day}
	newer := roster.Snapshot{ID: "snap-2", GroupID: "grp-1", StudentID: "stu-a", ComputedAt: day.Add(time.Hour)}

	require.NoError(t, m.SaveSnapshots(ctx, []roster.Snapshot{newer}))
	require.NoError(t, m.SaveSnapshots(ctx, []roster.Snapshot{older}))

	snaps, err := m.ListSnapshots(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "snap-2", snaps[0].ID)
}

func TestMemory_Reset(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	require.NoError(t, m.Reset(ctx))

	groups, err := m.ListGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
