// Package memory provides an in-memory roster.Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/roster"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	groups      map[billing.GroupID]billing.Group
	students    map[billing.StudentID]billing.Student
	enrollments map[billing.GroupID]map[billing.StudentID]bool
	sessions    map[billing.SessionID]billing.SessionRecord
	attendance  map[markKey]billing.AttendanceMark
	payments    []billing.PaymentLedgerEntry
	paymentIDs  map[billing.PaymentID]bool
	snapshots   map[snapshotKey]roster.Snapshot
}

type markKey struct {
	SessionID billing.SessionID
	StudentID billing.StudentID
}

type snapshotKey struct {
	GroupID   billing.GroupID
	StudentID billing.StudentID
}

var _ roster.Store = (*Memory)(nil)

func New() *Memory {
	m := &Memory{}
	m.init()
	return m
}

func (m *Memory) init() {
	m.groups = make(map[billing.GroupID]billing.Group)
	m.students = make(map[billing.StudentID]billing.Student)
	m.enrollments = make(map[billing.GroupID]map[billing.StudentID]bool)
	m.sessions = make(map[billing.SessionID]billing.SessionRecord)
	m.attendance = make(map[markKey]billing.AttendanceMark)
	m.payments = nil
	m.paymentIDs = make(map[billing.PaymentID]bool)
	m.snapshots = make(map[snapshotKey]roster.Snapshot)
}

// =============================================================================
// GROUPS & STUDENTS
// =============================================================================

func (m *Memory) SaveGroup(_ context.Context, group billing.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id billing.GroupID) (*billing.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *Memory) ListGroups(_ context.Context) ([]billing.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.Group, 0, len(m.groups))
	for _, g := range m.groups {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveStudent(_ context.Context, student billing.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[student.ID] = student
	return nil
}

func (m *Memory) GetStudent(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Enroll links an existing student to an existing group.
func (m *Memory) Enroll(_ context.Context, groupID billing.GroupID, studentID billing.StudentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; !ok {
		return &billing.NotFoundError{Kind: "group", ID: string(groupID)}
	}
	if _, ok := m.students[studentID]; !ok {
		return &billing.NotFoundError{Kind: "student", ID: string(studentID)}
	}
	if m.enrollments[groupID] == nil {
		m.enrollments[groupID] = make(map[billing.StudentID]bool)
	}
	m.enrollments[groupID][studentID] = true
	return nil
}

func (m *Memory) ListEnrolled(_ context.Context, groupID billing.GroupID) ([]billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.Student, 0, len(m.enrollments[groupID]))
	for id := range m.enrollments[groupID] {
		result = append(result, m.students[id])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// SESSIONS & ATTENDANCE
// =============================================================================

func (m *Memory) SaveSession(_ context.Context, session billing.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) GetSession(_ context.Context, id billing.SessionID) (*billing.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListSessions(_ context.Context, groupID billing.GroupID) ([]billing.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionsLocked(groupID), nil
}

func (m *Memory) sessionsLocked(groupID billing.GroupID) []billing.SessionRecord {
	var result []billing.SessionRecord
	for _, s := range m.sessions {
		if s.GroupID == groupID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// RecordAttendance upserts the mark of (session, student).
func (m *Memory) RecordAttendance(_ context.Context, mark billing.AttendanceMark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[mark.SessionID]; !ok {
		return &billing.NotFoundError{Kind: "session", ID: string(mark.SessionID)}
	}
	m.attendance[markKey{SessionID: mark.SessionID, StudentID: mark.StudentID}] = mark
	return nil
}

func (m *Memory) ListAttendance(_ context.Context, groupID billing.GroupID) ([]billing.AttendanceMark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order := make(map[billing.SessionID]int)
	for i, s := range m.sessionsLocked(groupID) {
		order[s.ID] = i
	}
	var result []billing.AttendanceMark
	for k, mark := range m.attendance {
		if _, ok := order[k.SessionID]; ok {
			result = append(result, mark)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if order[result[i].SessionID] != order[result[j].SessionID] {
			return order[result[i].SessionID] < order[result[j].SessionID]
		}
		return result[i].StudentID < result[j].StudentID
	})
	return result, nil
}

// =============================================================================
// PAYMENT LEDGER (append-only)
// =============================================================================

func (m *Memory) AppendPayment(_ context.Context, entry billing.PaymentLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paymentIDs[entry.ID] {
		return billing.ErrDuplicatePayment
	}
	m.paymentIDs[entry.ID] = true
	m.payments = append(m.payments, entry)
	return nil
}

func (m *Memory) ListPayments(_ context.Context, groupID billing.GroupID, studentID billing.StudentID) ([]billing.PaymentLedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.PaymentLedgerEntry
	for _, p := range m.payments {
		if p.GroupID != groupID {
			continue
		}
		if studentID != "" && p.StudentID != studentID {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// SaveSnapshots keeps the latest snapshot per (group, student).
func (m *Memory) SaveSnapshots(_ context.Context, snapshots []roster.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		k := snapshotKey{GroupID: s.GroupID, StudentID: s.StudentID}
		if prev, ok := m.snapshots[k]; ok && prev.ComputedAt.After(s.ComputedAt) {
			continue
		}
		m.snapshots[k] = s
	}
	return nil
}

func (m *Memory) ListSnapshots(_ context.Context, groupID billing.GroupID) ([]roster.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []roster.Snapshot
	for k, s := range m.snapshots {
		if k.GroupID == groupID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return nil
}
