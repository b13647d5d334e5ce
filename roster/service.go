package roster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/pkg/logger"
)

// Service fetches collaborator data through a Source and runs the engine.
// It owns the I/O boundary; the engine stays pure.
type Service struct {
	Source  Source
	Workers int
	Log     *zap.Logger
}

func NewService(src Source, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Source: src, Workers: DefaultWorkers(), Log: log}
}

// Report is the billing state of a whole group.
type Report struct {
	Group   billing.Group
	AsOf    time.Time
	Entries []Entry
	Summary Summary
}

// StudentStatus computes the status of one enrolled student.
func (s *Service) StudentStatus(ctx context.Context, groupID billing.GroupID, studentID billing.StudentID, now time.Time) (billing.StudentBillingStatus, error) {
	group, err := s.group(ctx, groupID)
	if err != nil {
		return billing.StudentBillingStatus{}, err
	}

	student, err := s.Source.GetStudent(ctx, studentID)
	if err != nil {
		return billing.StudentBillingStatus{}, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return billing.StudentBillingStatus{}, &billing.NotFoundError{Kind: "student", ID: string(studentID)}
	}

	enrolled, err := s.Source.ListEnrolled(ctx, groupID)
	if err != nil {
		return billing.StudentBillingStatus{}, fmt.Errorf("list enrolled: %w", err)
	}
	if !contains(enrolled, studentID) {
		return billing.StudentBillingStatus{}, &billing.NotFoundError{Kind: "enrollment", ID: string(groupID) + "/" + string(studentID)}
	}

	sessions, err := s.Source.ListSessions(ctx, groupID)
	if err != nil {
		return billing.StudentBillingStatus{}, fmt.Errorf("list sessions: %w", err)
	}
	marks, err := s.Source.ListAttendance(ctx, groupID)
	if err != nil {
		return billing.StudentBillingStatus{}, fmt.Errorf("list attendance: %w", err)
	}
	payments, err := s.Source.ListPayments(ctx, groupID, studentID)
	if err != nil {
		return billing.StudentBillingStatus{}, fmt.Errorf("list payments: %w", err)
	}

	status, err := billing.ComputeBillingStatus(*student, *group, sessions, marks, payments, now)
	if err != nil {
		s.Log.Warn("billing status unknown",
			zap.String(logger.FieldGroupID, string(groupID)),
			zap.String(logger.FieldStudentID, string(studentID)),
			zap.Error(err),
		)
		return billing.StudentBillingStatus{}, err
	}
	return status, nil
}

// GroupReport computes every enrolled student of a group.
func (s *Service) GroupReport(ctx context.Context, groupID billing.GroupID, now time.Time) (Report, error) {
	group, err := s.group(ctx, groupID)
	if err != nil {
		return Report{}, err
	}

	in := Input{Group: *group, Now: now}
	if in.Students, err = s.Source.ListEnrolled(ctx, groupID); err != nil {
		return Report{}, fmt.Errorf("list enrolled: %w", err)
	}
	if in.Sessions, err = s.Source.ListSessions(ctx, groupID); err != nil {
		return Report{}, fmt.Errorf("list sessions: %w", err)
	}
	if in.Attendance, err = s.Source.ListAttendance(ctx, groupID); err != nil {
		return Report{}, fmt.Errorf("list attendance: %w", err)
	}
	if in.Payments, err = s.Source.ListPayments(ctx, groupID, ""); err != nil {
		return Report{}, fmt.Errorf("list payments: %w", err)
	}

	start := time.Now()
	entries, err := Compute(ctx, in, s.Workers)
	if err != nil {
		return Report{}, err
	}
	summary := Summarize(entries)

	s.Log.Debug("roster computed",
		zap.String(logger.FieldGroupID, string(groupID)),
		zap.Int("students", summary.Students),
		zap.Int("errors", summary.Errors),
		zap.Duration(logger.FieldDuration, time.Since(start)),
	)
	return Report{Group: *group, AsOf: now, Entries: entries, Summary: summary}, nil
}

func (s *Service) group(ctx context.Context, id billing.GroupID) (*billing.Group, error) {
	group, err := s.Source.GetGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, &billing.NotFoundError{Kind: "group", ID: string(id)}
	}
	return group, nil
}

func contains(students []billing.Student, id billing.StudentID) bool {
	for _, s := range students {
		if s.ID == id {
			return true
		}
	}
	return false
}
