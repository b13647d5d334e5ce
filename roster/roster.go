/*
Package roster computes billing statuses for whole groups.

PURPOSE:
  Dashboards need the status of every student of a group at once. The
  engine is pure and shares nothing, so the roster fans out one
  computation per student and collects the results in roster order.

CONCURRENCY:
  Compute uses an errgroup bounded by Workers. Goroutines only read the
  shared session slice and their own pre-partitioned marks and payments.
  A failing student does not abort the others: the error is kept on the
  entry, never turned into a status. Only context cancellation stops the
  fan-out.

SEE ALSO:
  - billing/engine.go: the per-student computation
  - service.go:        fetching through a Source
  - summary.go:        dashboard aggregation
*/
package roster

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/tutoring-billing/billing"
)

// Input is the collaborator data of one group.
type Input struct {
	Group      billing.Group
	Students   []billing.Student
	Sessions   []billing.SessionRecord
	Attendance []billing.AttendanceMark
	Payments   []billing.PaymentLedgerEntry
	Now        time.Time
}

// Entry is the outcome for one student. Exactly one of Status and Err is set.
type Entry struct {
	Student billing.Student
	Status  *billing.StudentBillingStatus
	Err     error
}

// DefaultWorkers bounds the fan-out when no explicit limit is given.
func DefaultWorkers() int { return runtime.GOMAXPROCS(0) }

// Compute returns one entry per student, in the order of in.Students.
func Compute(ctx context.Context, in Input, workers int) ([]Entry, error) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	marks := make(map[billing.StudentID][]billing.AttendanceMark)
	for _, m := range in.Attendance {
		marks[m.StudentID] = append(marks[m.StudentID], m)
	}
	payments := make(map[billing.StudentID][]billing.PaymentLedgerEntry)
	for _, p := range in.Payments {
		payments[p.StudentID] = append(payments[p.StudentID], p)
	}

	entries := make([]Entry, len(in.Students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, student := range in.Students {
		if gctx.Err() != nil {
			break
		}
		i, student := i, student
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			status, err := billing.ComputeBillingStatus(
				student, in.Group, in.Sessions, marks[student.ID], payments[student.ID], in.Now,
			)
			entries[i] = Entry{Student: student}
			if err != nil {
				entries[i].Err = err
				return nil
			}
			entries[i].Status = &status
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
