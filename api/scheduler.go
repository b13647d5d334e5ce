/*
scheduler.go - Periodic billing recomputation

PURPOSE:
  Recomputes the billing status of every enrolled student of every group
  and persists the results as snapshots, so dashboards and reminder jobs
  can read the last known state without running the engine.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run evaluates all groups at one instant (Now)
  - Students whose status cannot be computed are logged and skipped,
    never snapshotted with a guessed status
  - Stop cancels an in-flight run

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour, SCHEDULER_INTERVAL)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBillingScheduler(store, service, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recompute endpoint (manual run)
  - roster/service.go: GroupReport
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/tutoring-billing/billing"
	"github.com/warp/tutoring-billing/pkg/logger"
	"github.com/warp/tutoring-billing/roster"
)

// BillingScheduler recomputes and snapshots billing statuses.
type BillingScheduler struct {
	Store         roster.Store
	Service       *roster.Service
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBillingScheduler creates a new scheduler.
func NewBillingScheduler(store roster.Store, service *roster.Service, log *zap.Logger) *BillingScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingScheduler{
		Store:         store,
		Service:       service,
		Log:           log.With(zap.String(logger.FieldOperation, "billing_scheduler")),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler. The first run happens immediately.
func (bs *BillingScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.Log.Info("scheduler disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.cancel = cancel
	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)

	go bs.run(ctx)

	bs.Log.Info("scheduler started", zap.Duration("interval", bs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to return.
func (bs *BillingScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker == nil {
		return
	}
	bs.ticker.Stop()
	bs.cancel()
	bs.wg.Wait()
	bs.ticker = nil
	bs.Log.Info("scheduler stopped")
}

func (bs *BillingScheduler) run(ctx context.Context) {
	defer bs.wg.Done()

	bs.runLogged(ctx)
	for {
		select {
		case <-bs.ticker.C:
			bs.runLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (bs *BillingScheduler) runLogged(ctx context.Context) {
	if _, err := bs.RunOnce(ctx); err != nil && ctx.Err() == nil {
		bs.Log.Error("billing recompute failed", zap.Error(err))
	}
}

// RunOnce recomputes every group at bs.Now() and saves one snapshot per
// computed student.
func (bs *BillingScheduler) RunOnce(ctx context.Context) (RecomputeResponse, error) {
	start := time.Now()
	now := bs.Now()
	result := RecomputeResponse{RanAt: now}

	groups, err := bs.Store.ListGroups(ctx)
	if err != nil {
		return result, fmt.Errorf("list groups: %w", err)
	}

	for _, g := range groups {
		report, err := bs.Service.GroupReport(ctx, g.ID, now)
		if err != nil {
			return result, fmt.Errorf("group %s: %w", g.ID, err)
		}
		result.Groups++

		snapshots := make([]roster.Snapshot, 0, len(report.Entries))
		for _, e := range report.Entries {
			if e.Err != nil {
				result.Failed++
				bs.Log.Warn("billing status unknown",
					zap.String(logger.FieldGroupID, string(g.ID)),
					zap.String(logger.FieldStudentID, string(e.Student.ID)),
					zap.Bool("retryable", billing.IsRetryable(e.Err)),
					zap.Error(e.Err),
				)
				continue
			}
			snapshots = append(snapshots, roster.Snapshot{
				ID:         uuid.NewString(),
				GroupID:    g.ID,
				StudentID:  e.Student.ID,
				Status:     *e.Status,
				ComputedAt: now,
			})
		}
		if err := bs.Store.SaveSnapshots(ctx, snapshots); err != nil {
			return result, fmt.Errorf("save snapshots of group %s: %w", g.ID, err)
		}

		result.Snapshots += len(snapshots)
		result.Due += report.Summary.ByStatus[billing.StatusDue]
		result.Overdue += report.Summary.ByStatus[billing.StatusOverdue]
	}

	bs.Log.Info("billing recomputed",
		zap.Int("groups", result.Groups),
		zap.Int("snapshots", result.Snapshots),
		zap.Int("failed", result.Failed),
		zap.Int("due", result.Due),
		zap.Int("overdue", result.Overdue),
		zap.Duration(logger.FieldDuration, time.Since(start)),
	)
	return result, nil
}
