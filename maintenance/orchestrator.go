package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-commercebot/adapters/gojob"
	"github.com/goliatone/go-commercebot/core"
)

// SessionSweeper evicts conversations that have been idle past their TTL.
type SessionSweeper interface {
	EvictIdle(now time.Time) int
}

// Orchestrator runs the relay's periodic housekeeping: it evicts idle
// sessions on a ticker and enqueues background sweep jobs with
// window-scoped idempotency keys so overlapping schedulers collapse to
// one job per window.
type Orchestrator struct {
	Sessions SessionSweeper
	Jobs     core.JobEnqueuer
	Logger   core.Logger
	Interval time.Duration
	Now      func() time.Time
}

func NewOrchestrator(sessions SessionSweeper, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Orchestrator{
		Sessions: sessions,
		Interval: interval,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SweepSessions evicts idle sessions once and reports how many were
// removed.
func (o *Orchestrator) SweepSessions(ctx context.Context) (int, error) {
	if o == nil || o.Sessions == nil {
		return 0, fmt.Errorf("maintenance: orchestrator requires a session sweeper")
	}
	evicted := o.Sessions.EvictIdle(o.now())
	if evicted > 0 {
		o.logDebug(ctx, "idle sessions evicted", "count", evicted)
	}
	return evicted, nil
}

// ScheduleSessionSweep hands the eviction pass to the job queue instead
// of running it inline.
func (o *Orchestrator) ScheduleSessionSweep(ctx context.Context) error {
	return o.schedule(ctx, gojob.JobIDSessionEvict, nil)
}

// SchedulePendingOrderExpiry queues an expiry check for one
// conversation's pending order.
func (o *Orchestrator) SchedulePendingOrderExpiry(ctx context.Context, conversationID int64) error {
	if conversationID == 0 {
		return fmt.Errorf("maintenance: conversation id is required")
	}
	return o.schedule(ctx, gojob.JobIDPendingOrderExpiry, map[string]any{
		"conversation_id": conversationID,
	})
}

// ScheduleLedgerSweep queues a pass over the delivery ledger to retire
// rows whose retry budget is spent.
func (o *Orchestrator) ScheduleLedgerSweep(ctx context.Context) error {
	return o.schedule(ctx, gojob.JobIDLedgerSweep, nil)
}

// Run blocks until ctx is done, sweeping sessions every interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o == nil || o.Sessions == nil {
		return fmt.Errorf("maintenance: orchestrator requires a session sweeper")
	}
	ticker := time.NewTicker(o.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.SweepSessions(ctx); err != nil {
				o.logWarn(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) schedule(ctx context.Context, jobID string, params map[string]any) error {
	if o == nil || o.Jobs == nil {
		return fmt.Errorf("maintenance: orchestrator requires a job enqueuer")
	}
	return o.Jobs.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          jobID,
		Parameters:     params,
		IdempotencyKey: windowKey(jobID, o.now(), o.interval()),
		DedupPolicy:    "drop",
	})
}

func (o *Orchestrator) interval() time.Duration {
	if o != nil && o.Interval > 0 {
		return o.Interval
	}
	return 10 * time.Minute
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logDebug(ctx context.Context, message string, args ...any) {
	if o == nil || o.Logger == nil {
		return
	}
	o.Logger.WithContext(ctx).Debug(message, args...)
}

func (o *Orchestrator) logWarn(ctx context.Context, message string, args ...any) {
	if o == nil || o.Logger == nil {
		return
	}
	o.Logger.WithContext(ctx).Warn(message, args...)
}

// windowKey pins a job to its scheduling window so retries and
// concurrent schedulers produce the same idempotency key.
func windowKey(jobID string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s@%s", jobID, now.Truncate(window).Format(time.RFC3339))
}
