package orchestrate

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/store"
)

// Resume redrives every case left in an active state by a previous worker.
// Waiting and terminal cases stay parked; active ones are recomputed from
// their persisted status. Called once at startup.
func (e *Engine) Resume(ctx context.Context) error {
	active := []cases.Status{
		cases.StatusCreated,
		cases.StatusStoringFile,
		cases.StatusParsing,
		cases.StatusRunningCommittee,
		cases.StatusResolvingCustomer,
		cases.StatusResolvingItems,
		cases.StatusCreatingDraft,
	}

	for _, status := range active {
		list, err := e.store.ListCases(ctx, store.CaseQuery{Status: status, Limit: 1000})
		if err != nil {
			return err
		}
		for _, c := range list {
			e.logger.Info("resuming case after restart", "case_id", c.ID, "status", c.Status)
			if err := e.Advance(ctx, c.ID); err != nil {
				e.logger.Error("case resume failed", "case_id", c.ID, "error", err)
			}
		}
	}
	return nil
}

// RunRetryWorker consumes the durable retry queue until ctx is cancelled.
// Claims use a visibility timeout so a crashed worker's items come back.
func (e *Engine) RunRetryWorker(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.retryOnce(ctx)
		}
	}
}

// retryOnce claims due retry items and redrives their cases.
func (e *Engine) retryOnce(ctx context.Context) {
	items, err := e.store.ClaimDueRetries(ctx, e.nowFunc().UTC(), e.config.RetryVisibility, 10)
	if err != nil {
		e.logger.Error("retry claim failed", "error", err)
		return
	}

	for _, item := range items {
		c, err := e.store.GetCase(ctx, item.CaseID)
		if err != nil {
			e.logger.Error("retry case lookup failed", "case_id", item.CaseID, "error", err)
			continue
		}
		if c.Status != cases.StatusQueuedForRetry {
			// The case moved on (cancelled, completed elsewhere); drop the item.
			if err := e.store.DeleteRetry(ctx, item.CaseID); err != nil {
				e.logger.Error("stale retry cleanup failed", "case_id", item.CaseID, "error", err)
			}
			continue
		}

		if err := e.appendTransition(ctx, c, cases.EventSubmitRetryStarted, cases.StatusCreatingDraft,
			cases.Actor{Type: cases.ActorScheduler},
			map[string]any{"attempt_count": item.AttemptCount}, nil); err != nil {
			e.logger.Error("retry transition failed", "case_id", item.CaseID, "error", err)
			continue
		}
		if err := e.Advance(ctx, item.CaseID); err != nil {
			e.logger.Error("retry advance failed", "case_id", item.CaseID, "error", err)
		}
	}
}

// StartExpirySweeper cancels cases whose waiting deadline passed, on a cron
// schedule. Returns the cron so the caller can stop it on shutdown.
func (e *Engine) StartExpirySweeper(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		e.sweepExpired(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	e.logger.Info("expiry sweeper started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
	}()
	return c, nil
}

// sweepExpired cancels every waiting case whose deadline passed.
func (e *Engine) sweepExpired(ctx context.Context) {
	expired, err := e.store.ListExpiredWaiting(ctx, e.nowFunc().UTC())
	if err != nil {
		e.logger.Error("expiry sweep failed", "error", err)
		return
	}

	for _, c := range expired {
		if !c.Status.IsAwaiting() {
			continue
		}
		if err := e.appendTransition(ctx, c, cases.EventCaseExpired, cases.StatusCancelled,
			cases.Actor{Type: cases.ActorScheduler},
			map[string]any{"code": order.CodeCaseExpired, "deadline": c.WaitDeadline}, nil); err != nil {
			e.logger.Error("case expiry failed", "case_id", c.ID, "error", err)
			continue
		}
		e.logger.Info("case expired", "case_id", c.ID)
	}
}
