package submit

import (
	"context"
	"log/slog"
	"time"

	"orderdesk-hq/callisto/pkg/store"
)

// OutboxSink delivers an outbox entry downstream (chat notification,
// status-update port). A nil error acknowledges delivery.
type OutboxSink interface {
	Deliver(ctx context.Context, entry *store.OutboxEntry) error
}

// OutboxWorker drains pending outbox entries to the sink and marks them
// processed on acknowledgement.
type OutboxWorker struct {
	store    *store.Store
	sink     OutboxSink
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewOutboxWorker creates the delivery worker.
func NewOutboxWorker(st *store.Store, sink OutboxSink, interval time.Duration) *OutboxWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxWorker{
		store:    st,
		sink:     sink,
		interval: interval,
		batch:    50,
		logger:   slog.Default().With("component", "submit.outbox"),
	}
}

// Run drains the outbox until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce delivers one batch. Failed deliveries stay pending and are
// retried next tick.
func (w *OutboxWorker) drainOnce(ctx context.Context) {
	entries, err := w.store.PendingOutbox(ctx, w.batch)
	if err != nil {
		w.logger.Error("outbox poll failed", "error", err)
		return
	}

	for _, entry := range entries {
		if err := w.sink.Deliver(ctx, entry); err != nil {
			w.logger.Warn("outbox delivery failed",
				"entry_id", entry.ID,
				"case_id", entry.CaseID,
				"event_type", entry.EventType,
				"error", err,
			)
			continue
		}
		if err := w.store.MarkOutboxProcessed(ctx, entry.ID, time.Now().UTC()); err != nil {
			w.logger.Error("outbox mark failed", "entry_id", entry.ID, "error", err)
		}
	}
}
