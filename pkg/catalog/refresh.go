package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Refresher runs the catalog refresh on a cron schedule. It is the single
// writer behind the cache's snapshot swap.
type Refresher struct {
	cache    *Cache
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	logger   *slog.Logger
}

// NewRefresher creates a refresher with a cron schedule such as
// "@every 30m" or "0 * * * *".
func NewRefresher(cache *Cache, schedule string) *Refresher {
	return &Refresher{
		cache:    cache,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "catalog.refresher"),
	}
}

// Start begins scheduled refreshing. An empty schedule disables it.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" {
		r.logger.Info("catalog refresh schedule not configured, skipping")
		return nil
	}

	_, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.cache.Refresh(ctx); err != nil {
			r.logger.Error("scheduled catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("catalog refresher started", "schedule", r.schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		ctx := r.cron.Stop()
		<-ctx.Done()
		r.running = false
		r.logger.Info("catalog refresher stopped")
	}
}
