// Package workers runs scheduled background jobs.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

const defaultRunTimeout = 30 * time.Second

// Pruner deletes read notifications past retention.
type Pruner interface {
	PruneRead(ctx context.Context) (int64, error)
}

// PruneRecorder observes retention runs.
type PruneRecorder interface {
	NotificationsRemoved(n int64)
}

// NotificationPruner is a background worker that applies notification retention on a cron schedule.
type NotificationPruner struct {
	pruner   Pruner
	recorder PruneRecorder
	log      *slog.Logger
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewNotificationPruner creates the worker. schedule accepts five or six
// field cron expressions and descriptors such as @daily or @every 1h.
func NewNotificationPruner(pruner Pruner, schedule string, logger *slog.Logger) (*NotificationPruner, error) {
	if pruner == nil {
		return nil, fmt.Errorf("pruner is required")
	}
	schedule = strings.TrimSpace(schedule)
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &NotificationPruner{
		pruner:   pruner,
		log:      logger.With("worker", "notification_pruner"),
		schedule: schedule,
		timeout:  defaultRunTimeout,
	}
	w.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	w.cron.Schedule(sched, cron.FuncJob(w.runScheduled))
	return w, nil
}

// SetRecorder installs a metrics recorder.
func (w *NotificationPruner) SetRecorder(recorder PruneRecorder) {
	w.recorder = recorder
}

// Start begins the schedule. Calling Start twice is a no-op.
func (w *NotificationPruner) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.cron.Start()
	w.log.Info("notification pruner started", "schedule", w.schedule)
}

// Stop halts the schedule and waits for a running job until ctx is done.
func (w *NotificationPruner) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	select {
	case <-w.cron.Stop().Done():
		w.log.Info("notification pruner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce applies retention immediately.
func (w *NotificationPruner) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	count, err := w.pruner.PruneRead(ctx)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to prune notifications", "error", err)
		return 0, err
	}
	if w.recorder != nil {
		w.recorder.NotificationsRemoved(count)
	}
	if count > 0 {
		w.log.InfoContext(ctx, "pruned read notifications", "count", count, "duration", time.Since(start))
	}
	return count, nil
}

func (w *NotificationPruner) runScheduled() {
	_, _ = w.RunOnce(context.Background())
}
