// Package scheduler runs the service's cron-like triggers: weekly full
// refresh (which also trims the journals) and daily analytics-aggregation
// hand-off. Each
// trigger polls a once-a-minute ticker and compares against its configured
// time, rather than pulling in a cron-expression library, matching this
// codebase's existing ticker-plus-select idiom for interval work.
package scheduler

import (
	"context"
	"time"

	"github.com/atlasdevji/prowhey-middleware/common"
	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/store"
)

const tickInterval = time.Minute

// Task is one unit of scheduled work. lockKey identifies the distributed
// lock guarding this task across replicas; run performs the work.
type Task struct {
	Name    string
	LockKey string
	LockTTL time.Duration
	ShouldRun func(now time.Time) bool
	Run     func(ctx context.Context) error
}

// Scheduler polls a set of tasks once a minute, acquiring a short-lived
// store-backed lock before running each one so multiple syncserver replicas
// sharing one scheduler config don't run the same task twice in the same
// minute.
type Scheduler struct {
	store  *store.Store
	tasks  []Task
	logger *common.ContextLogger
	now    func() time.Time
}

// New builds a Scheduler over tasks.
func New(s *store.Store, tasks []Task, logger *common.ContextLogger) *Scheduler {
	return &Scheduler{store: s, tasks: tasks, logger: logger, now: time.Now}
}

// Run blocks, polling every tickInterval until ctx is cancelled.
func (sch *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *Scheduler) tick(ctx context.Context) {
	now := sch.now()
	for _, task := range sch.tasks {
		if !task.ShouldRun(now) {
			continue
		}
		sch.runLocked(ctx, task)
	}
}

// runLocked acquires task's distributed lock before running it, so a missed
// or duplicate tick across replicas can never corrupt state — the lock,
// combined with the hash-deduplicated ingest write routine underneath every
// task, is what makes each trigger idempotent and catch-up safe.
func (sch *Scheduler) runLocked(ctx context.Context, task Task) {
	acquired, err := sch.store.SetNX(ctx, task.LockKey, "1", task.LockTTL)
	if err != nil {
		sch.logger.WithError(err).Error("scheduler: lock acquisition failed for " + task.Name)
		return
	}
	if !acquired {
		return
	}

	if err := task.Run(ctx); err != nil {
		sch.logger.WithError(err).Error("scheduler: task failed: " + task.Name)
	}
}

// WeeklyFullRefreshShouldRun reports whether now falls in the configured
// weekly full-refresh window.
func WeeklyFullRefreshShouldRun(cfg config.SchedulerConfig) func(time.Time) bool {
	return func(now time.Time) bool {
		return now.Weekday() == cfg.FullRefreshDay && now.Hour() == cfg.FullRefreshHour && now.Minute() == 0
	}
}

// DailyAnalyticsShouldRun reports whether now falls in the configured daily
// analytics-aggregation hand-off window.
func DailyAnalyticsShouldRun(cfg config.SchedulerConfig) func(time.Time) bool {
	return func(now time.Time) bool {
		return now.Hour() == cfg.AnalyticsHour && now.Minute() == cfg.AnalyticsMinute
	}
}
