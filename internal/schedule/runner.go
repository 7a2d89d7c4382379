package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Runner executes a task on a fixed period until the context is done.
// The first run happens immediately, a failing run never stops the loop.
type Runner struct {
	task     Task
	interval time.Duration
}

func NewRunner(task Task, interval time.Duration) *Runner {
	return &Runner{
		task:     task,
		interval: interval,
	}
}

func (r *Runner) Run(ctx context.Context) {
	slog.Info("task started", "task", r.task.Name(), "interval", r.interval)

	r.runOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("task stopped", "task", r.task.Name())
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if err := r.task.Run(ctx); err != nil {
		slog.Error("task run failed", "task", r.task.Name(), "error", err)
	}
}
