package monitor

import (
	"context"

	"github.com/karmen87/Crypto-Alarm/internal/schedule"
)

// PollTask adapts the monitor tick to the scheduler.
type PollTask struct {
	monitor *Monitor
}

func NewPollTask(m *Monitor) schedule.Task {
	return &PollTask{monitor: m}
}

func (t *PollTask) Run(ctx context.Context) error {
	t.monitor.Tick(ctx)
	return nil
}

func (t *PollTask) Name() string {
	return "price monitor task"
}
