package notification

import (
	"context"

	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// Fanout delivers every event to all wrapped sinks.
type Fanout []monitor.Sink

var _ monitor.Sink = (Fanout)(nil)

func (f Fanout) Publish(ctx context.Context, event string, payload any) {
	for _, sink := range f {
		sink.Publish(ctx, event, payload)
	}
}
