package monitor

import (
	"context"
	"errors"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
)

var (
	// ErrValidation 参数非法, 拒绝后不产生任何状态变更
	ErrValidation = errors.New("monitor: validation failed")
	// ErrNotFound unknown ticker or alarm id.
	ErrNotFound = errors.New("monitor: not found")
)

// Event names published to the Sink, matching the client protocol.
const (
	EventPriceUpdate    = "price_update"
	EventAlarmTriggered = "alarm_triggered"
)

// PriceUpdate is the payload of EventPriceUpdate, one per tick.
type PriceUpdate struct {
	Assets []entity.Asset `json:"assets"`
	Alarms []entity.Alarm `json:"alarms"`
}

// AlarmEvent is the payload of EventAlarmTriggered, one per firing.
type AlarmEvent struct {
	Alarm     entity.Alarm     `json:"alarm"`
	Asset     entity.Asset     `json:"asset"`
	Message   string           `json:"message"`
	Direction entity.Direction `json:"direction"`
}

// State 全量快照, 持久化与恢复的单位
type State struct {
	Assets  []entity.Asset                 `json:"assets"`
	Alarms  []entity.Alarm                 `json:"alarms"`
	History map[string][]entity.PricePoint `json:"priceHistory"`
}

// Persistence stores the full state. Failures are absorbed by the engine,
// durability is best-effort.
type Persistence interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (State, error)
}

// Sink receives engine events, best-effort fan-out without acknowledgment.
type Sink interface {
	Publish(ctx context.Context, event string, payload any)
}
