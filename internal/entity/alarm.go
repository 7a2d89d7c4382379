package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type AlarmType string

const (
	AlarmTarget    AlarmType = "target"
	AlarmExtreme   AlarmType = "extreme"
	AlarmTimeframe AlarmType = "timeframe"
)

type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionEither Direction = "either"
	DirectionNone   Direction = ""
)

type ExtremeType string

const (
	ExtremeMax ExtremeType = "max"
	ExtremeMin ExtremeType = "min"
)

type TimeUnit string

const (
	UnitMinutes    TimeUnit = "minutes"
	UnitHours      TimeUnit = "hours"
	UnitDays       TimeUnit = "days"
	UnitSinceStart TimeUnit = "since_start"
)

// AlarmSpec 报警条件, target/extreme/timeframe 三选一
type AlarmSpec interface {
	Type() AlarmType
}

// TargetSpec fires when the price crosses a fixed target.
type TargetSpec struct {
	TargetPrice float64   `json:"targetPrice"`
	Direction   Direction `json:"direction"`
}

func (TargetSpec) Type() AlarmType { return AlarmTarget }

// ExtremeSpec fires on a drawdown from the running max (or rally from the
// running min) of at least Percentage percent.
type ExtremeSpec struct {
	Percentage  float64     `json:"percentage"`
	ExtremeType ExtremeType `json:"extremeType"`
}

func (ExtremeSpec) Type() AlarmType { return AlarmExtreme }

// TimeframeSpec fires on a percentage move over a lookback window.
// UnitSinceStart uses the alarm's LastResetTime checkpoint instead of a
// fixed duration.
type TimeframeSpec struct {
	Percentage float64   `json:"percentage"`
	Direction  Direction `json:"direction"`
	TimeValue  int       `json:"timeValue,omitempty"`
	TimeUnit   TimeUnit  `json:"timeUnit"`
}

func (TimeframeSpec) Type() AlarmType { return AlarmTimeframe }

func (s TimeframeSpec) SinceStart() bool { return s.TimeUnit == UnitSinceStart }

// Duration returns the fixed lookback, false for since-start specs.
func (s TimeframeSpec) Duration() (time.Duration, bool) {
	switch s.TimeUnit {
	case UnitMinutes:
		return time.Duration(s.TimeValue) * time.Minute, true
	case UnitHours:
		return time.Duration(s.TimeValue) * time.Hour, true
	case UnitDays:
		return time.Duration(s.TimeValue) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Alarm 报警记录
type Alarm struct {
	ID            string     `json:"id"`
	Ticker        string     `json:"ticker"`
	Spec          AlarmSpec  `json:"-"`
	Triggered     bool       `json:"triggered"`
	TriggeredAt   *time.Time `json:"triggeredAt,omitempty"`
	Resetting     bool       `json:"resetting"`
	ResetUntil    *time.Time `json:"resetUntil,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastResetTime time.Time  `json:"lastResetTime,omitempty"`
}

// alarmJSON is the flat wire/storage form, one object per alarm with the
// variant fields inlined next to the common ones.
type alarmJSON struct {
	ID            string     `json:"id"`
	Ticker        string     `json:"ticker"`
	Type          AlarmType  `json:"type"`
	Triggered     bool       `json:"triggered"`
	TriggeredAt   *time.Time `json:"triggeredAt,omitempty"`
	Resetting     bool       `json:"resetting"`
	ResetUntil    *time.Time `json:"resetUntil,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastResetTime *time.Time `json:"lastResetTime,omitempty"`

	TargetPrice *float64     `json:"targetPrice,omitempty"`
	Direction   *Direction   `json:"direction,omitempty"`
	Percentage  *float64     `json:"percentage,omitempty"`
	ExtremeType *ExtremeType `json:"extremeType,omitempty"`
	TimeValue   *int         `json:"timeValue,omitempty"`
	TimeUnit    *TimeUnit    `json:"timeUnit,omitempty"`
}

func (a Alarm) MarshalJSON() ([]byte, error) {
	out := alarmJSON{
		ID:          a.ID,
		Ticker:      a.Ticker,
		Triggered:   a.Triggered,
		TriggeredAt: a.TriggeredAt,
		Resetting:   a.Resetting,
		ResetUntil:  a.ResetUntil,
		CreatedAt:   a.CreatedAt,
	}
	if !a.LastResetTime.IsZero() {
		t := a.LastResetTime
		out.LastResetTime = &t
	}

	switch spec := a.Spec.(type) {
	case TargetSpec:
		out.Type = AlarmTarget
		out.TargetPrice = &spec.TargetPrice
		out.Direction = &spec.Direction
	case ExtremeSpec:
		out.Type = AlarmExtreme
		out.Percentage = &spec.Percentage
		out.ExtremeType = &spec.ExtremeType
	case TimeframeSpec:
		out.Type = AlarmTimeframe
		out.Percentage = &spec.Percentage
		out.Direction = &spec.Direction
		out.TimeUnit = &spec.TimeUnit
		if !spec.SinceStart() {
			out.TimeValue = &spec.TimeValue
		}
	default:
		return nil, fmt.Errorf("alarm %s: unknown spec %T", a.ID, a.Spec)
	}
	return json.Marshal(out)
}

func (a *Alarm) UnmarshalJSON(data []byte) error {
	var in alarmJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	a.ID = in.ID
	a.Ticker = in.Ticker
	a.Triggered = in.Triggered
	a.TriggeredAt = in.TriggeredAt
	a.Resetting = in.Resetting
	a.ResetUntil = in.ResetUntil
	a.CreatedAt = in.CreatedAt
	if in.LastResetTime != nil {
		a.LastResetTime = *in.LastResetTime
	}

	switch in.Type {
	case AlarmTarget:
		if in.TargetPrice == nil || in.Direction == nil {
			return fmt.Errorf("alarm %s: incomplete target spec", in.ID)
		}
		a.Spec = TargetSpec{TargetPrice: *in.TargetPrice, Direction: *in.Direction}
	case AlarmExtreme:
		if in.Percentage == nil || in.ExtremeType == nil {
			return fmt.Errorf("alarm %s: incomplete extreme spec", in.ID)
		}
		a.Spec = ExtremeSpec{Percentage: *in.Percentage, ExtremeType: *in.ExtremeType}
	case AlarmTimeframe:
		if in.Percentage == nil || in.Direction == nil || in.TimeUnit == nil {
			return fmt.Errorf("alarm %s: incomplete timeframe spec", in.ID)
		}
		spec := TimeframeSpec{Percentage: *in.Percentage, Direction: *in.Direction, TimeUnit: *in.TimeUnit}
		if in.TimeValue != nil {
			spec.TimeValue = *in.TimeValue
		}
		a.Spec = spec
	default:
		return fmt.Errorf("alarm %s: unknown type %q", in.ID, in.Type)
	}
	return nil
}
