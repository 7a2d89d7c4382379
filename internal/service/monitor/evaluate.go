package monitor

import (
	"math"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
)

// evaluate dispatches to the per-variant check. fired reports whether the
// alarm condition holds this tick, dir is the move that satisfied it.
func evaluate(alarm *entity.Alarm, asset *entity.Asset, hist *History, now time.Time) (fired bool, dir entity.Direction) {
	switch spec := alarm.Spec.(type) {
	case entity.TargetSpec:
		return evalTarget(spec, asset.Price, hist)
	case entity.ExtremeSpec:
		return evalExtreme(spec, asset)
	case entity.TimeframeSpec:
		return evalTimeframe(spec, alarm.LastResetTime, asset.Price, hist, now)
	default:
		return false, entity.DirectionNone
	}
}

// evalTarget is a one-shot crossing detector: with a previous observation it
// fires only on the tick where the price transitions across the target.
// With fewer than two points (a freshly added asset) it falls back to a
// level check so a newly created alarm on an already-satisfied condition
// still fires.
func evalTarget(spec entity.TargetSpec, price float64, hist *History) (bool, entity.Direction) {
	target := spec.TargetPrice
	eps := math.Max(1e-8, math.Abs(target)*1e-6)

	prev, ok := hist.SecondToLast()
	if !ok {
		switch spec.Direction {
		case entity.DirectionUp:
			return price+eps >= target, entity.DirectionUp
		case entity.DirectionDown:
			return price-eps <= target, entity.DirectionDown
		default:
			return math.Abs(price-target) <= eps, entity.DirectionNone
		}
	}

	crossedUp := prev.Price < target && price+eps >= target
	crossedDown := prev.Price > target && price-eps <= target

	switch spec.Direction {
	case entity.DirectionUp:
		if crossedUp {
			return true, entity.DirectionUp
		}
	case entity.DirectionDown:
		if crossedDown {
			return true, entity.DirectionDown
		}
	default:
		if crossedUp || crossedDown {
			if price >= target {
				return true, entity.DirectionUp
			}
			return true, entity.DirectionDown
		}
	}
	return false, entity.DirectionNone
}

// evalExtreme is level-triggered: it stays true every tick the drawdown
// (or rally) persists. Re-arming after a firing is the caller's job via
// restart.
func evalExtreme(spec entity.ExtremeSpec, asset *entity.Asset) (bool, entity.Direction) {
	if spec.ExtremeType == entity.ExtremeMax {
		if asset.MaxPrice <= 0 {
			return false, entity.DirectionNone
		}
		drawdown := (asset.MaxPrice - asset.Price) / asset.MaxPrice * 100
		if drawdown >= spec.Percentage {
			return true, entity.DirectionDown
		}
		return false, entity.DirectionNone
	}

	if asset.MinPrice <= 0 {
		return false, entity.DirectionNone
	}
	rally := (asset.Price - asset.MinPrice) / asset.MinPrice * 100
	if rally >= spec.Percentage {
		return true, entity.DirectionUp
	}
	return false, entity.DirectionNone
}

// evalTimeframe compares the current price to the earliest retained point
// inside the window. No point inside the window means insufficient data,
// no-fire.
func evalTimeframe(spec entity.TimeframeSpec, lastReset time.Time, price float64, hist *History, now time.Time) (bool, entity.Direction) {
	if hist.Len() < 2 {
		return false, entity.DirectionNone
	}

	var start time.Time
	if spec.SinceStart() {
		start = lastReset
	} else {
		d, ok := spec.Duration()
		if !ok {
			return false, entity.DirectionNone
		}
		start = now.Add(-d)
	}

	first, ok := hist.EarliestAtOrAfter(start)
	if !ok || first.Price == 0 {
		return false, entity.DirectionNone
	}

	change := (price - first.Price) / first.Price * 100

	switch spec.Direction {
	case entity.DirectionUp:
		if change >= spec.Percentage {
			return true, entity.DirectionUp
		}
	case entity.DirectionDown:
		if change <= -spec.Percentage {
			return true, entity.DirectionDown
		}
	default:
		if math.Abs(change) >= spec.Percentage {
			if change > 0 {
				return true, entity.DirectionUp
			}
			return true, entity.DirectionDown
		}
	}
	return false, entity.DirectionNone
}
