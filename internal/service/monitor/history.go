package monitor

import (
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
)

// History is a time-ordered price series for one ticker, trimmed to the
// retention window on every append. Not safe for concurrent use, callers
// hold the monitor lock.
type History struct {
	points []entity.PricePoint
}

func NewHistory(points ...entity.PricePoint) *History {
	return &History{points: points}
}

// Append inserts a point and drops everything older than cutoff.
func (h *History) Append(p entity.PricePoint, cutoff time.Time) {
	h.points = append(h.points, p)
	h.Trim(cutoff)
}

// Trim drops all points with timestamp before cutoff.
func (h *History) Trim(cutoff time.Time) {
	i := 0
	for i < len(h.points) && h.points[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.points = append(h.points[:0], h.points[i:]...)
	}
}

func (h *History) Len() int {
	return len(h.points)
}

func (h *History) Latest() (entity.PricePoint, bool) {
	if len(h.points) == 0 {
		return entity.PricePoint{}, false
	}
	return h.points[len(h.points)-1], true
}

// SecondToLast is the previous observation, used by the target crossing check.
func (h *History) SecondToLast() (entity.PricePoint, bool) {
	if len(h.points) < 2 {
		return entity.PricePoint{}, false
	}
	return h.points[len(h.points)-2], true
}

// EarliestAtOrAfter returns the first point with timestamp >= t.
func (h *History) EarliestAtOrAfter(t time.Time) (entity.PricePoint, bool) {
	for _, p := range h.points {
		if !p.Timestamp.Before(t) {
			return p, true
		}
	}
	return entity.PricePoint{}, false
}

// Points returns a copy safe to hand out past the lock.
func (h *History) Points() []entity.PricePoint {
	out := make([]entity.PricePoint, len(h.points))
	copy(out, h.points)
	return out
}
