package monitor

import (
	"testing"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendTrimsWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := histAt(now,
		obs{-25 * time.Hour, 90},
		obs{-23 * time.Hour, 95},
		obs{-1 * time.Hour, 99},
	)

	h.Append(entity.PricePoint{Price: 100, Timestamp: now}, now.Add(-24*time.Hour))

	require.Equal(t, 3, h.Len())
	for _, p := range h.Points() {
		assert.LessOrEqual(t, now.Sub(p.Timestamp), 24*time.Hour)
	}
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 100.0, latest.Price)
}

func TestHistory_SecondToLast(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	h := NewHistory()
	_, ok := h.SecondToLast()
	assert.False(t, ok)

	h = histFromPrices(now, 10*time.Second, 99, 101)
	prev, ok := h.SecondToLast()
	require.True(t, ok)
	assert.Equal(t, 99.0, prev.Price)
}

func TestHistory_EarliestAtOrAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := histAt(now,
		obs{-30 * time.Minute, 100},
		obs{-20 * time.Minute, 102},
		obs{-10 * time.Minute, 104},
	)

	p, ok := h.EarliestAtOrAfter(now.Add(-25 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 102.0, p.Price)

	// boundary is inclusive
	p, ok = h.EarliestAtOrAfter(now.Add(-20 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 102.0, p.Price)

	_, ok = h.EarliestAtOrAfter(now.Add(time.Minute))
	assert.False(t, ok)
}

func TestHistory_PointsIsACopy(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := histFromPrices(now, time.Second, 1, 2, 3)

	points := h.Points()
	points[0].Price = 999

	first, ok := h.EarliestAtOrAfter(time.Time{})
	require.True(t, ok)
	assert.Equal(t, 1.0, first.Price)
}
