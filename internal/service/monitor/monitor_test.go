package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"github.com/karmen87/Crypto-Alarm/internal/service/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============ Mock 定义 ============

type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Fetch(ctx context.Context, ticker string) (feed.Quote, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(feed.Quote), args.Error(1)
}

type memStore struct {
	mu    sync.Mutex
	state State
	saves int
}

func (s *memStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

type failStore struct{}

func (failStore) Save(ctx context.Context, state State) error {
	return errors.New("disk full")
}

func (failStore) Load(ctx context.Context) (State, error) {
	return State{}, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (s *captureSink) Publish(ctx context.Context, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quote(price float64) feed.Quote {
	return feed.Quote{
		Price:     price,
		Change24h: 1.2,
		High24h:   price * 1.1,
		Low24h:    price * 0.9,
		Volume:    1000,
	}
}

// newTestMonitor wires a monitor with a fake clock and captured cooldown
// callbacks so tests control time completely.
func newTestMonitor(feedSvc feed.Service) (*Monitor, *memStore, *captureSink, *fakeClock, *[]func()) {
	store := &memStore{}
	sink := &captureSink{}
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	m := NewMonitor(feedSvc, store, WithSink(sink), WithClock(clk.Now))

	var pending []func()
	m.afterFunc = func(d time.Duration, f func()) *time.Timer {
		pending = append(pending, f)
		return time.NewTimer(time.Hour)
	}
	return m, store, sink, clk, &pending
}

func TestAddAsset(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(50000), nil).Once()

	m, store, _, _, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	asset, err := m.AddAsset(ctx, " btcusdt ")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", asset.Ticker)
	assert.Equal(t, "BTC", asset.Base)
	assert.Equal(t, "USDT", asset.Quote)
	assert.Equal(t, "BTC/USDT", asset.Name)
	assert.Equal(t, 50000.0, asset.Price)
	assert.Equal(t, 50000.0, asset.MaxPrice)
	assert.Equal(t, 50000.0, asset.MinPrice)

	// first history point is seeded on add
	assert.Equal(t, 1, m.history["BTCUSDT"].Len())
	assert.Equal(t, 1, store.saves)

	// duplicate add is rejected without touching the feed again
	_, err = m.AddAsset(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrValidation)

	feedSvc.AssertExpectations(t)
}

func TestAddAsset_Validation(t *testing.T) {
	feedSvc := new(MockFeed)
	m, _, _, _, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	// no known quote suffix
	_, err = m.AddAsset(ctx, "FOOBAR")
	assert.ErrorIs(t, err, ErrValidation)

	// unknown pair on the feed is surfaced to the caller
	feedSvc.On("Fetch", mock.Anything, "NOPEUSDT").Return(feed.Quote{}, feed.ErrPairNotFound).Once()
	_, err = m.AddAsset(ctx, "NOPEUSDT")
	assert.ErrorIs(t, err, feed.ErrPairNotFound)
	assert.Empty(t, m.Assets())
}

func TestTick_UpdatesExtremaAndHistory(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(100), nil).Once()
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(110), nil).Once()
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(90), nil).Once()

	m, _, _, clk, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "ETHUSDT")
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)
	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)

	assets := m.Assets()
	require.Len(t, assets, 1)
	a := assets[0]
	assert.Equal(t, 90.0, a.Price)
	assert.Equal(t, 110.0, a.MaxPrice)
	assert.Equal(t, 90.0, a.MinPrice)
	// extrema invariant
	assert.LessOrEqual(t, a.MinPrice, a.Price)
	assert.LessOrEqual(t, a.Price, a.MaxPrice)

	assert.Equal(t, 3, m.history["ETHUSDT"].Len())
}

func TestTick_FeedFailureIsAbsorbed(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(50000), nil).Once()
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(3000), nil).Once()

	m, _, _, clk, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)
	_, err = m.AddAsset(ctx, "ETHUSDT")
	require.NoError(t, err)

	// BTC fetch dies, ETH must still be merged
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(feed.Quote{}, errors.New("network down")).Once()
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(3300), nil).Once()

	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)

	assets := m.Assets()
	require.Len(t, assets, 2)
	assert.Equal(t, 50000.0, assets[0].Price, "failing ticker keeps last-known value")
	assert.Equal(t, 3300.0, assets[1].Price)

	feedSvc.AssertExpectations(t)
}

func TestTick_PublishesPriceUpdateWithoutAssets(t *testing.T) {
	feedSvc := new(MockFeed)
	m, _, sink, _, _ := newTestMonitor(feedSvc)

	m.Tick(context.Background())

	assert.Eventually(t, func() bool {
		return sink.count(EventPriceUpdate) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAlarmLifecycle(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(100), nil).Once()

	m, _, _, clk, pending := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)

	alarm, err := m.AddExtremeAlarm(ctx, "BTCUSDT", 10, entity.ExtremeMax)
	require.NoError(t, err)

	// 15% drawdown fires the alarm once
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(85), nil)
	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)

	fired := m.checkAlarms()
	require.Len(t, fired, 1)
	assert.Equal(t, alarm.ID, fired[0].Alarm.ID)
	assert.Equal(t, entity.DirectionDown, fired[0].Direction)
	assert.Contains(t, fired[0].Message, "extreme")
	assert.True(t, fired[0].Alarm.Triggered)

	// triggered and not resetting: skipped even though the drawdown holds
	fired = m.checkAlarms()
	assert.Empty(t, fired)

	// restart enters the cooldown state
	require.NoError(t, m.RestartAlarm(ctx, alarm.ID))
	got := m.Alarms()[0]
	assert.True(t, got.Triggered)
	assert.True(t, got.Resetting)
	require.NotNil(t, got.ResetUntil)
	assert.Equal(t, clk.Now().Add(60*time.Second), *got.ResetUntil)

	// while resetting the evaluator keeps running and the alarm re-fires
	fired = m.checkAlarms()
	assert.Len(t, fired, 1)

	// cooldown expiry re-arms
	require.Len(t, *pending, 1)
	(*pending)[0]()
	got = m.Alarms()[0]
	assert.False(t, got.Triggered)
	assert.False(t, got.Resetting)
	assert.Nil(t, got.ResetUntil)
}

func TestRestartAlarm_DeletedBeforeCooldown(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(100), nil).Once()

	m, _, _, _, pending := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)
	alarm, err := m.AddTargetAlarm(ctx, "BTCUSDT", 200, entity.DirectionUp)
	require.NoError(t, err)

	require.NoError(t, m.RestartAlarm(ctx, alarm.ID))
	require.NoError(t, m.RemoveAlarm(ctx, alarm.ID))

	// the pending re-arm finds nothing and must not panic or resurrect
	require.Len(t, *pending, 1)
	(*pending)[0]()
	assert.Empty(t, m.Alarms())
}

func TestRestartAlarm_NotFound(t *testing.T) {
	feedSvc := new(MockFeed)
	m, _, _, _, _ := newTestMonitor(feedSvc)

	err := m.RestartAlarm(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAsset_CascadesAlarms(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(50000), nil).Once()
	feedSvc.On("Fetch", mock.Anything, "ETHUSDT").Return(quote(3000), nil).Once()

	m, _, _, _, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)
	_, err = m.AddAsset(ctx, "ETHUSDT")
	require.NoError(t, err)

	_, err = m.AddTargetAlarm(ctx, "BTCUSDT", 60000, entity.DirectionUp)
	require.NoError(t, err)
	_, err = m.AddExtremeAlarm(ctx, "BTCUSDT", 5, entity.ExtremeMax)
	require.NoError(t, err)
	keep, err := m.AddTargetAlarm(ctx, "ETHUSDT", 4000, entity.DirectionUp)
	require.NoError(t, err)

	require.NoError(t, m.RemoveAsset(ctx, "BTCUSDT"))

	alarms := m.Alarms()
	require.Len(t, alarms, 1)
	assert.Equal(t, keep.ID, alarms[0].ID)
	assert.Len(t, m.Assets(), 1)

	err = m.RemoveAsset(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddAlarm_Validation(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(50000), nil).Once()

	m, _, _, _, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)

	_, err = m.AddTargetAlarm(ctx, "BTCUSDT", -5, entity.DirectionUp)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.AddTargetAlarm(ctx, "BTCUSDT", 60000, entity.Direction("sideways"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.AddExtremeAlarm(ctx, "BTCUSDT", 0, entity.ExtremeMax)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.AddTimeframeAlarm(ctx, "BTCUSDT", 5, entity.DirectionUp, 0, entity.UnitMinutes)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.AddTimeframeAlarm(ctx, "BTCUSDT", 5, entity.DirectionUp, 1, entity.TimeUnit("weeks"))
	assert.ErrorIs(t, err, ErrValidation)

	// alarms on unknown assets are impossible
	_, err = m.AddTargetAlarm(ctx, "DOGEUSDT", 1, entity.DirectionUp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSinceStartAlarm_Refires(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(100), nil).Once()

	m, _, _, clk, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)
	alarm, err := m.AddTimeframeAlarm(ctx, "BTCUSDT", 5, entity.DirectionEither, 0, entity.UnitSinceStart)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), alarm.LastResetTime)

	// +6% from the checkpoint fires and moves the checkpoint
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(106), nil).Once()
	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)
	firedAt := clk.Now()

	fired := m.checkAlarms()
	require.Len(t, fired, 1)
	assert.False(t, fired[0].Alarm.Triggered, "since-start alarms never latch")
	assert.Equal(t, firedAt, fired[0].Alarm.LastResetTime)

	// flat price against the new checkpoint: silent
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(106), nil).Once()
	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)
	assert.Empty(t, m.checkAlarms())

	// another +6.6% leg fires again without any restart
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(113), nil).Once()
	clk.Advance(10 * time.Second)
	m.updateAllPrices(ctx)
	fired = m.checkAlarms()
	require.Len(t, fired, 1)
	assert.Equal(t, entity.DirectionUp, fired[0].Direction)
}

func TestTargetAlarm_FiresOnceOnCrossing(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(99), nil).Once()

	m, _, _, clk, _ := newTestMonitor(feedSvc)
	ctx := context.Background()

	_, err := m.AddAsset(ctx, "BTCUSDT")
	require.NoError(t, err)
	_, err = m.AddTargetAlarm(ctx, "BTCUSDT", 100, entity.DirectionUp)
	require.NoError(t, err)

	for _, step := range []struct {
		price     float64
		wantFired int
	}{
		{99, 0},  // below target, 2 points now: crossing check, no cross
		{101, 1}, // crosses 100 from below
		{105, 0}, // stays above: one-shot, no re-fire
	} {
		feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(step.price), nil).Once()
		clk.Advance(10 * time.Second)
		m.updateAllPrices(ctx)
		fired := m.checkAlarms()
		assert.Len(t, fired, step.wantFired, "price %v", step.price)
	}
}

func TestRestore(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{state: State{
		Assets: []entity.Asset{{Ticker: "BTCUSDT", Base: "BTC", Quote: "USDT", Price: 100, MaxPrice: 120, MinPrice: 90}},
		Alarms: []entity.Alarm{{
			ID:        "a1",
			Ticker:    "BTCUSDT",
			Spec:      entity.TargetSpec{TargetPrice: 150, Direction: entity.DirectionUp},
			CreatedAt: now,
		}},
		History: map[string][]entity.PricePoint{
			"BTCUSDT": {{Price: 100, Timestamp: now}},
		},
	}}

	m := NewMonitor(new(MockFeed), store)
	require.NoError(t, m.Restore(context.Background()))

	require.Len(t, m.Assets(), 1)
	require.Len(t, m.Alarms(), 1)
	assert.Equal(t, "a1", m.Alarms()[0].ID)
	assert.Equal(t, 1, m.history["BTCUSDT"].Len())
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	feedSvc := new(MockFeed)
	feedSvc.On("Fetch", mock.Anything, "BTCUSDT").Return(quote(50000), nil).Once()

	m := NewMonitor(feedSvc, failStore{})

	asset, err := m.AddAsset(context.Background(), "BTCUSDT")
	require.NoError(t, err, "persistence is best-effort, the operation must succeed")
	assert.Equal(t, "BTCUSDT", asset.Ticker)
	require.Len(t, m.Assets(), 1)
}
