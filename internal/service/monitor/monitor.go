package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"github.com/karmen87/Crypto-Alarm/internal/service/feed"
	"github.com/karmen87/Crypto-Alarm/pkg/pairx"
	"github.com/samber/lo"
)

const (
	defaultWindow   = 24 * time.Hour
	defaultCooldown = 60 * time.Second
)

// Monitor owns the full alarm state: assets, alarms and price history live
// behind one mutex, shared by the polling task and the client operations.
// Feed calls happen outside the lock, persistence writes on a snapshot copy.
type Monitor struct {
	mu      sync.Mutex
	assets  map[string]*entity.Asset
	alarms  map[string]*entity.Alarm
	history map[string]*History

	feedSvc feed.Service
	store   Persistence
	sink    Sink

	window   time.Duration
	cooldown time.Duration

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
}

type consoleSink struct{}

func (consoleSink) Publish(ctx context.Context, event string, payload any) {
	slog.Info("event", "name", event, "payload", payload)
}

type Option func(m *Monitor)

func WithSink(sink Sink) Option {
	return func(m *Monitor) {
		m.sink = sink
	}
}

func WithWindow(d time.Duration) Option {
	return func(m *Monitor) {
		m.window = d
	}
}

func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) {
		m.cooldown = d
	}
}

// WithClock overrides the time source, tests drive it.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func NewMonitor(feedSvc feed.Service, store Persistence, opts ...Option) *Monitor {
	m := &Monitor{
		assets:    make(map[string]*entity.Asset),
		alarms:    make(map[string]*entity.Alarm),
		history:   make(map[string]*History),
		feedSvc:   feedSvc,
		store:     store,
		sink:      consoleSink{},
		window:    defaultWindow,
		cooldown:  defaultCooldown,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads the last snapshot. An empty store is not an error.
func (m *Monitor) Restore(ctx context.Context) error {
	state, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range state.Assets {
		asset := a
		m.assets[a.Ticker] = &asset
	}
	for _, a := range state.Alarms {
		alarm := a
		m.alarms[a.ID] = &alarm
	}
	for ticker, points := range state.History {
		m.history[ticker] = NewHistory(points...)
	}
	slog.Info("state restored", "assets", len(m.assets), "alarms", len(m.alarms))
	return nil
}

// AddAsset validates and fetches the pair, then registers it with its first
// history point. The feed call runs outside the lock.
func (m *Monitor) AddAsset(ctx context.Context, pair string) (entity.Asset, error) {
	ticker := pairx.Normalize(pair)
	if ticker == "" {
		return entity.Asset{}, fmt.Errorf("%w: empty pair", ErrValidation)
	}
	base, quote, ok := pairx.Split(ticker)
	if !ok {
		return entity.Asset{}, fmt.Errorf("%w: could not parse pair %s", ErrValidation, ticker)
	}

	m.mu.Lock()
	_, exists := m.assets[ticker]
	m.mu.Unlock()
	if exists {
		return entity.Asset{}, fmt.Errorf("%w: pair %s already added", ErrValidation, ticker)
	}

	quote24h, err := m.feedSvc.Fetch(ctx, ticker)
	if err != nil {
		return entity.Asset{}, fmt.Errorf("pair %s: %w", ticker, err)
	}

	now := m.now()
	asset := entity.Asset{
		Ticker:     ticker,
		Base:       base,
		Quote:      quote,
		Name:       fmt.Sprintf("%s/%s", base, quote),
		Price:      quote24h.Price,
		Change24h:  quote24h.Change24h,
		MaxPrice:   quote24h.Price,
		MinPrice:   quote24h.Price,
		High24h:    quote24h.High24h,
		Low24h:     quote24h.Low24h,
		Volume:     quote24h.Volume,
		LastUpdate: now,
	}

	m.mu.Lock()
	if _, exists := m.assets[ticker]; exists {
		m.mu.Unlock()
		return entity.Asset{}, fmt.Errorf("%w: pair %s already added", ErrValidation, ticker)
	}
	m.assets[ticker] = &asset
	m.history[ticker] = NewHistory(entity.PricePoint{Price: quote24h.Price, Timestamp: now})
	m.mu.Unlock()

	m.persist(ctx)
	slog.Info("asset added", "ticker", ticker, "price", quote24h.Price)
	return asset, nil
}

// RemoveAsset drops the asset, its history and every alarm referencing it.
func (m *Monitor) RemoveAsset(ctx context.Context, ticker string) error {
	ticker = pairx.Normalize(ticker)

	m.mu.Lock()
	if _, ok := m.assets[ticker]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: asset %s", ErrNotFound, ticker)
	}
	delete(m.assets, ticker)
	delete(m.history, ticker)
	m.alarms = lo.OmitBy(m.alarms, func(id string, alarm *entity.Alarm) bool {
		return alarm.Ticker == ticker
	})
	m.mu.Unlock()

	m.persist(ctx)
	slog.Info("asset removed", "ticker", ticker)
	return nil
}

// AddTargetAlarm 添加目标价报警
func (m *Monitor) AddTargetAlarm(ctx context.Context, ticker string, targetPrice float64, dir entity.Direction) (entity.Alarm, error) {
	if targetPrice <= 0 {
		return entity.Alarm{}, fmt.Errorf("%w: target price must be positive", ErrValidation)
	}
	if err := validDirection(dir); err != nil {
		return entity.Alarm{}, err
	}
	return m.addAlarm(ctx, ticker, entity.TargetSpec{TargetPrice: targetPrice, Direction: dir})
}

// AddExtremeAlarm 添加回撤/反弹报警
func (m *Monitor) AddExtremeAlarm(ctx context.Context, ticker string, percentage float64, extremeType entity.ExtremeType) (entity.Alarm, error) {
	if percentage <= 0 {
		return entity.Alarm{}, fmt.Errorf("%w: percentage must be positive", ErrValidation)
	}
	if extremeType != entity.ExtremeMax && extremeType != entity.ExtremeMin {
		return entity.Alarm{}, fmt.Errorf("%w: unknown extreme type %q", ErrValidation, extremeType)
	}
	return m.addAlarm(ctx, ticker, entity.ExtremeSpec{Percentage: percentage, ExtremeType: extremeType})
}

// AddTimeframeAlarm 添加时间窗涨跌幅报警
func (m *Monitor) AddTimeframeAlarm(ctx context.Context, ticker string, percentage float64, dir entity.Direction, timeValue int, unit entity.TimeUnit) (entity.Alarm, error) {
	if percentage <= 0 {
		return entity.Alarm{}, fmt.Errorf("%w: percentage must be positive", ErrValidation)
	}
	if err := validDirection(dir); err != nil {
		return entity.Alarm{}, err
	}
	spec := entity.TimeframeSpec{Percentage: percentage, Direction: dir, TimeUnit: unit}
	switch unit {
	case entity.UnitSinceStart:
	case entity.UnitMinutes, entity.UnitHours, entity.UnitDays:
		if timeValue <= 0 {
			return entity.Alarm{}, fmt.Errorf("%w: time value must be positive", ErrValidation)
		}
		spec.TimeValue = timeValue
	default:
		return entity.Alarm{}, fmt.Errorf("%w: unknown time unit %q", ErrValidation, unit)
	}
	return m.addAlarm(ctx, ticker, spec)
}

func (m *Monitor) addAlarm(ctx context.Context, ticker string, spec entity.AlarmSpec) (entity.Alarm, error) {
	ticker = pairx.Normalize(ticker)
	now := m.now()
	alarm := entity.Alarm{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Spec:      spec,
		CreatedAt: now,
	}
	if tf, ok := spec.(entity.TimeframeSpec); ok && tf.SinceStart() {
		alarm.LastResetTime = now
	}

	m.mu.Lock()
	if _, ok := m.assets[ticker]; !ok {
		m.mu.Unlock()
		return entity.Alarm{}, fmt.Errorf("%w: asset %s", ErrNotFound, ticker)
	}
	m.alarms[alarm.ID] = &alarm
	m.mu.Unlock()

	m.persist(ctx)
	slog.Info("alarm added", "id", alarm.ID, "ticker", ticker, "type", spec.Type())
	return alarm, nil
}

func (m *Monitor) RemoveAlarm(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.alarms[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: alarm %s", ErrNotFound, id)
	}
	delete(m.alarms, id)
	m.mu.Unlock()

	m.persist(ctx)
	slog.Info("alarm removed", "id", id)
	return nil
}

// RestartAlarm puts a triggered alarm into the cooldown state and schedules
// the re-arm. The deferred task re-checks existence, a concurrently deleted
// alarm makes it a no-op.
func (m *Monitor) RestartAlarm(ctx context.Context, id string) error {
	m.mu.Lock()
	alarm, ok := m.alarms[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: alarm %s", ErrNotFound, id)
	}
	until := m.now().Add(m.cooldown)
	alarm.Resetting = true
	alarm.ResetUntil = &until
	m.mu.Unlock()

	m.persist(ctx)
	slog.Info("alarm restarting", "id", id, "resetUntil", until)

	m.afterFunc(m.cooldown, func() {
		m.mu.Lock()
		alarm, ok := m.alarms[id]
		if !ok {
			m.mu.Unlock()
			return
		}
		alarm.Triggered = false
		alarm.TriggeredAt = nil
		alarm.Resetting = false
		alarm.ResetUntil = nil
		m.mu.Unlock()

		m.persist(context.Background())
		slog.Info("alarm re-armed", "id", id)
	})
	return nil
}

// Assets returns a snapshot sorted by ticker.
func (m *Monitor) Assets() []entity.Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assetsLocked()
}

// Alarms returns a snapshot sorted by creation time.
func (m *Monitor) Alarms() []entity.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alarmsLocked()
}

func (m *Monitor) assetsLocked() []entity.Asset {
	assets := lo.Map(lo.Values(m.assets), func(a *entity.Asset, _ int) entity.Asset {
		return *a
	})
	sort.Slice(assets, func(i, j int) bool { return assets[i].Ticker < assets[j].Ticker })
	return assets
}

func (m *Monitor) alarmsLocked() []entity.Alarm {
	alarms := lo.Map(lo.Values(m.alarms), func(a *entity.Alarm, _ int) entity.Alarm {
		return *a
	})
	sort.Slice(alarms, func(i, j int) bool { return alarms[i].CreatedAt.Before(alarms[j].CreatedAt) })
	return alarms
}

// Tick is one full monitoring pass: poll, merge, evaluate, publish, persist.
func (m *Monitor) Tick(ctx context.Context) {
	m.updateAllPrices(ctx)
	fired := m.checkAlarms()

	m.mu.Lock()
	update := PriceUpdate{Assets: m.assetsLocked(), Alarms: m.alarmsLocked()}
	m.mu.Unlock()

	m.publish(ctx, EventPriceUpdate, update)
	for _, ev := range fired {
		m.publish(ctx, EventAlarmTriggered, ev)
	}

	go m.persist(ctx)
}

// updateAllPrices fetches every ticker outside the lock and merges results
// one by one. A failing fetch skips that ticker, the rest of the batch
// still runs.
func (m *Monitor) updateAllPrices(ctx context.Context) {
	m.mu.Lock()
	tickers := lo.Keys(m.assets)
	m.mu.Unlock()
	sort.Strings(tickers)

	for _, ticker := range tickers {
		quote, err := m.feedSvc.Fetch(ctx, ticker)
		if err != nil {
			slog.Error("failed to fetch price", "ticker", ticker, "error", err)
			continue
		}

		now := m.now()
		m.mu.Lock()
		asset, ok := m.assets[ticker]
		if !ok {
			// removed while we were fetching
			m.mu.Unlock()
			continue
		}
		asset.Price = quote.Price
		asset.Change24h = quote.Change24h
		asset.High24h = quote.High24h
		asset.Low24h = quote.Low24h
		asset.Volume = quote.Volume
		asset.LastUpdate = now
		if quote.Price > asset.MaxPrice {
			asset.MaxPrice = quote.Price
		}
		if quote.Price < asset.MinPrice {
			asset.MinPrice = quote.Price
		}

		hist, ok := m.history[ticker]
		if !ok {
			hist = NewHistory()
			m.history[ticker] = hist
		}
		hist.Append(entity.PricePoint{Price: quote.Price, Timestamp: now}, now.Add(-m.window))
		m.mu.Unlock()
	}
}

// checkAlarms runs the evaluator over every live alarm under one lock pass
// and applies the mutation policy. Since-start timeframe alarms move their
// checkpoint and stay armed, everything else latches triggered until a
// manual restart.
func (m *Monitor) checkAlarms() []AlarmEvent {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var fired []AlarmEvent
	for _, alarm := range m.alarms {
		if alarm.Triggered && !alarm.Resetting {
			continue
		}
		asset, ok := m.assets[alarm.Ticker]
		if !ok {
			continue
		}
		hist, ok := m.history[alarm.Ticker]
		if !ok {
			hist = NewHistory()
		}

		shouldFire, dir := evaluate(alarm, asset, hist, now)
		if !shouldFire {
			continue
		}

		if tf, ok := alarm.Spec.(entity.TimeframeSpec); ok && tf.SinceStart() {
			alarm.LastResetTime = now
		} else {
			triggeredAt := now
			alarm.Triggered = true
			alarm.TriggeredAt = &triggeredAt
		}

		fired = append(fired, AlarmEvent{
			Alarm:     *alarm,
			Asset:     *asset,
			Message:   alarmMessage(alarm, asset),
			Direction: dir,
		})
	}
	return fired
}

func alarmMessage(alarm *entity.Alarm, asset *entity.Asset) string {
	switch spec := alarm.Spec.(type) {
	case entity.TargetSpec:
		return fmt.Sprintf("%s (%s) reached target price of $%.2f!", asset.Name, asset.Ticker, spec.TargetPrice)
	case entity.ExtremeSpec:
		return fmt.Sprintf("%s (%s) hit extreme price level!", asset.Name, asset.Ticker)
	default:
		return fmt.Sprintf("%s (%s) hit timeframe target!", asset.Name, asset.Ticker)
	}
}

// publish fans out without waiting, delivery is best-effort.
func (m *Monitor) publish(ctx context.Context, event string, payload any) {
	go m.sink.Publish(ctx, event, payload)
}

// persist snapshots under the lock and writes outside it. Failures are
// logged and swallowed, in-memory state stays authoritative.
func (m *Monitor) persist(ctx context.Context) {
	m.mu.Lock()
	state := State{
		Assets:  m.assetsLocked(),
		Alarms:  m.alarmsLocked(),
		History: make(map[string][]entity.PricePoint, len(m.history)),
	}
	for ticker, hist := range m.history {
		state.History[ticker] = hist.Points()
	}
	m.mu.Unlock()

	if err := m.store.Save(ctx, state); err != nil {
		slog.Error("failed to persist snapshot", "error", err)
	}
}

func validDirection(dir entity.Direction) error {
	switch dir {
	case entity.DirectionUp, entity.DirectionDown, entity.DirectionEither:
		return nil
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrValidation, dir)
	}
}
