package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
	"gorm.io/gorm"
)

// alarmRow flattens the alarm union into one JSON payload column, id and
// ticker stay as columns for indexing.
type alarmRow struct {
	ID      string `gorm:"primaryKey"`
	Ticker  string `gorm:"index"`
	Type    string `gorm:"index"`
	Payload string
}

func (alarmRow) TableName() string { return "alarms" }

type pricePointRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Ticker    string `gorm:"index"`
	Price     float64
	Timestamp time.Time `gorm:"index"`
}

func (pricePointRow) TableName() string { return "price_points" }

// snapshotRepo persists the whole engine state into sqlite. Save replaces
// the previous snapshot inside one transaction, an interrupted write leaves
// the old snapshot intact.
type snapshotRepo struct {
	db *gorm.DB
}

func NewSnapshotRepo(db *gorm.DB) monitor.Persistence {
	return &snapshotRepo{
		db: db,
	}
}

func (r *snapshotRepo) Save(ctx context.Context, state monitor.State) error {
	alarmRows := make([]alarmRow, 0, len(state.Alarms))
	for _, alarm := range state.Alarms {
		payload, err := json.Marshal(alarm)
		if err != nil {
			return fmt.Errorf("encode alarm %s: %w", alarm.ID, err)
		}
		alarmRows = append(alarmRows, alarmRow{
			ID:      alarm.ID,
			Ticker:  alarm.Ticker,
			Type:    string(alarm.Spec.Type()),
			Payload: string(payload),
		})
	}

	var pointRows []pricePointRow
	for ticker, points := range state.History {
		for _, p := range points {
			pointRows = append(pointRows, pricePointRow{
				Ticker:    ticker,
				Price:     p.Price,
				Timestamp: p.Timestamp,
			})
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&entity.Asset{}, &alarmRow{}, &pricePointRow{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		if len(state.Assets) > 0 {
			if err := tx.CreateInBatches(state.Assets, 100).Error; err != nil {
				return err
			}
		}
		if len(alarmRows) > 0 {
			if err := tx.CreateInBatches(alarmRows, 100).Error; err != nil {
				return err
			}
		}
		if len(pointRows) > 0 {
			if err := tx.CreateInBatches(pointRows, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *snapshotRepo) Load(ctx context.Context) (monitor.State, error) {
	var state monitor.State

	if err := r.db.WithContext(ctx).Find(&state.Assets).Error; err != nil {
		return monitor.State{}, err
	}

	var alarmRows []alarmRow
	if err := r.db.WithContext(ctx).Find(&alarmRows).Error; err != nil {
		return monitor.State{}, err
	}
	for _, row := range alarmRows {
		var alarm entity.Alarm
		if err := json.Unmarshal([]byte(row.Payload), &alarm); err != nil {
			return monitor.State{}, fmt.Errorf("decode alarm %s: %w", row.ID, err)
		}
		state.Alarms = append(state.Alarms, alarm)
	}

	var pointRows []pricePointRow
	if err := r.db.WithContext(ctx).Order("timestamp asc").Find(&pointRows).Error; err != nil {
		return monitor.State{}, err
	}
	state.History = make(map[string][]entity.PricePoint)
	for _, row := range pointRows {
		state.History[row.Ticker] = append(state.History[row.Ticker], entity.PricePoint{
			Price:     row.Price,
			Timestamp: row.Timestamp,
		})
	}
	return state, nil
}
