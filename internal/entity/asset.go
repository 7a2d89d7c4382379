package entity

import (
	"time"
)

// Asset 被监控的交易对
type Asset struct {
	Ticker     string    `gorm:"primaryKey" json:"ticker"`
	Base       string    `json:"base"`
	Quote      string    `json:"quote"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Change24h  float64   `json:"change24h"`
	MaxPrice   float64   `json:"maxPrice"`
	MinPrice   float64   `json:"minPrice"`
	High24h    float64   `json:"high24h"`
	Low24h     float64   `json:"low24h"`
	Volume     float64   `json:"volume"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// PricePoint one observed price for a ticker.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
