package feed

import (
	"context"
	"errors"
)

var (
	// ErrPairNotFound 交易所不存在该交易对
	ErrPairNotFound = errors.New("feed: pair not found")
	// ErrRateLimited the upstream rejected the call for request weight.
	ErrRateLimited = errors.New("feed: rate limited")
)

// Quote 24h 行情快照
type Quote struct {
	Price     float64
	Change24h float64
	High24h   float64
	Low24h    float64
	Volume    float64
}

type Service interface {
	Fetch(ctx context.Context, ticker string) (Quote, error)
}
