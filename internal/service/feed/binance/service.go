package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/karmen87/Crypto-Alarm/internal/service/feed"
	"github.com/shopspring/decimal"
)

var _ feed.Service = (*Service)(nil)

const defaultTimeout = time.Second * 10

type Service struct {
	cli     *binance.Client
	timeout time.Duration
}

type Option func(svc *Service)

func WithTimeout(d time.Duration) Option {
	return func(svc *Service) {
		svc.timeout = d
	}
}

// NewService 创建币安行情源
func NewService(cli *binance.Client, opts ...Option) *Service {
	svc := &Service{
		cli:     cli,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *Service) Fetch(ctx context.Context, ticker string) (feed.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	stats, err := svc.cli.NewListPriceChangeStatsService().Symbol(ticker).Do(ctx)
	if err != nil {
		return feed.Quote{}, classify(ticker, err)
	}
	if len(stats) == 0 {
		return feed.Quote{}, fmt.Errorf("%w: %s", feed.ErrPairNotFound, ticker)
	}
	return convertStats(stats[0])
}

func convertStats(stats *binance.PriceChangeStats) (feed.Quote, error) {
	var quote feed.Quote
	for _, field := range []struct {
		raw string
		dst *float64
	}{
		{stats.LastPrice, &quote.Price},
		{stats.PriceChangePercent, &quote.Change24h},
		{stats.HighPrice, &quote.High24h},
		{stats.LowPrice, &quote.Low24h},
		{stats.Volume, &quote.Volume},
	} {
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return feed.Quote{}, fmt.Errorf("parse stats for %s: %w", stats.Symbol, err)
		}
		*field.dst = d.InexactFloat64()
	}
	return quote, nil
}

// classify maps binance API errors onto the feed error taxonomy. The engine
// treats them all as "skip this ticker", callers of AddAsset see the detail.
func classify(ticker string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1121, -1100: // invalid symbol / illegal characters
			return fmt.Errorf("%w: %s", feed.ErrPairNotFound, ticker)
		case -1003, -1015:
			return fmt.Errorf("%w: %s", feed.ErrRateLimited, ticker)
		}
	}
	return fmt.Errorf("fetch %s: %w", ticker, err)
}
