package market

import (
	"context"
	"errors"
)

var ErrNoData = errors.New("market: no data")

// Provider supplies bars and the latest trade price for a symbol.
type Provider interface {
	Bars(ctx context.Context, symbol string, tf Timeframe, lookback int) ([]Bar, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
