// Package alpaca reads bars and latest trades from the Alpaca market data API.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/internal/async"
	"github.com/rustyeddy/swingtrader/market"
)

// dataClient is the subset of *marketdata.Client used here.
type dataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

type Provider struct {
	client dataClient
	feed   string
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Provider)

// WithFeed selects the data feed ("iex" or "sip").
func WithFeed(feed string) Option {
	return func(p *Provider) { p.feed = feed }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(apiKey, apiSecret string, opts ...Option) *Provider {
	c := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return newProvider(c, opts...)
}

func newProvider(c dataClient, opts ...Option) *Provider {
	p := &Provider{
		client: c,
		feed:   marketdata.IEX,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bars returns up to lookback bars ending now, oldest first.
func (p *Provider) Bars(ctx context.Context, symbol string, tf market.Timeframe, lookback int) ([]market.Bar, error) {
	apiTF, err := timeFrame(tf)
	if err != nil {
		return nil, err
	}
	d, err := tf.Duration()
	if err != nil {
		return nil, err
	}

	// Calendar span wide enough to cover weekends and holidays.
	span := time.Duration(lookback) * d
	if d >= 24*time.Hour {
		span = span*3/2 + 7*24*time.Hour
	} else {
		span = span*4 + 4*24*time.Hour
	}
	end := p.now()
	req := marketdata.GetBarsRequest{
		TimeFrame: apiTF,
		Start:     end.Add(-span),
		End:       end,
		Feed:      p.feed,
	}

	raw, err := async.Do(ctx, func() ([]marketdata.Bar, error) { return p.client.GetBars(symbol, req) })
	if err != nil {
		return nil, fmt.Errorf("alpaca: bars %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("alpaca: bars %s: %w", symbol, market.ErrNoData)
	}

	bars := make([]market.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, market.Bar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	p.logger.Debug("alpaca: bars", zap.String("symbol", symbol), zap.Int("count", len(bars)))
	return market.Tail(bars, lookback), nil
}

func (p *Provider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	req := marketdata.GetLatestTradeRequest{Feed: p.feed}
	tr, err := async.Do(ctx, func() (*marketdata.Trade, error) { return p.client.GetLatestTrade(symbol, req) })
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest trade %s: %w", symbol, err)
	}
	if tr == nil || tr.Price <= 0 {
		return 0, fmt.Errorf("alpaca: latest trade %s: %w", symbol, market.ErrNoData)
	}
	return tr.Price, nil
}

func timeFrame(tf market.Timeframe) (marketdata.TimeFrame, error) {
	n, unit, err := tf.Parse()
	if err != nil {
		return marketdata.TimeFrame{}, err
	}
	switch unit {
	case market.UnitMin:
		return marketdata.NewTimeFrame(n, marketdata.Min), nil
	case market.UnitHour:
		return marketdata.NewTimeFrame(n, marketdata.Hour), nil
	default:
		return marketdata.NewTimeFrame(n, marketdata.Day), nil
	}
}

var _ market.Provider = (*Provider)(nil)
