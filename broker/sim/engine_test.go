package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/swingtrader/broker"
)

type testPrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (p *testPrices) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	px, ok := p.prices[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return px, nil
}

func (p *testPrices) set(symbol string, px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = px
}

func newEngine(t *testing.T, cash float64) (*Engine, *testPrices) {
	t.Helper()
	prices := &testPrices{prices: map[string]float64{"AAPL": 100, "MSFT": 50}}
	clock := func() time.Time { return time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC) }
	return NewEngine(cash, prices, WithClock(clock)), prices
}

func TestSubmitBuyFillsAtLatestPrice(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10_000)
	fill, err := e.SubmitBuy(context.Background(), "AAPL", 10)
	require.NoError(t, err)

	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, broker.Buy, fill.Side)
	assert.Equal(t, 10, fill.Qty)
	assert.InDelta(t, 100.0, fill.Price, 1e-9)
	assert.InDelta(t, 9_000.0, e.Cash(), 1e-9)

	holdings := e.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, Holding{Symbol: "AAPL", Qty: 10, AvgPrice: 100}, holdings[0])
}

func TestSubmitBuyRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		symbol string
		qty    int
	}{
		{"zero qty", "AAPL", 0},
		{"negative qty", "AAPL", -5},
		{"insufficient cash", "AAPL", 1_000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newEngine(t, 10_000)
			_, err := e.SubmitBuy(context.Background(), tt.symbol, tt.qty)
			require.ErrorIs(t, err, broker.ErrRejected)
			assert.InDelta(t, 10_000.0, e.Cash(), 1e-9)
			assert.Empty(t, e.Holdings())
		})
	}
}

func TestPriceFailureIsTransient(t *testing.T) {
	t.Parallel()

	e, prices := newEngine(t, 10_000)
	prices.err = errors.New("feed down")

	_, err := e.SubmitBuy(context.Background(), "AAPL", 1)
	require.Error(t, err)
	assert.True(t, broker.IsTransient(err))
	assert.InDelta(t, 10_000.0, e.Cash(), 1e-9)
}

func TestSubmitSellRealizesPL(t *testing.T) {
	t.Parallel()

	e, prices := newEngine(t, 10_000)
	ctx := context.Background()

	_, err := e.SubmitBuy(ctx, "AAPL", 10)
	require.NoError(t, err)

	prices.set("AAPL", 110)
	fill, err := e.SubmitSell(ctx, "AAPL", 4)
	require.NoError(t, err)
	assert.Equal(t, broker.Sell, fill.Side)
	assert.InDelta(t, 110.0, fill.Price, 1e-9)
	assert.InDelta(t, 40.0, e.RealizedPL(), 1e-9)
	assert.InDelta(t, 9_440.0, e.Cash(), 1e-9)

	_, err = e.SubmitSell(ctx, "AAPL", 7)
	require.ErrorIs(t, err, broker.ErrRejected)

	_, err = e.SubmitSell(ctx, "AAPL", 6)
	require.NoError(t, err)
	assert.Empty(t, e.Holdings())
	assert.InDelta(t, 100.0, e.RealizedPL(), 1e-9)
}

func TestEquityMarksHoldings(t *testing.T) {
	t.Parallel()

	e, prices := newEngine(t, 10_000)
	ctx := context.Background()

	_, err := e.SubmitBuy(ctx, "AAPL", 10)
	require.NoError(t, err)
	_, err = e.SubmitBuy(ctx, "MSFT", 20)
	require.NoError(t, err)

	prices.set("AAPL", 120)
	prices.set("MSFT", 45)

	eq, err := e.Equity(ctx)
	require.NoError(t, err)
	// cash 8000 + 10*120 + 20*45
	assert.InDelta(t, 10_100.0, eq, 1e-9)
}

func TestEquityLogsUnrealizedPL(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	prices := &testPrices{prices: map[string]float64{"AAPL": 100, "MSFT": 50}}
	e := NewEngine(10_000, prices, WithLogger(zap.New(core)))
	ctx := context.Background()

	_, err := e.SubmitBuy(ctx, "AAPL", 10)
	require.NoError(t, err)
	_, err = e.SubmitBuy(ctx, "MSFT", 20)
	require.NoError(t, err)

	prices.set("AAPL", 120)
	prices.set("MSFT", 45)

	_, err = e.Equity(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("sim: equity marked").All()
	require.Len(t, entries, 1)
	// 10*(120-100) + 20*(45-50)
	assert.InDelta(t, 100.0, entries[0].ContextMap()["unrealized_pl"], 1e-9)
}

func TestSlippage(t *testing.T) {
	t.Parallel()

	prices := &testPrices{prices: map[string]float64{"AAPL": 100}}
	e := NewEngine(10_000, prices, WithSlippage(10))

	buy, err := e.SubmitBuy(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.1, buy.Price, 1e-9)

	sell, err := e.SubmitSell(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, sell.Price, 1e-9)
}

func TestRestoreKeepsCash(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 1_000)
	e.Restore("AAPL", 10, 80)
	e.Restore("AAPL", 10, 100)
	e.Restore("MSFT", 0, 50)

	assert.InDelta(t, 1_000.0, e.Cash(), 1e-9)
	holdings := e.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, 20, holdings[0].Qty)
	assert.InDelta(t, 90.0, holdings[0].AvgPrice, 1e-9)

	fill, err := e.SubmitSell(context.Background(), "AAPL", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, fill.Qty)
	assert.InDelta(t, 200.0, e.RealizedPL(), 1e-9)
}
