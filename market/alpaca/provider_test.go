package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/swingtrader/market"
)

type fakeData struct {
	bars     []marketdata.Bar
	barsReq  marketdata.GetBarsRequest
	trade    *marketdata.Trade
	tradeReq marketdata.GetLatestTradeRequest
	err      error
}

func (f *fakeData) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barsReq = req
	return f.bars, f.err
}

func (f *fakeData) GetLatestTrade(_ string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	f.tradeReq = req
	return f.trade, f.err
}

func TestBarsConvertsAndTrims(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	fd := &fakeData{}
	for i := 0; i < 5; i++ {
		c := 100 + float64(i)
		fd.bars = append(fd.bars, marketdata.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000,
		})
	}
	now := start.AddDate(0, 0, 5)
	p := newProvider(fd, WithFeed("sip"))
	p.now = func() time.Time { return now }

	bars, err := p.Bars(context.Background(), "AAPL", market.Day, 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, market.Bar{
		Time: start.AddDate(0, 0, 4), Open: 103, High: 105, Low: 102, Close: 104, Volume: 1000,
	}, bars[2])

	assert.Equal(t, "sip", fd.barsReq.Feed)
	assert.Equal(t, marketdata.NewTimeFrame(1, marketdata.Day), fd.barsReq.TimeFrame)
	assert.Equal(t, now, fd.barsReq.End)
	assert.True(t, fd.barsReq.Start.Before(now.AddDate(0, 0, -3)))
}

func TestBarsErrors(t *testing.T) {
	t.Parallel()

	p := newProvider(&fakeData{})
	_, err := p.Bars(context.Background(), "AAPL", market.Day, 10)
	require.ErrorIs(t, err, market.ErrNoData)

	_, err = p.Bars(context.Background(), "AAPL", "1Week", 10)
	require.Error(t, err)

	boom := errors.New("boom")
	p = newProvider(&fakeData{err: boom})
	_, err = p.Bars(context.Background(), "AAPL", market.Hour, 10)
	require.ErrorIs(t, err, boom)
}

func TestLatestPrice(t *testing.T) {
	t.Parallel()

	fd := &fakeData{trade: &marketdata.Trade{Price: 187.42}}
	p := newProvider(fd)

	px, err := p.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 187.42, px, 1e-9)
	assert.Equal(t, marketdata.IEX, fd.tradeReq.Feed)

	p = newProvider(&fakeData{trade: &marketdata.Trade{}})
	_, err = p.LatestPrice(context.Background(), "AAPL")
	require.ErrorIs(t, err, market.ErrNoData)
}
