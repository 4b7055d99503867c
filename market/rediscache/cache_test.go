package rediscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/swingtrader/market"
)

type fakeKV struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.(string)
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

type countingProvider struct {
	*market.Memory
	calls int
}

func (p *countingProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.calls++
	return p.Memory.LatestPrice(ctx, symbol)
}

func TestLatestPriceCachesUpstream(t *testing.T) {
	t.Parallel()

	up := &countingProvider{Memory: market.NewMemory()}
	up.SetPrice("AAPL", 187.5)
	kv := newFakeKV()
	c := New(up, kv, 30*time.Second)
	ctx := context.Background()

	px, err := c.LatestPrice(ctx, "aapl")
	require.NoError(t, err)
	assert.InDelta(t, 187.5, px, 1e-9)
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, "187.5", kv.data["swingtrader:px:AAPL"])
	assert.Equal(t, 30*time.Second, kv.ttls["swingtrader:px:AAPL"])

	up.SetPrice("AAPL", 190)
	px, err = c.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 187.5, px, 1e-9)
	assert.Equal(t, 1, up.calls)
}

func TestLatestPriceDegradesOnRedisFailure(t *testing.T) {
	t.Parallel()

	up := &countingProvider{Memory: market.NewMemory()}
	up.SetPrice("MSFT", 410)
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	c := New(up, kv, time.Minute, WithPrefix("t:"))

	px, err := c.LatestPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.InDelta(t, 410.0, px, 1e-9)
	assert.Equal(t, 1, up.calls)
}

func TestLatestPriceIgnoresCorruptEntry(t *testing.T) {
	t.Parallel()

	up := &countingProvider{Memory: market.NewMemory()}
	up.SetPrice("MSFT", 410)
	kv := newFakeKV()
	kv.data["swingtrader:px:MSFT"] = "garbage"
	c := New(up, kv, time.Minute)

	px, err := c.LatestPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.InDelta(t, 410.0, px, 1e-9)
	assert.Equal(t, "410", kv.data["swingtrader:px:MSFT"])
}

func TestUpstreamErrorIsReturned(t *testing.T) {
	t.Parallel()

	c := New(market.NewMemory(), newFakeKV(), time.Minute)
	_, err := c.LatestPrice(context.Background(), "NOPE")
	require.ErrorIs(t, err, market.ErrNoData)

	_, err = c.Bars(context.Background(), "NOPE", market.Day, 10)
	require.ErrorIs(t, err, market.ErrNoData)
}
