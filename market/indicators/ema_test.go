package indicators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/swingtrader/market"
)

func closeBar(c float64) market.Bar {
	return market.Bar{Open: c, High: c, Low: c, Close: c}
}

func TestEMA_WarmupAndReady(t *testing.T) {
	ema := NewEMA(3)

	require.False(t, ema.Ready())
	require.Equal(t, 3, ema.Warmup())
	require.Equal(t, "EMA(3)", ema.Name())

	ema.Update(closeBar(1))
	require.False(t, ema.Ready())
	ema.Update(closeBar(2))
	require.False(t, ema.Ready())
	ema.Update(closeBar(3))
	require.True(t, ema.Ready())
}

func TestEMA_KnownSequence(t *testing.T) {
	ema := NewEMA(3)

	// alpha = 2/(3+1) = 0.5
	// 10 -> 10.5 -> 11.25 -> 12.125
	for _, v := range []float64{10, 11, 12, 13} {
		ema.Update(closeBar(v))
	}

	require.True(t, ema.Ready())
	require.InDelta(t, 12.125, ema.Float64(), 1e-9)
	require.InDelta(t, 11.25, ema.Prev(), 1e-9)
}

func TestEMA_Reset(t *testing.T) {
	ema := NewEMA(3)

	ema.Update(closeBar(10))
	ema.Update(closeBar(11))
	require.False(t, ema.Ready())

	ema.Reset()

	require.False(t, ema.Ready())
	require.Equal(t, 0.0, ema.Float64())

	ema.Update(closeBar(20))
	require.Equal(t, 20.0, ema.Float64())
}

func TestEMA_PanicsOnBadPeriod(t *testing.T) {
	require.Panics(t, func() { NewEMA(0) })
}
