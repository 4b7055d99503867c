package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrealizedPL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		holding  Holding
		price    float64
		expected float64
	}{
		{"gain", Holding{Symbol: "AAPL", Qty: 10, AvgPrice: 100}, 110, 100},
		{"loss", Holding{Symbol: "AAPL", Qty: 10, AvgPrice: 100}, 95, -50},
		{"flat", Holding{Symbol: "AAPL", Qty: 10, AvgPrice: 100}, 100, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, UnrealizedPL(tt.holding, tt.price), 1e-9)
		})
	}
}

func TestHoldingAveragesCost(t *testing.T) {
	t.Parallel()

	h := &Holding{Symbol: "AAPL"}
	h.buy(10, 100)
	h.buy(10, 110)
	assert.Equal(t, 20, h.Qty)
	assert.InDelta(t, 105.0, h.AvgPrice, 1e-9)
	assert.InDelta(t, 2200.0, MarketValue(*h, 110), 1e-9)
}
