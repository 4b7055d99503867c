package exits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/swingtrader/ledger"
)

var thirds = []Target{
	{Label: "T1", Profit: 0.10, Fraction: 1.0 / 3},
	{Label: "T2", Profit: 0.15, Fraction: 1.0 / 3},
	{Label: "T3", Profit: 0.20, Fraction: 1.0 / 3},
}

func lot(qty, remaining int, stop float64) ledger.Position {
	return ledger.Position{
		ID:                "p1",
		Symbol:            "AAPL",
		EntryDate:         time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		EntryPrice:        100,
		OriginalQuantity:  qty,
		RemainingQuantity: remaining,
		StopLossPrice:     stop,
		Status:            ledger.StatusOpen,
	}
}

func TestTargetQty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 33, targetQty(thirds, 0, lot(100, 100, 83)))
	assert.Equal(t, 33, targetQty(thirds, 1, lot(100, 67, 83)))
	assert.Equal(t, 34, targetQty(thirds, 2, lot(100, 34, 83)))

	quarter := []Target{{Label: "T1", Profit: 0.1, Fraction: 0.25}}
	assert.Equal(t, 2, targetQty(quarter, 0, lot(10, 10, 83)))
	assert.Equal(t, 1, targetQty(quarter, 0, lot(2, 2, 83)))
	assert.Equal(t, 1, targetQty(quarter, 0, lot(10, 1, 83)))
}

func TestDecide(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	rules := Rules{Targets: thirds, MaxHoldDays: 10}

	tests := []struct {
		name     string
		pos      ledger.Position
		price    float64
		now      time.Time
		partials []ledger.PartialExit
		want     Action
	}{
		{
			name:  "hold below first target",
			pos:   lot(100, 100, 83),
			price: 105,
			now:   now,
		},
		{
			name:  "stop breach sells remaining",
			pos:   lot(100, 67, 91),
			price: 91,
			now:   now,
			want:  Action{Kind: Full, Reason: ledger.ReasonStopLoss, Qty: 67},
		},
		{
			name:  "stop beats time exit",
			pos:   lot(100, 100, 83),
			price: 80,
			now:   now.AddDate(0, 0, 30),
			want:  Action{Kind: Full, Reason: ledger.ReasonStopLoss, Qty: 100},
		},
		{
			name:  "time exit beats target",
			pos:   lot(100, 100, 83),
			price: 125,
			now:   time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC),
			want:  Action{Kind: Full, Reason: ledger.ReasonTimeExit, Qty: 100},
		},
		{
			name:  "one day short of time exit",
			pos:   lot(100, 100, 83),
			price: 101,
			now:   time.Date(2024, 3, 11, 14, 59, 0, 0, time.UTC),
		},
		{
			name:  "price past every target fires only the first",
			pos:   lot(100, 100, 83),
			price: 130,
			now:   now,
			want:  Action{Kind: Partial, Label: "T1", Qty: 33},
		},
		{
			name:     "filled targets are skipped",
			pos:      lot(100, 67, 91),
			price:    116,
			now:      now,
			partials: []ledger.PartialExit{{TargetLabel: "T1", Quantity: 33}},
			want:     Action{Kind: Partial, Label: "T2", Qty: 33},
		},
		{
			name:     "next target not reached",
			pos:      lot(100, 67, 91),
			price:    112,
			now:      now,
			partials: []ledger.PartialExit{{TargetLabel: "T1", Quantity: 33}},
		},
		{
			name:     "out-of-ladder reduction forfeits targets",
			pos:      lot(100, 60, 83),
			price:    125,
			now:      now,
			partials: []ledger.PartialExit{{TargetLabel: "STOP_LOSS@2024-03-04T15:00:00Z", Quantity: 40}},
		},
		{
			name:  "closed position does nothing",
			pos:   func() ledger.Position { p := lot(100, 0, 83); p.Status = ledger.StatusClosed; return p }(),
			price: 50,
			now:   now,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tt.pos, tt.price, tt.now, tt.partials, rules)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		targets []Target
		wantErr bool
	}{
		{"thirds", thirds, false},
		{"none", nil, false},
		{"missing label", []Target{{Profit: 0.1, Fraction: 0.5}}, true},
		{"duplicate label", []Target{{Label: "T1", Profit: 0.1, Fraction: 0.5}, {Label: "T1", Profit: 0.2, Fraction: 0.5}}, true},
		{"profits not ascending", []Target{{Label: "T1", Profit: 0.2, Fraction: 0.5}, {Label: "T2", Profit: 0.1, Fraction: 0.5}}, true},
		{"fraction over one", []Target{{Label: "T1", Profit: 0.1, Fraction: 1.5}}, true},
		{"sum over one", []Target{{Label: "T1", Profit: 0.1, Fraction: 0.6}, {Label: "T2", Profit: 0.2, Fraction: 0.6}}, true},
		{"zero profit", []Target{{Label: "T1", Profit: 0, Fraction: 0.5}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateTargets(tt.targets)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
