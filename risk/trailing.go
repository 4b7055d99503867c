package risk

import (
	"fmt"

	"github.com/rustyeddy/swingtrader/ledger"
)

// Basis selects which price the stop is evaluated against. It is fixed per
// deployment.
type Basis string

const (
	BasisClosing  Basis = "closing"  // last daily close
	BasisIntraday Basis = "intraday" // latest trade
)

// Tier unlocks a tighter stop once unrealized gain reaches ProfitThreshold.
// The stop is placed at entry * (1 - StopPct); a negative StopPct locks in
// profit above entry.
type Tier struct {
	ProfitThreshold float64 `json:"profit" yaml:"profit"`
	StopPct         float64 `json:"stop_pct" yaml:"stop_pct"`
}

// TrailingPolicy is TIER0 (InitialStopPct) followed by Tiers in increasing
// strictness.
type TrailingPolicy struct {
	InitialStopPct float64
	Tiers          []Tier
	Basis          Basis
}

// Validate checks that tiers ascend in profit and tighten the stop.
func (p TrailingPolicy) Validate() error {
	if p.InitialStopPct <= 0 || p.InitialStopPct >= 1 {
		return fmt.Errorf("initial_stop_pct must be between 0 and 1")
	}
	if p.Basis != BasisClosing && p.Basis != BasisIntraday {
		return fmt.Errorf("stop basis must be %q or %q", BasisClosing, BasisIntraday)
	}
	prevProfit := 0.0
	prevStop := p.InitialStopPct
	for i, t := range p.Tiers {
		if t.ProfitThreshold <= prevProfit {
			return fmt.Errorf("tier %d profit %.4f must exceed %.4f", i+1, t.ProfitThreshold, prevProfit)
		}
		if t.StopPct >= prevStop {
			return fmt.Errorf("tier %d stop_pct %.4f must be tighter than %.4f", i+1, t.StopPct, prevStop)
		}
		if t.StopPct <= -1 {
			return fmt.Errorf("tier %d stop_pct must be greater than -1", i+1)
		}
		prevProfit = t.ProfitThreshold
		prevStop = t.StopPct
	}
	return nil
}

// InitialStop is the TIER0 stop for a fresh entry.
func (p TrailingPolicy) InitialStop(entry float64) float64 {
	return entry * (1 - p.InitialStopPct)
}

// StopFor returns the stop price of tier n for entry. Tiers past the end of
// the ladder clamp to the last one.
func (p TrailingPolicy) StopFor(entry float64, n int) float64 {
	if n <= 0 || len(p.Tiers) == 0 {
		return p.InitialStop(entry)
	}
	if n > len(p.Tiers) {
		n = len(p.Tiers)
	}
	return entry * (1 - p.Tiers[n-1].StopPct)
}

// TierFor returns the highest tier whose threshold gain reaches.
func (p TrailingPolicy) TierFor(gain float64) int {
	tier := 0
	for i, t := range p.Tiers {
		if gain >= t.ProfitThreshold {
			tier = i + 1
		}
	}
	return tier
}

// StopUpdate is the outcome of one ratchet evaluation.
type StopUpdate struct {
	Stop    float64
	Tier    int
	Gain    float64
	Changed bool
}

// Ratchet recomputes the trailing stop of pos at evalPrice. Stop and tier
// never move down: the stored HighestTierReached is the floor even when the
// price has since fallen back below that tier's threshold.
func Ratchet(pos ledger.Position, evalPrice float64, p TrailingPolicy) StopUpdate {
	gain := pos.GainPct(evalPrice)

	tier := p.TierFor(gain)
	if pos.HighestTierReached > tier {
		tier = pos.HighestTierReached
	}

	stop := p.StopFor(pos.EntryPrice, tier)
	if pos.StopLossPrice > stop {
		stop = pos.StopLossPrice
	}

	return StopUpdate{
		Stop:    stop,
		Tier:    tier,
		Gain:    gain,
		Changed: stop != pos.StopLossPrice || tier != pos.HighestTierReached,
	}
}
