// Package exits decides and executes exits for open positions: stop
// breaches, time exits, partial profit targets and symbol-wide FIFO exits.
package exits

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/swingtrader/ledger"
)

// Target sells Fraction of the original quantity once gain reaches Profit.
type Target struct {
	Label    string  `yaml:"label" json:"label"`
	Profit   float64 `yaml:"profit" json:"profit"`
	Fraction float64 `yaml:"fraction" json:"fraction"`
}

// ValidateTargets checks labels are unique, profits ascend and the
// fractions sum to at most one.
func ValidateTargets(ts []Target) error {
	seen := make(map[string]bool, len(ts))
	sum := 0.0
	for i, t := range ts {
		if t.Label == "" {
			return fmt.Errorf("targets[%d].label is required", i)
		}
		if seen[t.Label] {
			return fmt.Errorf("targets[%d].label %q is duplicated", i, t.Label)
		}
		seen[t.Label] = true
		if t.Profit <= 0 {
			return fmt.Errorf("targets[%d].profit must be > 0", i)
		}
		if i > 0 && t.Profit <= ts[i-1].Profit {
			return fmt.Errorf("targets[%d].profit must be above targets[%d].profit", i, i-1)
		}
		if t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("targets[%d].fraction must be in (0, 1]", i)
		}
		sum += t.Fraction
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("target fractions sum to %.4f, more than 1", sum)
	}
	return nil
}

// targetQty is the share count for target i of p. The rung that completes
// the ladder takes whatever remains so rounding never strands shares.
func targetQty(ts []Target, i int, p ledger.Position) int {
	cum := 0.0
	for _, t := range ts[:i+1] {
		cum += t.Fraction
	}
	qty := int(math.Floor(float64(p.OriginalQuantity)*ts[i].Fraction + 1e-9))
	if cum >= 1-1e-9 {
		qty = p.RemainingQuantity
	}
	if qty < 1 {
		qty = 1
	}
	if qty > p.RemainingQuantity {
		qty = p.RemainingQuantity
	}
	return qty
}

type Kind int

const (
	Hold Kind = iota
	Full
	Partial
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "FULL"
	case Partial:
		return "PARTIAL"
	default:
		return "HOLD"
	}
}

// Action is the single exit a position takes on one tick.
type Action struct {
	Kind   Kind
	Reason string // full exits
	Label  string // partial exits
	Qty    int
}

// Rules is the exit configuration Decide applies.
type Rules struct {
	Targets     []Target
	MaxHoldDays int
}

// Decide picks at most one action for p at price, in priority order: stop
// breach, time exit, then the lowest unfilled target that price has reached.
// p must already carry this tick's ratcheted stop. A lot that was reduced
// outside the target ladder forfeits its remaining targets.
func Decide(p ledger.Position, price float64, now time.Time, partials []ledger.PartialExit, r Rules) Action {
	if !p.Open() || p.RemainingQuantity <= 0 {
		return Action{}
	}
	if price <= p.StopLossPrice {
		return Action{Kind: Full, Reason: ledger.ReasonStopLoss, Qty: p.RemainingQuantity}
	}
	if r.MaxHoldDays > 0 && p.AgeDays(now) >= r.MaxHoldDays {
		return Action{Kind: Full, Reason: ledger.ReasonTimeExit, Qty: p.RemainingQuantity}
	}

	filled := make(map[string]bool, len(partials))
	for _, pe := range partials {
		filled[pe.TargetLabel] = true
	}
	for _, pe := range partials {
		if !isTarget(r.Targets, pe.TargetLabel) {
			return Action{}
		}
	}

	gain := p.GainPct(price)
	for i, t := range r.Targets {
		if filled[t.Label] {
			continue
		}
		if gain < t.Profit {
			break
		}
		return Action{Kind: Partial, Label: t.Label, Qty: targetQty(r.Targets, i, p)}
	}
	return Action{}
}

func isTarget(ts []Target, label string) bool {
	for _, t := range ts {
		if t.Label == label {
			return true
		}
	}
	return false
}
