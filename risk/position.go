package risk

import "math"

// Inputs sizes a long equity entry against account equity.
type Inputs struct {
	Equity         float64
	RiskPct        float64 // fraction of equity lost if the stop fills, e.g. 0.01
	EntryPrice     float64
	StopPrice      float64
	MaxPositionPct float64 // cap on notional as a fraction of equity, 0 disables
}

type Result struct {
	Shares       int
	RiskPerShare float64
	RiskAmount   float64
}

// Calculate returns whole shares such that a stop-out loses at most
// Equity*RiskPct, capped by MaxPositionPct of equity in notional.
func Calculate(in Inputs) Result {
	if in.Equity <= 0 || in.EntryPrice <= 0 || in.StopPrice >= in.EntryPrice {
		return Result{}
	}

	perShare := in.EntryPrice - in.StopPrice
	riskAmt := in.Equity * in.RiskPct
	shares := math.Floor(riskAmt / perShare)

	if in.MaxPositionPct > 0 {
		maxShares := math.Floor(in.Equity * in.MaxPositionPct / in.EntryPrice)
		if shares > maxShares {
			shares = maxShares
		}
	}
	if shares < 0 {
		shares = 0
	}

	return Result{
		Shares:       int(shares),
		RiskPerShare: perShare,
		RiskAmount:   shares * perShare,
	}
}
