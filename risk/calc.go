package risk

import "math"

// PlannedRisk is the dollar loss of shares if the stop fills.
func PlannedRisk(shares int, entry, stop float64) float64 {
	return float64(shares) * math.Abs(entry-stop)
}

// RiskPct is plannedRisk as a fraction of equity.
func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}
