package sim

// UnrealizedPL is the mark-to-market P/L of h at price.
func UnrealizedPL(h Holding, price float64) float64 {
	return float64(h.Qty) * (price - h.AvgPrice)
}

// MarketValue is the value of h at price.
func MarketValue(h Holding, price float64) float64 {
	return float64(h.Qty) * price
}
