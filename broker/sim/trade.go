package sim

// Holding is the paper account's aggregate long position in one symbol.
type Holding struct {
	Symbol   string
	Qty      int
	AvgPrice float64
}

func (h *Holding) buy(qty int, price float64) {
	cost := h.AvgPrice*float64(h.Qty) + price*float64(qty)
	h.Qty += qty
	h.AvgPrice = cost / float64(h.Qty)
}

// sell reduces the holding and returns the realized P/L of the shares sold.
func (h *Holding) sell(qty int, price float64) float64 {
	h.Qty -= qty
	return float64(qty) * (price - h.AvgPrice)
}
