package risk

// Limits caps how many entries one execution window may open. Both are read
// fresh from the ledger at execution time.
type Limits struct {
	MaxTradesPerDay  int
	MaxOpenPositions int
}

// AccountSnapshot is the ledger state the limits are checked against.
type AccountSnapshot struct {
	TradesToday   int
	OpenPositions int
}
