package ledger

import "time"

// Status is the lifecycle state of a position row.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Exit reasons written to positions.exit_reason.
const (
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTimeExit   = "TIME_EXIT"
	ReasonTargetsHit = "TARGETS_COMPLETE"
	ReasonSymbolExit = "SYMBOL_EXIT"
)

// Position classes.
const (
	ClassPrimary   = "primary"
	ClassSecondary = "secondary"
)

// Position is one long lot of a symbol. Quantities are whole shares.
//
// For a CLOSED position RemainingQuantity is left as it was when the final
// exit fired, so it is the number of shares that exit sold (zero when the
// last partial target emptied the lot). This keeps
// RemainingQuantity == OriginalQuantity - sum(partial quantities) true for
// every row.
type Position struct {
	ID                 string
	Symbol             string
	EntryDate          time.Time
	EntryPrice         float64
	OriginalQuantity   int
	RemainingQuantity  int
	StopLossPrice      float64
	HighestTierReached int
	Status             Status

	ExitDate      time.Time
	ExitPrice     float64
	RealizedPLPct float64
	ExitReason    string

	EntryScore    float64
	EntryPattern  string
	PositionClass string
}

// Open reports whether the position is still OPEN.
func (p Position) Open() bool { return p.Status == StatusOpen }

// GainPct is the unrealized return of the lot at price.
func (p Position) GainPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// AgeDays is the number of whole 24h periods since entry.
func (p Position) AgeDays(now time.Time) int {
	if now.Before(p.EntryDate) {
		return 0
	}
	return int(now.Sub(p.EntryDate) / (24 * time.Hour))
}

// PartialExit records a profit-target sale. At most one exists per
// (PositionID, TargetLabel).
type PartialExit struct {
	PositionID  string
	TargetLabel string
	ExitDate    time.Time
	Quantity    int
	ExitPrice   float64
	RealizedPct float64
}
