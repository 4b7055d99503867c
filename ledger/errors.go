package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no position has the requested ID.
	ErrNotFound = errors.New("ledger: position not found")

	// ErrValidation marks requests rejected without touching the ledger.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrClosed is returned when a partial exit targets a CLOSED position.
	ErrClosed = fmt.Errorf("%w: position is closed", ErrValidation)
)

// OversellError rejects a partial exit that would sell more than the lot
// holds or repeat a target label that was already filled.
type OversellError struct {
	PositionID string
	Label      string
	Quantity   int
	Remaining  int
	Duplicate  bool
}

func (e *OversellError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("ledger: position %s already has a partial exit for %s", e.PositionID, e.Label)
	}
	return fmt.Sprintf("ledger: position %s oversell %s: qty %d > remaining %d",
		e.PositionID, e.Label, e.Quantity, e.Remaining)
}

func (e *OversellError) Unwrap() error { return ErrValidation }
