package broker

import (
	"context"
	"errors"
	"time"
)

// Executor submits market orders and resolves each one to a confirmed fill
// or an error. Multi-step broker protocols stay behind this interface.
type Executor interface {
	SubmitBuy(ctx context.Context, symbol string, qty int) (Fill, error)
	SubmitSell(ctx context.Context, symbol string, qty int) (Fill, error)
}

// Account reports the equity entries are sized against.
type Account interface {
	Equity(ctx context.Context) (float64, error)
}

// Broker is an Executor that can also report account equity.
type Broker interface {
	Executor
	Account
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Fill is a confirmed execution. Qty may be below the requested quantity
// when the broker only partially filled before the order was cancelled.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     int
	Price   float64
	Time    time.Time
}

var (
	// ErrTransient marks failures that may succeed on the next tick:
	// timeouts, connectivity, unfilled orders.
	ErrTransient = errors.New("broker: transient failure")

	// ErrRejected marks orders the broker refused outright.
	ErrRejected = errors.New("broker: order rejected")
)

// IsTransient reports whether err should simply be retried next tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
