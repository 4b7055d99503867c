package indicators

import (
	"fmt"

	"github.com/rustyeddy/swingtrader/market"
)

// EMA computes an Exponential Moving Average over bar closes.
type EMA struct {
	n     int
	alpha float64

	seen  int
	value float64
	prev  float64
	ready bool

	name string
}

func NewEMA(period int) *EMA {
	if period <= 0 {
		panic("EMA period must be > 0")
	}
	return &EMA{
		n:     period,
		alpha: 2.0 / float64(period+1),
		name:  fmt.Sprintf("EMA(%d)", period),
	}
}

func (e *EMA) Name() string     { return e.name }
func (e *EMA) Warmup() int      { return e.n }
func (e *EMA) Ready() bool      { return e.ready }
func (e *EMA) Float64() float64 { return e.value }

// Prev is the value before the most recent Update.
func (e *EMA) Prev() float64 { return e.prev }

func (e *EMA) Reset() {
	e.seen = 0
	e.value = 0
	e.prev = 0
	e.ready = false
}

func (e *EMA) Update(b market.Bar) {
	x := b.Close

	e.seen++
	e.prev = e.value
	if e.seen == 1 {
		// Seed with the first close.
		e.value = x
		e.prev = x
	} else {
		e.value = e.alpha*x + (1.0-e.alpha)*e.value
	}

	if e.seen >= e.n {
		e.ready = true
	}
}
