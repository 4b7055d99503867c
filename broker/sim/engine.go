// Package sim is a paper broker: market orders fill immediately at the
// latest price from a price source, against a cash balance.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/broker"
	"github.com/rustyeddy/swingtrader/internal/id"
)

// PriceSource supplies fill prices. market.Provider satisfies it.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

type Engine struct {
	mu          sync.Mutex
	prices      PriceSource
	cash        float64
	realizedPL  float64
	holdings    map[string]*Holding
	slippageBps float64
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*Engine)

// WithSlippage moves buy fills up and sell fills down by bps basis points.
func WithSlippage(bps float64) Option {
	return func(e *Engine) { e.slippageBps = bps }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(cash float64, prices PriceSource, opts ...Option) *Engine {
	e := &Engine{
		prices:   prices,
		cash:     cash,
		holdings: make(map[string]*Holding),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SubmitBuy(ctx context.Context, symbol string, qty int) (broker.Fill, error) {
	if qty <= 0 {
		return broker.Fill{}, fmt.Errorf("sim: buy %s qty %d: %w", symbol, qty, broker.ErrRejected)
	}
	px, err := e.price(ctx, symbol)
	if err != nil {
		return broker.Fill{}, err
	}
	px *= 1 + e.slippageBps/10000

	e.mu.Lock()
	defer e.mu.Unlock()

	cost := px * float64(qty)
	if cost > e.cash {
		return broker.Fill{}, fmt.Errorf("sim: buy %s: cost %.2f exceeds cash %.2f: %w",
			symbol, cost, e.cash, broker.ErrRejected)
	}
	e.cash -= cost

	h, ok := e.holdings[symbol]
	if !ok {
		h = &Holding{Symbol: symbol}
		e.holdings[symbol] = h
	}
	h.buy(qty, px)

	return e.fill(symbol, broker.Buy, qty, px), nil
}

func (e *Engine) SubmitSell(ctx context.Context, symbol string, qty int) (broker.Fill, error) {
	if qty <= 0 {
		return broker.Fill{}, fmt.Errorf("sim: sell %s qty %d: %w", symbol, qty, broker.ErrRejected)
	}
	px, err := e.price(ctx, symbol)
	if err != nil {
		return broker.Fill{}, err
	}
	px *= 1 - e.slippageBps/10000

	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.holdings[symbol]
	if !ok || h.Qty < qty {
		held := 0
		if ok {
			held = h.Qty
		}
		return broker.Fill{}, fmt.Errorf("sim: sell %s qty %d exceeds holding %d: %w",
			symbol, qty, held, broker.ErrRejected)
	}

	e.realizedPL += h.sell(qty, px)
	e.cash += px * float64(qty)
	if h.Qty == 0 {
		delete(e.holdings, symbol)
	}

	return e.fill(symbol, broker.Sell, qty, px), nil
}

// Equity is cash plus holdings marked at the latest price.
func (e *Engine) Equity(ctx context.Context) (float64, error) {
	holdings := e.Holdings()

	e.mu.Lock()
	equity := e.cash
	e.mu.Unlock()

	var unrealized float64
	for _, h := range holdings {
		px, err := e.price(ctx, h.Symbol)
		if err != nil {
			return 0, err
		}
		equity += MarketValue(h, px)
		unrealized += UnrealizedPL(h, px)
	}
	e.logger.Debug("sim: equity marked",
		zap.Float64("equity", equity),
		zap.Float64("unrealized_pl", unrealized),
		zap.Int("holdings", len(holdings)),
	)
	return equity, nil
}

// Restore adds shares bought before this process started, without
// charging cash. Used to rebuild a paper account from the ledger.
func (e *Engine) Restore(symbol string, qty int, avgPrice float64) {
	if qty <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.holdings[symbol]
	if !ok {
		h = &Holding{Symbol: symbol}
		e.holdings[symbol] = h
	}
	h.buy(qty, avgPrice)
}

func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

func (e *Engine) RealizedPL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.realizedPL
}

// Holdings returns a copy of the open holdings sorted by symbol.
func (e *Engine) Holdings() []Holding {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Holding, 0, len(e.holdings))
	for _, h := range e.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (e *Engine) price(ctx context.Context, symbol string) (float64, error) {
	px, err := e.prices.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("sim: price %s: %v: %w", symbol, err, broker.ErrTransient)
	}
	if px <= 0 {
		return 0, fmt.Errorf("sim: price %s is %.4f: %w", symbol, px, broker.ErrTransient)
	}
	return px, nil
}

func (e *Engine) fill(symbol string, side broker.Side, qty int, px float64) broker.Fill {
	f := broker.Fill{
		OrderID: id.New(),
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
		Price:   px,
		Time:    e.now(),
	}
	e.logger.Info("sim: order filled",
		zap.String("order_id", f.OrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int("qty", qty),
		zap.Float64("price", px),
		zap.Float64("cash", e.cash),
	)
	return f
}

var _ broker.Broker = (*Engine)(nil)
