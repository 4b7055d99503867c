package exits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/swingtrader/broker"
	"github.com/rustyeddy/swingtrader/internal/logging"
	"github.com/rustyeddy/swingtrader/ledger"
	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/risk"
)

// Ledger is the part of the position store the evaluator reads and writes.
type Ledger interface {
	GetOpen(ctx context.Context) ([]ledger.Position, error)
	GetOpenForSymbol(ctx context.Context, symbol string) ([]ledger.Position, error)
	PartialExits(ctx context.Context, positionID string) ([]ledger.PartialExit, error)
	UpdateStop(ctx context.Context, positionID string, stop float64, tier int) (ledger.Position, bool, error)
	RecordPartialExit(ctx context.Context, pe ledger.PartialExit) (ledger.Position, error)
	ClosePosition(ctx context.Context, positionID string, exitPrice float64, reason string, at time.Time) (ledger.Position, error)
}

type Config struct {
	Trailing    risk.TrailingPolicy
	Rules       Rules
	Timeframe   market.Timeframe // closing-basis bars
	CallTimeout time.Duration
	Concurrency int // parallel price lookups
}

// Summary counts what one evaluation pass did.
type Summary struct {
	Positions   int
	StopUpdates int
	Partials    int
	Exits       int
	Errors      int
}

func (s *Summary) Add(o Summary) {
	s.Positions += o.Positions
	s.StopUpdates += o.StopUpdates
	s.Partials += o.Partials
	s.Exits += o.Exits
	s.Errors += o.Errors
}

type Evaluator struct {
	cfg      Config
	ledger   Ledger
	market   market.Provider
	executor broker.Executor
	log      *zap.Logger
}

func NewEvaluator(cfg Config, l Ledger, m market.Provider, x broker.Executor, logger *zap.Logger) *Evaluator {
	logger = logging.OrNop(logger)
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = market.Day
	}
	return &Evaluator{cfg: cfg, ledger: l, market: m, executor: x, log: logger}
}

// Snapshot fetches one evaluation price per symbol. Lookups run in
// parallel, each under its own timeout; a failed symbol is reported in errs
// and does not affect the others.
func (e *Evaluator) Snapshot(ctx context.Context, symbols []string) (prices map[string]float64, errs map[string]error) {
	prices = make(map[string]float64, len(symbols))
	errs = make(map[string]error)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, s := range symbols {
		s := s
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, e.cfg.CallTimeout)
			defer cancel()

			px, err := e.price(cctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[s] = err
				return nil
			}
			prices[s] = px
			return nil
		})
	}
	_ = g.Wait()
	return prices, errs
}

func (e *Evaluator) price(ctx context.Context, symbol string) (float64, error) {
	if e.cfg.Trailing.Basis == risk.BasisIntraday {
		return e.market.LatestPrice(ctx, symbol)
	}
	bars, err := e.market.Bars(ctx, symbol, e.cfg.Timeframe, 1)
	if err != nil {
		return 0, err
	}
	c, ok := market.LastClose(bars)
	if !ok {
		return 0, fmt.Errorf("close %s: %w", symbol, market.ErrNoData)
	}
	return c, nil
}

// Evaluate runs one pass over every open position in FIFO order. Each
// position gets its stop ratcheted and then at most one exit.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) Summary {
	var sum Summary

	open, err := e.ledger.GetOpen(ctx)
	if err != nil {
		e.log.Error("exits: load open positions", zap.Error(err))
		sum.Errors++
		return sum
	}
	if len(open) == 0 {
		return sum
	}

	prices, perrs := e.Snapshot(ctx, symbolsOf(open))
	for s, err := range perrs {
		e.log.Warn("exits: price unavailable", zap.String("symbol", s), zap.Error(err))
	}

	for _, p := range open {
		sum.Positions++
		px, ok := prices[p.Symbol]
		if !ok {
			sum.Errors++
			continue
		}
		sum.Add(e.evaluateOne(ctx, p, px, now))
	}
	return sum
}

func (e *Evaluator) evaluateOne(ctx context.Context, p ledger.Position, px float64, now time.Time) Summary {
	var sum Summary
	log := e.log.With(zap.String("position_id", p.ID), zap.String("symbol", p.Symbol))

	if upd := risk.Ratchet(p, px, e.cfg.Trailing); upd.Changed {
		np, changed, err := e.ledger.UpdateStop(ctx, p.ID, upd.Stop, upd.Tier)
		if err != nil {
			log.Error("exits: update stop", zap.Error(err))
			sum.Errors++
			return sum
		}
		if changed {
			sum.StopUpdates++
			log.Info("exits: stop raised",
				zap.Float64("from", p.StopLossPrice),
				zap.Float64("to", np.StopLossPrice),
				zap.Int("tier", np.HighestTierReached),
				zap.Float64("gain", upd.Gain),
			)
		}
		p = np
	}

	partials, err := e.ledger.PartialExits(ctx, p.ID)
	if err != nil {
		log.Error("exits: load partial exits", zap.Error(err))
		sum.Errors++
		return sum
	}

	act := Decide(p, px, now, partials, e.cfg.Rules)
	switch act.Kind {
	case Full:
		closed, err := e.exitFull(ctx, p, act.Reason, px, now)
		if err != nil {
			log.Warn("exits: full exit failed", zap.String("reason", act.Reason), zap.Error(err))
			sum.Errors++
			return sum
		}
		if closed.Open() {
			sum.Partials++
		} else {
			sum.Exits++
		}
	case Partial:
		np, err := e.exitPartial(ctx, p, act, px, now)
		if err != nil {
			log.Warn("exits: partial exit failed", zap.String("label", act.Label), zap.Error(err))
			sum.Errors++
			return sum
		}
		sum.Partials++
		if !np.Open() {
			sum.Exits++
		}
	}
	return sum
}

// exitFull sells everything that remains and closes the lot. A short fill
// is booked as an out-of-ladder partial exit; the rest is retried next tick.
func (e *Evaluator) exitFull(ctx context.Context, p ledger.Position, reason string, px float64, now time.Time) (ledger.Position, error) {
	fill, err := e.sell(ctx, p.Symbol, p.RemainingQuantity)
	if err != nil {
		return p, err
	}
	price, at := fillPriceTime(fill, px, now)

	if fill.Qty < p.RemainingQuantity {
		e.log.Warn("exits: short fill on full exit",
			zap.String("position_id", p.ID),
			zap.Int("wanted", p.RemainingQuantity),
			zap.Int("filled", fill.Qty),
		)
		return e.ledger.RecordPartialExit(ctx, ledger.PartialExit{
			PositionID:  p.ID,
			TargetLabel: reason + "@" + at.UTC().Format(time.RFC3339Nano),
			ExitDate:    at,
			Quantity:    fill.Qty,
			ExitPrice:   price,
		})
	}
	return e.ledger.ClosePosition(ctx, p.ID, price, reason, at)
}

func (e *Evaluator) exitPartial(ctx context.Context, p ledger.Position, act Action, px float64, now time.Time) (ledger.Position, error) {
	fill, err := e.sell(ctx, p.Symbol, act.Qty)
	if err != nil {
		return p, err
	}
	price, at := fillPriceTime(fill, px, now)
	qty := fill.Qty
	if qty > act.Qty {
		// The ledger books the ladder quantity; the excess needs manual reconciliation.
		e.log.Warn("exits: overfill on partial exit",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.String("label", act.Label),
			zap.Int("wanted", act.Qty),
			zap.Int("filled", fill.Qty),
		)
		qty = act.Qty
	}
	return e.ledger.RecordPartialExit(ctx, ledger.PartialExit{
		PositionID:  p.ID,
		TargetLabel: act.Label,
		ExitDate:    at,
		Quantity:    qty,
		ExitPrice:   price,
	})
}

func (e *Evaluator) sell(ctx context.Context, symbol string, qty int) (broker.Fill, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	fill, err := e.executor.SubmitSell(cctx, symbol, qty)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("sell %d %s: %w", qty, symbol, err)
	}
	if fill.Qty <= 0 {
		return broker.Fill{}, fmt.Errorf("sell %d %s: empty fill: %w", qty, symbol, broker.ErrTransient)
	}
	return fill, nil
}

// ExitSymbol fully exits every open lot of symbol, oldest entry first. It
// stops at the first lot that cannot be closed so a newer lot is never
// closed ahead of an older one.
func (e *Evaluator) ExitSymbol(ctx context.Context, symbol string, now time.Time) ([]ledger.Position, error) {
	lots, err := e.ledger.GetOpenForSymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("exits: open lots %s: %w", symbol, err)
	}
	if len(lots) == 0 {
		return nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	px, err := e.price(cctx, symbol)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("exits: price %s: %w", symbol, err)
	}

	var closed []ledger.Position
	for _, p := range lots {
		np, err := e.exitFull(ctx, p, ledger.ReasonSymbolExit, px, now)
		if err != nil {
			return closed, fmt.Errorf("exits: close %s: %w", p.ID, err)
		}
		if np.Open() {
			return closed, fmt.Errorf("exits: close %s: %w", p.ID, ErrShortFill)
		}
		closed = append(closed, np)
	}
	e.log.Info("exits: symbol exited", zap.String("symbol", symbol), zap.Int("lots", len(closed)))
	return closed, nil
}

var ErrShortFill = errors.New("exits: order only partially filled")

func fillPriceTime(f broker.Fill, px float64, now time.Time) (float64, time.Time) {
	price, at := f.Price, f.Time
	if price <= 0 {
		price = px
	}
	if at.IsZero() {
		at = now
	}
	return price, at
}

func symbolsOf(ps []ledger.Position) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range ps {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}
