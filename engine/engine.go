// Package engine ties the exit evaluator and the signal queue together
// behind one lock. A scheduler calls Tick on an interval; a watchlist
// scanner feeds the queue through Scan or AddCandidate.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/swingtrader/broker"
	"github.com/rustyeddy/swingtrader/exits"
	"github.com/rustyeddy/swingtrader/internal/logging"
	"github.com/rustyeddy/swingtrader/ledger"
	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/signals"
)

// Store is the position store as used by both halves of the engine.
type Store interface {
	exits.Ledger
	signals.Ledger
}

type Config struct {
	Exits exits.Config
	Queue signals.Config

	Watchlist   []string
	Timeframe   market.Timeframe
	Lookback    int
	ScanTimeout time.Duration
	ScanWorkers int
}

type Deps struct {
	Store    Store
	Market   market.Provider
	Detector signals.Detector
	Broker   broker.Broker
	Clock    func() time.Time // defaults to time.Now
}

// QueueSnapshot is a read-only view of the signal queue.
type QueueSnapshot struct {
	State       signals.State
	WindowStart time.Time
	Candidates  []signals.Candidate // rank order
}

// Summary is the outcome of one Tick.
type Summary struct {
	Positions     int
	StopUpdates   int
	Partials      int
	Exits         int
	Entries       int
	Errors        int
	QueueExecuted bool
}

type Engine struct {
	mu    sync.Mutex
	cfg   Config
	deps  Deps
	exits *exits.Evaluator
	queue *signals.Queue
	log   *zap.Logger
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Engine {
	logger = logging.OrNop(logger)
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 10 * time.Second
	}
	if cfg.ScanWorkers <= 0 {
		cfg.ScanWorkers = 4
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = market.Day
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Engine{
		cfg:   cfg,
		deps:  deps,
		exits: exits.NewEvaluator(cfg.Exits, deps.Store, deps.Market, deps.Broker, logger.Named("exits")),
		queue: signals.NewQueue(cfg.Queue, signals.Deps{
			Ledger:   deps.Store,
			Detector: deps.Detector,
			Market:   deps.Market,
			Executor: deps.Broker,
			Account:  deps.Broker,
		}, logger.Named("signals")),
		log: logger,
	}
}

// Tick runs one evaluation pass: exits for every open position, then the
// queue's execution phase if its window has closed. The lock is held for
// the whole pass so a shutdown waiting on it never interrupts a write.
func (e *Engine) Tick(ctx context.Context, now time.Time) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	es := e.exits.Evaluate(ctx, now)
	sum := Summary{
		Positions:   es.Positions,
		StopUpdates: es.StopUpdates,
		Partials:    es.Partials,
		Exits:       es.Exits,
		Errors:      es.Errors,
	}

	if e.queue.Due(now) {
		res := e.queue.Execute(ctx, now)
		sum.QueueExecuted = res.Executed
		sum.Entries = len(res.Entries)
		sum.Errors += res.Errors
	}

	e.log.Info("engine: tick",
		zap.Int("positions", sum.Positions),
		zap.Int("stop_updates", sum.StopUpdates),
		zap.Int("partials", sum.Partials),
		zap.Int("exits", sum.Exits),
		zap.Int("entries", sum.Entries),
		zap.Int("errors", sum.Errors),
		zap.Bool("queue_executed", sum.QueueExecuted),
		zap.Duration("took", time.Since(start)),
	)
	return sum
}

// AddCandidate queues an entry candidate. The collection window is timed
// by the engine's clock, not by DetectedAt.
func (e *Engine) AddCandidate(ctx context.Context, c signals.Candidate) error {
	return e.addCandidate(c, e.deps.Clock())
}

func (e *Engine) addCandidate(c signals.Candidate, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Add(c, now)
}

// Scan evaluates the watchlist and queues every valid setup. Bars are
// fetched in parallel without holding the engine lock.
func (e *Engine) Scan(ctx context.Context, now time.Time) (added int, failed int) {
	var (
		mu    sync.Mutex
		found []signals.Candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ScanWorkers)
	for _, sym := range e.cfg.Watchlist {
		sym := strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, e.cfg.ScanTimeout)
			bars, err := e.deps.Market.Bars(cctx, sym, e.cfg.Timeframe, e.cfg.Lookback)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.log.Warn("engine: scan bars failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			sig, ok := e.deps.Detector.EvaluateEntry(sym, bars)
			if !ok || !sig.Valid {
				return nil
			}
			found = append(found, signals.Candidate{
				Symbol:     sym,
				Score:      sig.Score,
				Pattern:    sig.Pattern,
				Price:      sig.Price,
				DetectedAt: now,
			})
			return nil
		})
	}
	_ = g.Wait()

	signals.Rank(found)
	for _, c := range found {
		if err := e.addCandidate(c, now); err != nil {
			failed++
			e.log.Warn("engine: queue candidate", zap.String("symbol", c.Symbol), zap.Error(err))
			continue
		}
		added++
	}
	e.log.Info("engine: scan",
		zap.Int("symbols", len(e.cfg.Watchlist)),
		zap.Int("queued", added),
		zap.Int("failed", failed),
	)
	return added, failed
}

// ExitSymbol closes every open lot of symbol, oldest first.
func (e *Engine) ExitSymbol(ctx context.Context, symbol string, now time.Time) ([]ledger.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exits.ExitSymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)), now)
}

// QueueState reports the queue's state and the candidates it holds.
func (e *Engine) QueueState() QueueSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QueueSnapshot{
		State:       e.queue.State(),
		WindowStart: e.queue.WindowStart(),
		Candidates:  e.queue.Candidates(),
	}
}
