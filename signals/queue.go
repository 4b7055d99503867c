package signals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/broker"
	"github.com/rustyeddy/swingtrader/internal/logging"
	"github.com/rustyeddy/swingtrader/ledger"
	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/risk"
)

type State int

const (
	Collecting State = iota
	Executing
)

func (s State) String() string {
	if s == Executing {
		return "EXECUTING"
	}
	return "COLLECTING"
}

var ErrExecuting = errors.New("signals: queue is executing")

// Ledger is the part of the position store the queue reads and writes.
type Ledger interface {
	Create(ctx context.Context, p ledger.Position) (ledger.Position, error)
	GetOpen(ctx context.Context) ([]ledger.Position, error)
	GetOpenForSymbol(ctx context.Context, symbol string) ([]ledger.Position, error)
	CountTradesOpenedToday(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	CollectWindow time.Duration
	TopN          int
	Limits        risk.Limits

	// Bars fetched for revalidation.
	Timeframe market.Timeframe
	Lookback  int

	RiskPct        float64
	MaxPositionPct float64
	Trailing       risk.TrailingPolicy

	// Per external call.
	CallTimeout time.Duration
}

type Deps struct {
	Ledger   Ledger
	Detector Detector
	Market   market.Provider
	Executor broker.Executor
	Account  broker.Account
}

// Result summarizes one execution pass.
type Result struct {
	Executed   bool
	Candidates int
	Survivors  int
	Slots      int
	Entries    []ledger.Position
	Errors     int
	Violations []risk.Violation
}

// Queue is not safe for concurrent use; the engine serializes access.
type Queue struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	state       State
	windowStart time.Time
	window      uint64 // sequence of the open window
	ranWindow   uint64 // last window executed
	candidates  map[string]Candidate
}

func NewQueue(cfg Config, deps Deps, logger *zap.Logger) *Queue {
	logger = logging.OrNop(logger)
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Queue{
		cfg:        cfg,
		deps:       deps,
		log:        logger,
		state:      Collecting,
		candidates: make(map[string]Candidate),
	}
}

func (q *Queue) State() State           { return q.state }
func (q *Queue) Len() int               { return len(q.candidates) }
func (q *Queue) WindowStart() time.Time { return q.windowStart }

// Candidates returns the queued candidates in rank order.
func (q *Queue) Candidates() []Candidate {
	out := make([]Candidate, 0, len(q.candidates))
	for _, c := range q.candidates {
		out = append(out, c)
	}
	Rank(out)
	return out
}

// Add upserts c by symbol. A repeat observation replaces the earlier one and
// bumps its revalidation count. The first candidate into an empty queue
// opens a new window at now; DetectedAt only orders candidates and
// defaults to now.
func (q *Queue) Add(c Candidate, now time.Time) error {
	if q.state == Executing {
		return ErrExecuting
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		return fmt.Errorf("signals: candidate symbol is required")
	}
	if now.IsZero() {
		return fmt.Errorf("signals: candidate %s: clock time is required", c.Symbol)
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = now
	}

	if prev, ok := q.candidates[c.Symbol]; ok {
		c.RevalidationCount = prev.RevalidationCount + 1
	} else {
		c.RevalidationCount = 0
	}
	if len(q.candidates) == 0 {
		q.window++
		q.windowStart = now
	}
	q.candidates[c.Symbol] = c

	q.log.Debug("signals: candidate queued",
		zap.String("symbol", c.Symbol),
		zap.Float64("score", c.Score),
		zap.String("pattern", c.Pattern),
		zap.Int("revalidation_count", c.RevalidationCount),
		zap.Uint64("window", q.window),
	)
	return nil
}

// Due reports whether the current window has closed and not yet executed.
func (q *Queue) Due(now time.Time) bool {
	if q.state != Collecting || len(q.candidates) == 0 || q.windowStart.IsZero() {
		return false
	}
	if q.window == q.ranWindow {
		return false
	}
	return !now.Before(q.windowStart.Add(q.cfg.CollectWindow))
}

// Execute runs the window if it is due: revalidate, rank, cap, buy, record.
// The queue is always empty and back to Collecting afterwards.
func (q *Queue) Execute(ctx context.Context, now time.Time) Result {
	if !q.Due(now) {
		return Result{}
	}

	q.state = Executing
	q.ranWindow = q.window
	defer q.reset()

	res := Result{Executed: true, Candidates: len(q.candidates)}
	log := q.log.With(zap.Time("window_start", q.windowStart))

	survivors := q.revalidate(ctx, log)
	res.Survivors = len(survivors)
	if len(survivors) == 0 {
		log.Info("signals: window closed with no survivors", zap.Int("candidates", res.Candidates))
		return res
	}
	Rank(survivors)

	dec, err := q.capacity(ctx, now)
	if err != nil {
		log.Error("signals: capacity check failed", zap.Error(err))
		res.Errors++
		return res
	}
	res.Slots = dec.Slots
	res.Violations = dec.Violations
	for _, v := range dec.Violations {
		log.Info("signals: entry capped", zap.String("code", v.Code), zap.String("reason", v.Msg))
	}
	if !dec.Allowed() {
		return res
	}

	equity, err := q.equity(ctx)
	if err != nil {
		log.Error("signals: equity lookup failed", zap.Error(err))
		res.Errors++
		return res
	}

	n := dec.Slots
	if n > len(survivors) {
		n = len(survivors)
	}
	for _, c := range survivors[:n] {
		p, err := q.enter(ctx, c, equity, now)
		if err != nil {
			res.Errors++
			log.Warn("signals: entry failed", zap.String("symbol", c.Symbol), zap.Error(err))
			continue
		}
		if p.ID != "" {
			res.Entries = append(res.Entries, p)
		}
	}

	log.Info("signals: window executed",
		zap.Int("candidates", res.Candidates),
		zap.Int("survivors", res.Survivors),
		zap.Int("slots", res.Slots),
		zap.Int("entries", len(res.Entries)),
		zap.Int("errors", res.Errors),
	)
	return res
}

func (q *Queue) reset() {
	q.candidates = make(map[string]Candidate)
	q.windowStart = time.Time{}
	q.state = Collecting
}

// revalidate re-runs the detector on fresh bars. Candidates that fail for
// any reason are dropped; the rest carry the fresh score, pattern and price.
func (q *Queue) revalidate(ctx context.Context, log *zap.Logger) []Candidate {
	symbols := make([]string, 0, len(q.candidates))
	for s := range q.candidates {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []Candidate
	for _, s := range symbols {
		c := q.candidates[s]

		cctx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
		bars, err := q.deps.Market.Bars(cctx, s, q.cfg.Timeframe, q.cfg.Lookback)
		cancel()
		if err != nil {
			log.Warn("signals: revalidation bars failed", zap.String("symbol", s), zap.Error(err))
			continue
		}

		sig, ok := q.deps.Detector.EvaluateEntry(s, bars)
		if !ok || !sig.Valid {
			log.Info("signals: candidate no longer valid",
				zap.String("symbol", s),
				zap.Float64("queued_score", c.Score),
			)
			continue
		}

		c.Score = sig.Score
		c.Pattern = sig.Pattern
		if sig.Price > 0 {
			c.Price = sig.Price
		}
		c.RevalidationCount++
		out = append(out, c)
	}
	return out
}

func (q *Queue) capacity(ctx context.Context, now time.Time) (risk.Decision, error) {
	today, err := q.deps.Ledger.CountTradesOpenedToday(ctx, now)
	if err != nil {
		return risk.Decision{}, fmt.Errorf("count trades today: %w", err)
	}
	open, err := q.deps.Ledger.GetOpen(ctx)
	if err != nil {
		return risk.Decision{}, fmt.Errorf("get open: %w", err)
	}
	return risk.Evaluate(q.cfg.Limits, risk.AccountSnapshot{
		TradesToday:   today,
		OpenPositions: len(open),
	}, q.cfg.TopN), nil
}

func (q *Queue) equity(ctx context.Context) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
	defer cancel()
	return q.deps.Account.Equity(cctx)
}

// enter sizes, buys and records one candidate. A zero-share size is not an
// error and returns an empty position.
func (q *Queue) enter(ctx context.Context, c Candidate, equity float64, now time.Time) (ledger.Position, error) {
	stop := q.cfg.Trailing.InitialStop(c.Price)
	size := risk.Calculate(risk.Inputs{
		Equity:         equity,
		RiskPct:        q.cfg.RiskPct,
		EntryPrice:     c.Price,
		StopPrice:      stop,
		MaxPositionPct: q.cfg.MaxPositionPct,
	})
	if size.Shares <= 0 {
		q.log.Info("signals: position size is zero",
			zap.String("symbol", c.Symbol),
			zap.Float64("equity", equity),
			zap.Float64("price", c.Price),
		)
		return ledger.Position{}, nil
	}

	class := ledger.ClassPrimary
	if lots, err := q.deps.Ledger.GetOpenForSymbol(ctx, c.Symbol); err != nil {
		return ledger.Position{}, fmt.Errorf("open lots %s: %w", c.Symbol, err)
	} else if len(lots) > 0 {
		class = ledger.ClassSecondary
	}

	cctx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
	fill, err := q.deps.Executor.SubmitBuy(cctx, c.Symbol, size.Shares)
	cancel()
	if err != nil {
		return ledger.Position{}, fmt.Errorf("buy %s: %w", c.Symbol, err)
	}
	if fill.Qty <= 0 {
		return ledger.Position{}, fmt.Errorf("buy %s: empty fill: %w", c.Symbol, broker.ErrTransient)
	}

	entry := fill.Price
	if entry <= 0 {
		entry = c.Price
	}
	at := fill.Time
	if at.IsZero() {
		at = now
	}
	stop = q.cfg.Trailing.InitialStop(entry)
	p, err := q.deps.Ledger.Create(ctx, ledger.Position{
		Symbol:           c.Symbol,
		EntryDate:        at,
		EntryPrice:       entry,
		OriginalQuantity: fill.Qty,
		StopLossPrice:    stop,
		EntryScore:       c.Score,
		EntryPattern:     c.Pattern,
		PositionClass:    class,
	})
	if err != nil {
		return p, err
	}
	planned := risk.PlannedRisk(fill.Qty, entry, stop)
	q.log.Info("signals: position opened",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("class", p.PositionClass),
		zap.Int("qty", fill.Qty),
		zap.Int("sized", size.Shares),
		zap.Float64("entry", entry),
		zap.Float64("stop", stop),
		zap.Float64("planned_risk", planned),
		zap.Float64("risk_pct", risk.RiskPct(planned, equity)),
	)
	return p, nil
}
