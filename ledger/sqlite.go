package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/internal/id"
)

// SQLite is the durable position ledger. Every write runs in its own
// transaction and is visible to the next read.
type SQLite struct {
	db     *sql.DB
	loc    *time.Location
	logger *zap.Logger
}

type Option func(*SQLite)

// WithLocation sets the calendar used for "today" (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(j *SQLite) {
		if loc != nil {
			j.loc = loc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(j *SQLite) {
		if l != nil {
			j.logger = l
		}
	}
}

func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}
	// One connection keeps writes serialized and lets ":memory:" survive
	// between statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLite{db: db, loc: time.UTC, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// Create inserts a new OPEN position. RemainingQuantity is set to
// OriginalQuantity and an ID is minted when empty.
func (j *SQLite) Create(ctx context.Context, p Position) (Position, error) {
	if err := validateNew(p); err != nil {
		return Position{}, err
	}
	if p.ID == "" {
		p.ID = id.At(p.EntryDate)
	}
	p.EntryDate = p.EntryDate.UTC()
	p.RemainingQuantity = p.OriginalQuantity
	p.Status = StatusOpen
	p.ExitDate = time.Time{}
	p.ExitPrice = 0
	p.RealizedPLPct = 0
	p.ExitReason = ""

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO positions
		(id, symbol, entry_date, entry_price, original_quantity, remaining_quantity,
		 stop_loss_price, highest_tier_reached, status, entry_score, entry_pattern, position_class)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, p.EntryDate, p.EntryPrice, p.OriginalQuantity, p.RemainingQuantity,
		p.StopLossPrice, p.HighestTierReached, string(p.Status), p.EntryScore, p.EntryPattern, p.PositionClass,
	)
	if err != nil {
		return Position{}, fmt.Errorf("ledger: create %s: %w", p.Symbol, err)
	}

	j.logger.Info("ledger: position opened",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.Int("qty", p.OriginalQuantity),
		zap.Float64("entry_price", p.EntryPrice),
		zap.Float64("stop", p.StopLossPrice),
	)
	return p, nil
}

func validateNew(p Position) error {
	switch {
	case p.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	case p.EntryDate.IsZero():
		return fmt.Errorf("%w: entry date is required", ErrValidation)
	case p.EntryPrice <= 0:
		return fmt.Errorf("%w: entry price must be positive", ErrValidation)
	case p.OriginalQuantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	case p.StopLossPrice < 0 || p.StopLossPrice >= p.EntryPrice:
		return fmt.Errorf("%w: stop %.4f must be below entry %.4f", ErrValidation, p.StopLossPrice, p.EntryPrice)
	case p.HighestTierReached < 0:
		return fmt.Errorf("%w: tier must not be negative", ErrValidation)
	}
	return nil
}

// UpdateStop raises the stop and tier of an OPEN position. Both are ratchets:
// a lower stop or tier is logged and ignored. It reports whether the row
// changed.
func (j *SQLite) UpdateStop(ctx context.Context, positionID string, stop float64, tier int) (Position, bool, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Position{}, false, err
	}
	defer tx.Rollback()

	p, err := getPosition(ctx, tx, positionID)
	if err != nil {
		return Position{}, false, err
	}
	if !p.Open() {
		j.logger.Warn("ledger: stop update on closed position ignored", zap.String("position_id", p.ID))
		return p, false, nil
	}

	changed := false
	if stop > p.StopLossPrice {
		p.StopLossPrice = stop
		changed = true
	} else if stop < p.StopLossPrice {
		j.logger.Warn("ledger: stop decrease ignored",
			zap.String("position_id", p.ID),
			zap.Float64("current", p.StopLossPrice),
			zap.Float64("requested", stop),
		)
	}
	if tier > p.HighestTierReached {
		p.HighestTierReached = tier
		changed = true
	} else if tier < p.HighestTierReached {
		j.logger.Warn("ledger: tier decrease ignored",
			zap.String("position_id", p.ID),
			zap.Int("current", p.HighestTierReached),
			zap.Int("requested", tier),
		)
	}
	if !changed {
		return p, false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE positions SET stop_loss_price = ?, highest_tier_reached = ?
		WHERE id = ?`, p.StopLossPrice, p.HighestTierReached, p.ID); err != nil {
		return Position{}, false, fmt.Errorf("ledger: update stop %s: %w", p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Position{}, false, err
	}
	return p, true, nil
}

// RecordPartialExit books a profit-target sale. It fails with an
// *OversellError when the quantity exceeds what remains or the label was
// already filled; nothing is written on failure. When the sale empties the
// lot the position is closed in the same transaction.
func (j *SQLite) RecordPartialExit(ctx context.Context, pe PartialExit) (Position, error) {
	switch {
	case pe.TargetLabel == "":
		return Position{}, fmt.Errorf("%w: target label is required", ErrValidation)
	case pe.Quantity <= 0:
		return Position{}, fmt.Errorf("%w: partial quantity must be positive", ErrValidation)
	case pe.ExitPrice <= 0:
		return Position{}, fmt.Errorf("%w: exit price must be positive", ErrValidation)
	case pe.ExitDate.IsZero():
		return Position{}, fmt.Errorf("%w: exit date is required", ErrValidation)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Position{}, err
	}
	defer tx.Rollback()

	p, err := getPosition(ctx, tx, pe.PositionID)
	if err != nil {
		return Position{}, err
	}
	if !p.Open() {
		return Position{}, fmt.Errorf("%w: %s", ErrClosed, p.ID)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM partial_exits WHERE position_id = ? AND target_label = ?`,
		p.ID, pe.TargetLabel).Scan(&n); err != nil {
		return Position{}, err
	}
	if n > 0 {
		return Position{}, &OversellError{PositionID: p.ID, Label: pe.TargetLabel, Quantity: pe.Quantity,
			Remaining: p.RemainingQuantity, Duplicate: true}
	}
	if pe.Quantity > p.RemainingQuantity {
		return Position{}, &OversellError{PositionID: p.ID, Label: pe.TargetLabel, Quantity: pe.Quantity,
			Remaining: p.RemainingQuantity}
	}

	pe.ExitDate = pe.ExitDate.UTC()
	pe.RealizedPct = p.GainPct(pe.ExitPrice)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO partial_exits
		(position_id, target_label, exit_date, quantity, exit_price, realized_pct)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, pe.TargetLabel, pe.ExitDate, pe.Quantity, pe.ExitPrice, pe.RealizedPct); err != nil {
		return Position{}, fmt.Errorf("ledger: insert partial %s/%s: %w", p.ID, pe.TargetLabel, err)
	}

	p.RemainingQuantity -= pe.Quantity
	if _, err := tx.ExecContext(ctx, `
		UPDATE positions SET remaining_quantity = ? WHERE id = ?`,
		p.RemainingQuantity, p.ID); err != nil {
		return Position{}, fmt.Errorf("ledger: update remaining %s: %w", p.ID, err)
	}

	if p.RemainingQuantity == 0 {
		if p, err = closeTx(ctx, tx, p, pe.ExitPrice, ReasonTargetsHit, pe.ExitDate); err != nil {
			return Position{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Position{}, err
	}

	j.logger.Info("ledger: partial exit recorded",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("target", pe.TargetLabel),
		zap.Int("qty", pe.Quantity),
		zap.Float64("price", pe.ExitPrice),
		zap.Int("remaining", p.RemainingQuantity),
		zap.String("status", string(p.Status)),
	)
	return p, nil
}

// ClosePosition marks a position CLOSED. Closing an already closed position
// is logged and treated as a no-op because repeated triggers across ticks are
// expected.
func (j *SQLite) ClosePosition(ctx context.Context, positionID string, exitPrice float64, reason string, at time.Time) (Position, error) {
	if exitPrice <= 0 {
		return Position{}, fmt.Errorf("%w: exit price must be positive", ErrValidation)
	}
	if at.IsZero() {
		return Position{}, fmt.Errorf("%w: exit date is required", ErrValidation)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Position{}, err
	}
	defer tx.Rollback()

	p, err := getPosition(ctx, tx, positionID)
	if err != nil {
		return Position{}, err
	}
	if !p.Open() {
		j.logger.Warn("ledger: close on closed position ignored",
			zap.String("position_id", p.ID),
			zap.String("reason", reason),
		)
		return p, nil
	}

	if p, err = closeTx(ctx, tx, p, exitPrice, reason, at.UTC()); err != nil {
		return Position{}, err
	}
	if err := tx.Commit(); err != nil {
		return Position{}, err
	}

	j.logger.Info("ledger: position closed",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pl_pct", p.RealizedPLPct),
	)
	return p, nil
}

func closeTx(ctx context.Context, tx *sql.Tx, p Position, exitPrice float64, reason string, at time.Time) (Position, error) {
	partials, err := listPartials(ctx, tx, p.ID)
	if err != nil {
		return Position{}, err
	}

	p.Status = StatusClosed
	p.ExitDate = at
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.RealizedPLPct = RealizedPct(p, partials, exitPrice)

	if _, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_date = ?, exit_price = ?, realized_pl_pct = ?, exit_reason = ?
		WHERE id = ? AND status = ?`,
		string(p.Status), p.ExitDate, p.ExitPrice, p.RealizedPLPct, p.ExitReason,
		p.ID, string(StatusOpen)); err != nil {
		return Position{}, fmt.Errorf("ledger: close %s: %w", p.ID, err)
	}
	return p, nil
}

// RealizedPct is the quantity-weighted return of a lot across its partial
// exits plus the final sale of RemainingQuantity at exitPrice.
func RealizedPct(p Position, partials []PartialExit, exitPrice float64) float64 {
	cost := float64(p.OriginalQuantity) * p.EntryPrice
	if cost == 0 {
		return 0
	}
	var pl float64
	for _, pe := range partials {
		pl += float64(pe.Quantity) * (pe.ExitPrice - p.EntryPrice)
	}
	pl += float64(p.RemainingQuantity) * (exitPrice - p.EntryPrice)
	return pl / cost
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

const positionColumns = `id, symbol, entry_date, entry_price, original_quantity, remaining_quantity,
	stop_loss_price, highest_tier_reached, status, exit_date, exit_price, realized_pl_pct, exit_reason,
	entry_score, entry_pattern, position_class`

func getPosition(ctx context.Context, q queryer, positionID string) (Position, error) {
	row := q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, positionID)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, fmt.Errorf("%w: %q", ErrNotFound, positionID)
		}
		return Position{}, err
	}
	return p, nil
}

func scanPosition(s scanner) (Position, error) {
	var (
		p         Position
		status    string
		exitDate  sql.NullTime
		exitPrice sql.NullFloat64
		realized  sql.NullFloat64
		reason    sql.NullString
	)
	err := s.Scan(
		&p.ID,
		&p.Symbol,
		&p.EntryDate,
		&p.EntryPrice,
		&p.OriginalQuantity,
		&p.RemainingQuantity,
		&p.StopLossPrice,
		&p.HighestTierReached,
		&status,
		&exitDate,
		&exitPrice,
		&realized,
		&reason,
		&p.EntryScore,
		&p.EntryPattern,
		&p.PositionClass,
	)
	if err != nil {
		return Position{}, err
	}

	p.EntryDate = p.EntryDate.UTC()
	p.Status = Status(status)
	if exitDate.Valid {
		p.ExitDate = exitDate.Time.UTC()
	}
	p.ExitPrice = exitPrice.Float64
	p.RealizedPLPct = realized.Float64
	p.ExitReason = reason.String
	return p, nil
}

func listPartials(ctx context.Context, q queryer, positionID string) ([]PartialExit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT position_id, target_label, exit_date, quantity, exit_price, realized_pct
		FROM partial_exits
		WHERE position_id = ?
		ORDER BY exit_date ASC, target_label ASC`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartialExit
	for rows.Next() {
		var pe PartialExit
		if err := rows.Scan(
			&pe.PositionID,
			&pe.TargetLabel,
			&pe.ExitDate,
			&pe.Quantity,
			&pe.ExitPrice,
			&pe.RealizedPct,
		); err != nil {
			return nil, err
		}
		pe.ExitDate = pe.ExitDate.UTC()
		out = append(out, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
