package ledger

import (
	"context"
	"time"
)

// Get returns a single position by ID.
func (j *SQLite) Get(ctx context.Context, positionID string) (Position, error) {
	return getPosition(ctx, j.db, positionID)
}

// GetOpen returns every OPEN position, oldest entry first.
func (j *SQLite) GetOpen(ctx context.Context) ([]Position, error) {
	return j.listPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ?
		ORDER BY entry_date ASC, id ASC`, string(StatusOpen))
}

// GetOpenForSymbol returns the OPEN lots of symbol in FIFO order.
func (j *SQLite) GetOpenForSymbol(ctx context.Context, symbol string) ([]Position, error) {
	return j.listPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ? AND symbol = ?
		ORDER BY entry_date ASC, id ASC`, string(StatusOpen), symbol)
}

// ListClosedBetween returns positions whose exit_date is within [start, end).
func (j *SQLite) ListClosedBetween(ctx context.Context, start, end time.Time) ([]Position, error) {
	return j.listPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ? AND exit_date >= ? AND exit_date < ?
		ORDER BY exit_date ASC, id ASC`, string(StatusClosed), start.UTC(), end.UTC())
}

// PartialExits returns the partial exits of a position in fill order.
func (j *SQLite) PartialExits(ctx context.Context, positionID string) ([]PartialExit, error) {
	return listPartials(ctx, j.db, positionID)
}

// CountTradesOpenedToday counts positions (open or closed) whose entry falls
// on now's calendar day in the ledger's location.
func (j *SQLite) CountTradesOpenedToday(ctx context.Context, now time.Time) (int, error) {
	start, end := DayBounds(now, j.loc)
	return j.CountOpenedBetween(ctx, start, end)
}

// CountOpenedBetween counts positions with entry_date within [start, end).
func (j *SQLite) CountOpenedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions
		WHERE entry_date >= ? AND entry_date < ?`, start.UTC(), end.UTC()).Scan(&n)
	return n, err
}

// DayBounds returns the [start, end) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func (j *SQLite) listPositions(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
