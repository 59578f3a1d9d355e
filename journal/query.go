package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNotFound = errors.New("journal: not found")

const orderCols = `id, time, cycle_id, symbol, side, kind, lots, filled_lots, price, sl, tp, status, ticket, retcode, risk_amount, reason`

const tradeCols = `id, trade_id, symbol, side, lots, entry_price, exit_price, open_time, close_time, realized_pl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (OrderRecord, error) {
	var (
		r      OrderRecord
		sl, tp sql.NullFloat64
		ticket int64
	)
	err := s.Scan(&r.ID, &r.Time, &r.CycleID, &r.Symbol, &r.Side, &r.Kind, &r.Lots, &r.FilledLots, &r.Price,
		&sl, &tp, &r.Status, &ticket, &r.ResultCode, &r.RiskAmount, &r.Reason)
	if err != nil {
		return r, err
	}
	r.Time = r.Time.UTC()
	r.StopLoss = nullable(sl)
	r.TakeProfit = nullable(tp)
	r.Ticket = uint64(ticket)
	return r, nil
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		r    TradeRecord
		open sql.NullTime
	)
	err := s.Scan(&r.ID, &r.TradeID, &r.Symbol, &r.Side, &r.Lots, &r.EntryPrice, &r.ExitPrice,
		&open, &r.CloseTime, &r.RealizedPL, &r.Reason)
	if err != nil {
		return r, err
	}
	if open.Valid {
		r.OpenTime = open.Time.UTC()
	}
	r.CloseTime = r.CloseTime.UTC()
	return r, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	x := v.Float64
	return &x
}

// ListOrders returns orders recorded within [start, end), oldest first.
func (j *SQLJournal) ListOrders(ctx context.Context, start, end time.Time) ([]OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT `+orderCols+`
		FROM orders
		WHERE time >= ? AND time < ?
		ORDER BY id ASC`), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		r, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTrades returns trades closed within [start, end), oldest first.
func (j *SQLJournal) ListTrades(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT `+tradeCols+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, id ASC`), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		r, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("list trades: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetTrade returns the most recent trade row for a broker ticket.
func (j *SQLJournal) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, j.rebind(`
		SELECT `+tradeCols+`
		FROM trades
		WHERE trade_id = ?
		ORDER BY id DESC
		LIMIT 1`), tradeID)
	r, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return TradeRecord{}, fmt.Errorf("get trade: %w", err)
	}
	return r, nil
}

// Summary is one UTC day of activity.
type Summary struct {
	Day          time.Time
	Signals      int
	Orders       map[string]int // by status
	Trades       int
	RealizedPL   float64
	GrossProfit  float64
	GrossLoss    float64 // positive
	ProfitFactor float64 // GrossProfit/GrossLoss; +Inf with no losses
}

// DaySummary counts the signals, orders by status and closed trades of the
// UTC day containing day.
func (j *SQLJournal) DaySummary(ctx context.Context, day time.Time) (Summary, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	s := Summary{Day: start, Orders: make(map[string]int)}

	err := j.db.QueryRowContext(ctx, j.rebind(`SELECT COUNT(*) FROM signals WHERE time >= ? AND time < ?`),
		start, end).Scan(&s.Signals)
	if err != nil {
		return s, fmt.Errorf("day summary: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT status, COUNT(*) FROM orders
		WHERE time >= ? AND time < ?
		GROUP BY status`), start, end)
	if err != nil {
		return s, fmt.Errorf("day summary: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return s, fmt.Errorf("day summary: %w", err)
		}
		s.Orders[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("day summary: %w", err)
	}

	trades, err := j.ListTrades(ctx, start, end)
	if err != nil {
		return s, err
	}
	s.Trades = len(trades)
	for _, t := range trades {
		s.RealizedPL += t.RealizedPL
		if t.RealizedPL > 0 {
			s.GrossProfit += t.RealizedPL
		} else {
			s.GrossLoss -= t.RealizedPL
		}
	}
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}
	return s, nil
}
