package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLJournal stores journal rows in sqlite3 or Postgres. Queries are
// written with ? placeholders and rebound for Postgres.
type SQLJournal struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// NewSQLite opens (and creates) a sqlite3 journal at path.
func NewSQLite(path string) (*SQLJournal, error) {
	return OpenSQL("sqlite3", path)
}

// OpenSQL opens a journal with driver "sqlite3" or "postgres" and ensures
// the schema exists.
func OpenSQL(driver, dsn string) (*SQLJournal, error) {
	schema := Schema
	switch driver {
	case "sqlite3":
	case "postgres":
		schema = PostgresSchema
	default:
		return nil, fmt.Errorf("sql journal: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql journal: %w", err)
	}
	if driver == "sqlite3" {
		// One writer at a time; sqlite serializes anyway.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql journal schema: %w", err)
	}
	return &SQLJournal{db: db, postgres: driver == "postgres", now: time.Now}, nil
}

// rebind turns ? placeholders into $1, $2, ... for Postgres.
func (j *SQLJournal) rebind(q string) string {
	if !j.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *SQLJournal) exec(ctx context.Context, q string, args ...any) error {
	if _, err := j.db.ExecContext(ctx, j.rebind(q), args...); err != nil {
		return fmt.Errorf("sql journal: %w", err)
	}
	return nil
}

func (j *SQLJournal) RecordSignal(ctx context.Context, r SignalRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.exec(ctx, `
		INSERT INTO signals
		(id, time, cycle_id, symbol, side, price, sl, tp, confidence, strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time, r.CycleID, r.Symbol, r.Side, r.Price,
		r.StopLoss, r.TakeProfit, r.Confidence, r.Strategy,
	)
}

func (j *SQLJournal) RecordOrder(ctx context.Context, r OrderRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.exec(ctx, `
		INSERT INTO orders
		(id, time, cycle_id, symbol, side, kind, lots, filled_lots, price, sl, tp, status, ticket, retcode, risk_amount, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time, r.CycleID, r.Symbol, r.Side, r.Kind, r.Lots, r.FilledLots, r.Price,
		r.StopLoss, r.TakeProfit, r.Status, int64(r.Ticket), r.ResultCode, r.RiskAmount, r.Reason,
	)
}

func (j *SQLJournal) RecordTrade(ctx context.Context, r TradeRecord) error {
	r.ID, r.CloseTime = stamp(r.ID, r.CloseTime, j.now)
	open := sql.NullTime{Time: r.OpenTime.UTC(), Valid: !r.OpenTime.IsZero()}
	return j.exec(ctx, `
		INSERT INTO trades
		(id, trade_id, symbol, side, lots, entry_price, exit_price, open_time, close_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TradeID, r.Symbol, r.Side, r.Lots, r.EntryPrice, r.ExitPrice,
		open, r.CloseTime, r.RealizedPL, r.Reason,
	)
}

func (j *SQLJournal) RecordEvent(ctx context.Context, r EventRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.exec(ctx, `INSERT INTO events (id, time, kind, message) VALUES (?, ?, ?, ?)`,
		r.ID, r.Time, r.Kind, r.Message)
}

func (j *SQLJournal) Close() error {
	return j.db.Close()
}
