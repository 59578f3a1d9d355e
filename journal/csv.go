package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/pkg/id"
)

// Table names, also used as CSV file name prefixes.
const (
	Signals = "signals"
	Orders  = "orders"
	Trades  = "trades"
	Events  = "events"
)

var headers = map[string][]string{
	Signals: {"id", "time", "cycle_id", "symbol", "side", "price", "sl", "tp", "confidence", "strategy"},
	Orders:  {"id", "time", "cycle_id", "symbol", "side", "kind", "lots", "filled_lots", "price", "sl", "tp", "status", "ticket", "retcode", "risk_amount", "reason"},
	Trades:  {"id", "trade_id", "symbol", "side", "lots", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason"},
	Events:  {"id", "time", "kind", "message"},
}

// CSVJournal appends rows to one CSV file per table in dir. With daily
// rotation the files are named <table>_<YYYY-MM-DD>.csv after the UTC
// date of the write; otherwise <table>.csv. A header is written when a
// file is created.
type CSVJournal struct {
	dir    string
	rotate bool
	now    func() time.Time

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(dir string, rotateDaily bool) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv journal: %w", err)
	}
	return &CSVJournal{
		dir:    dir,
		rotate: rotateDaily,
		now:    time.Now,
		files:  make(map[string]*csvFile),
	}, nil
}

// FileName is the file a row for table written at t goes to.
func FileName(table string, t time.Time, rotate bool) string {
	if rotate {
		return fmt.Sprintf("%s_%s.csv", table, t.UTC().Format("2006-01-02"))
	}
	return table + ".csv"
}

func (j *CSVJournal) RecordSignal(ctx context.Context, r SignalRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.write(Signals, []string{
		r.ID,
		ts(r.Time),
		r.CycleID,
		r.Symbol,
		r.Side,
		f(r.Price),
		opt(r.StopLoss),
		opt(r.TakeProfit),
		f(r.Confidence),
		r.Strategy,
	})
}

func (j *CSVJournal) RecordOrder(ctx context.Context, r OrderRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.write(Orders, []string{
		r.ID,
		ts(r.Time),
		r.CycleID,
		r.Symbol,
		r.Side,
		r.Kind,
		f(r.Lots),
		f(r.FilledLots),
		f(r.Price),
		opt(r.StopLoss),
		opt(r.TakeProfit),
		r.Status,
		strconv.FormatUint(r.Ticket, 10),
		strconv.Itoa(r.ResultCode),
		f(r.RiskAmount),
		r.Reason,
	})
}

func (j *CSVJournal) RecordTrade(ctx context.Context, r TradeRecord) error {
	r.ID, r.CloseTime = stamp(r.ID, r.CloseTime, j.now)
	return j.write(Trades, []string{
		r.ID,
		r.TradeID,
		r.Symbol,
		r.Side,
		f(r.Lots),
		f(r.EntryPrice),
		f(r.ExitPrice),
		ts(r.OpenTime),
		ts(r.CloseTime),
		f(r.RealizedPL),
		r.Reason,
	})
}

func (j *CSVJournal) RecordEvent(ctx context.Context, r EventRecord) error {
	r.ID, r.Time = stamp(r.ID, r.Time, j.now)
	return j.write(Events, []string{r.ID, ts(r.Time), r.Kind, r.Message})
}

func (j *CSVJournal) write(table string, row []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cf, err := j.fileLocked(table)
	if err != nil {
		return err
	}
	if err := cf.w.Write(row); err != nil {
		return fmt.Errorf("csv journal %s: %w", cf.path, err)
	}
	cf.w.Flush()
	if err := cf.w.Error(); err != nil {
		return fmt.Errorf("csv journal %s: %w", cf.path, err)
	}
	return nil
}

// fileLocked returns the open file for table, switching to a new one when
// the day rolled over.
func (j *CSVJournal) fileLocked(table string) (*csvFile, error) {
	path := filepath.Join(j.dir, FileName(table, j.now(), j.rotate))
	if cf, ok := j.files[table]; ok {
		if cf.path == path {
			return cf, nil
		}
		if err := cf.close(); err != nil {
			return nil, err
		}
		delete(j.files, table)
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv journal: %w", err)
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("csv journal: %w", err)
	}

	cf := &csvFile{path: path, f: fh, w: csv.NewWriter(fh)}
	if st.Size() == 0 {
		if err := cf.w.Write(headers[table]); err != nil {
			fh.Close()
			return nil, fmt.Errorf("csv journal %s: %w", path, err)
		}
	}
	j.files[table] = cf
	return cf, nil
}

func (cf *csvFile) close() error {
	cf.w.Flush()
	return errors.Join(cf.w.Error(), cf.f.Close())
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	for k, cf := range j.files {
		errs = append(errs, cf.close())
		delete(j.files, k)
	}
	return errors.Join(errs...)
}

func stamp(rid string, t time.Time, now func() time.Time) (string, time.Time) {
	if t.IsZero() {
		t = now()
	}
	t = t.UTC()
	if rid == "" {
		rid = id.At(t)
	}
	return rid, t
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func opt(p *float64) string {
	if p == nil {
		return ""
	}
	return f(*p)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
