// Package engine runs the trading cycle: fetch equity, ask the strategy
// for signals, gate them through the risk limiter, size and place orders,
// and record everything in the journal and alert channels.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradebot/alert"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/pkg/id"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

var (
	ErrEquityUnavailable = errors.New("equity unavailable")
	ErrMissingDependency = errors.New("missing dependency")
)

// Deps are the collaborators of an Engine. Journal, Alerts and Log may be
// nil.
type Deps struct {
	Gateway  broker.Gateway
	Market   market.Provider
	Limiter  *risk.Limiter
	Orders   *order.Translator
	Strategy strategy.Strategy
	Journal  journal.Journal
	Alerts   alert.Notifier
	Log      *slog.Logger
}

type Options struct {
	Symbols    []string
	Timeframe  market.Timeframe
	DataWindow int // bars fetched per symbol per cycle

	// Parallel processes symbols concurrently, at most Concurrency at a
	// time. Risk admission stays serialized.
	Parallel    bool
	Concurrency int

	OrderTimeout time.Duration

	// DefaultStopPips is used when a signal carries no stop-loss. The
	// "*" key applies to symbols without their own entry.
	DefaultStopPips map[string]float64

	// ReserveFromFill reserves filled_lots * stop_pips * pip_value
	// instead of equity * per_trade_pct / 100.
	ReserveFromFill bool

	PollInterval   time.Duration
	DailyResetHour int // UTC
}

func DefaultOptions() Options {
	return Options{
		Timeframe:      market.H1,
		DataWindow:     200,
		Concurrency:    4,
		OrderTimeout:   10 * time.Second,
		PollInterval:   time.Minute,
		DailyResetHour: 0,
	}
}

type Outcome string

const (
	NoData   Outcome = "no_data"
	NoSignal Outcome = "no_signal"
	Placed   Outcome = "placed"
	Refused  Outcome = "refused"
	Failed   Outcome = "failed"
	Exited   Outcome = "exited"
)

// SymbolReport is what happened to one symbol in one cycle.
type SymbolReport struct {
	Symbol  string
	Outcome Outcome
	Reason  string
	Ticket  uint64
	Lots    float64
}

type Report struct {
	CycleID string
	Started time.Time
	Equity  float64
	Skipped bool
	Symbols []SymbolReport
	Closed  []uint64 // positions found closed by the broker
}

// Count returns how many symbols ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Symbols {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

type tracked struct {
	strategy.Position
	riskID  string
	cycleID string
	lastPnL float64
	info    market.SymbolInfo
}

type Engine struct {
	deps Deps
	opts Options
	log  *slog.Logger

	// admit serializes CanOpenTrade, placement and RegisterNewTrade so
	// parallel symbols never pass against the same remaining budget.
	admit sync.Mutex

	mu        sync.Mutex
	positions map[uint64]*tracked

	now func() time.Time
}

func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Gateway == nil:
		return nil, fmt.Errorf("%w: gateway", ErrMissingDependency)
	case deps.Market == nil:
		return nil, fmt.Errorf("%w: market data", ErrMissingDependency)
	case deps.Limiter == nil:
		return nil, fmt.Errorf("%w: risk limiter", ErrMissingDependency)
	case deps.Orders == nil:
		return nil, fmt.Errorf("%w: order translator", ErrMissingDependency)
	case deps.Strategy == nil:
		return nil, fmt.Errorf("%w: strategy", ErrMissingDependency)
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.LogNotifier{Log: deps.Log}
	}

	def := DefaultOptions()
	if opts.Timeframe == "" {
		opts.Timeframe = def.Timeframe
	}
	if opts.DataWindow <= 0 {
		opts.DataWindow = def.DataWindow
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = def.OrderTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}

	return &Engine{
		deps:      deps,
		opts:      opts,
		log:       deps.Log.With("component", "engine", "strategy", deps.Strategy.Name()),
		positions: make(map[uint64]*tracked),
		now:       time.Now,
	}, nil
}

// PollAndTrade runs one cycle over all configured symbols. When equity
// cannot be fetched the cycle is skipped and ErrEquityUnavailable is
// returned. Per-symbol failures are reported, never returned.
//
// Cancelling ctx stops the cycle between symbols. An order that has been
// submitted always runs to a result.
func (e *Engine) PollAndTrade(ctx context.Context) (Report, error) {
	rep := Report{CycleID: id.New(), Started: e.now()}
	log := e.log.With("cycle", rep.CycleID)

	acct, err := e.deps.Gateway.Account(ctx)
	if err == nil {
		err = e.deps.Limiter.UpdateEquity(acct.Equity)
	}
	if err != nil {
		rep.Skipped = true
		log.Error("cycle skipped", "err", err)
		e.event(ctx, "cycle_skipped", err.Error())
		e.notify(ctx, alert.Error("cycle skipped, equity unavailable: "+err.Error()))
		return rep, fmt.Errorf("%w: %w", ErrEquityUnavailable, err)
	}
	rep.Equity = acct.Equity

	rep.Closed = e.reconcile(ctx, rep.CycleID)

	rep.Symbols = make([]SymbolReport, 0, len(e.opts.Symbols))
	if !e.opts.Parallel {
		for _, sym := range e.opts.Symbols {
			if ctx.Err() != nil {
				break
			}
			rep.Symbols = append(rep.Symbols, e.processSymbol(ctx, rep.CycleID, sym))
		}
	} else {
		results := make([]*SymbolReport, len(e.opts.Symbols))
		var g errgroup.Group
		g.SetLimit(e.opts.Concurrency)
		for i, sym := range e.opts.Symbols {
			if ctx.Err() != nil {
				break
			}
			i, sym := i, sym
			g.Go(func() error {
				r := e.processSymbol(ctx, rep.CycleID, sym)
				results[i] = &r
				return nil
			})
		}
		_ = g.Wait()
		for _, r := range results {
			if r != nil {
				rep.Symbols = append(rep.Symbols, *r)
			}
		}
	}

	log.Info("cycle done",
		"equity", rep.Equity,
		"placed", rep.Count(Placed),
		"refused", rep.Count(Refused),
		"failed", rep.Count(Failed),
		"exited", rep.Count(Exited),
	)
	if m, ok := e.deps.Strategy.(strategy.Monitor); ok {
		log.Debug("strategy status", "status", m.Status())
	}
	return rep, nil
}

func (e *Engine) processSymbol(ctx context.Context, cycleID, sym string) SymbolReport {
	log := e.log.With("cycle", cycleID, "symbol", sym)

	bars, err := e.deps.Market.Bars(ctx, sym, e.opts.Timeframe, e.opts.DataWindow)
	if err != nil || len(bars) == 0 {
		if err != nil && !errors.Is(err, market.ErrNoData) {
			log.Warn("bars unavailable", "err", err)
		} else {
			log.Debug("no bars")
		}
		return SymbolReport{Symbol: sym, Outcome: NoData}
	}

	sig, ok := e.deps.Strategy.Entry(sym, bars)
	if !ok {
		if r, exited := e.checkExits(ctx, cycleID, sym, bars); exited {
			return r
		}
		return SymbolReport{Symbol: sym, Outcome: NoSignal}
	}
	if sig.Symbol == "" {
		sig.Symbol = sym
	}
	if sig.Price <= 0 {
		sig.Price = bars[len(bars)-1].Close
	}

	e.journalErr(ctx, "signal", e.deps.Journal.RecordSignal(ctx, journal.SignalRecord{
		Time:       e.now(),
		CycleID:    cycleID,
		Symbol:     sig.Symbol,
		Side:       string(sig.Side),
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: sig.Confidence,
		Strategy:   e.deps.Strategy.Name(),
	}))
	e.notify(ctx, alert.Signal(sig.Symbol, string(sig.Side), sig.Price, sig.StopLoss, sig.TakeProfit, sig.Confidence))

	return e.enter(ctx, cycleID, sig)
}

// Positions returns the positions the engine opened and still tracks,
// ordered by ticket.
func (e *Engine) Positions() []strategy.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]strategy.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

func (e *Engine) track(p *tracked) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[p.Ticket] = p
}

func (e *Engine) untrack(ticket uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positions, ticket)
}

func (e *Engine) trackedFor(sym string) []*tracked {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*tracked
	for _, p := range e.positions {
		if p.Symbol == sym {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

func (e *Engine) stopPipsFor(sym string) float64 {
	if v, ok := e.opts.DefaultStopPips[sym]; ok {
		return v
	}
	return e.opts.DefaultStopPips["*"]
}

func (e *Engine) notify(ctx context.Context, m alert.Message) {
	if err := e.deps.Alerts.Notify(ctx, m); err != nil {
		e.log.Warn("alert failed", "category", string(m.Category), "err", err)
	}
}

func (e *Engine) event(ctx context.Context, kind, msg string) {
	e.journalErr(ctx, "event", e.deps.Journal.RecordEvent(ctx, journal.EventRecord{
		Time: e.now(), Kind: kind, Message: msg,
	}))
}

// journalErr logs a failed journal write. Trading carries on without it.
func (e *Engine) journalErr(ctx context.Context, table string, err error) {
	if err != nil {
		e.log.ErrorContext(ctx, "journal write failed", "table", table, "err", err)
	}
}

func riskID(ticket uint64) string {
	return strconv.FormatUint(ticket, 10)
}
