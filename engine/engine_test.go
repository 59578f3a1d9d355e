package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/alert"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/broker/paper"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

var t0 = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

// scripted returns whatever signals the test configured.
type scripted struct {
	mu      sync.Mutex
	entries map[string]strategy.Signal
	exits   map[string]strategy.ExitSignal
}

func newScripted() *scripted {
	return &scripted{entries: map[string]strategy.Signal{}, exits: map[string]strategy.ExitSignal{}}
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Entry(symbol string, _ []market.Bar) (strategy.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.entries[symbol]
	return sig, ok
}

func (s *scripted) Exit(symbol string, _ []market.Bar, _ strategy.Position) (strategy.ExitSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exits[symbol]
	return ex, ok
}

func (s *scripted) enter(sig strategy.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sig.Symbol] = sig
}

func (s *scripted) exit(ex strategy.ExitSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ex.Symbol)
	s.exits[ex.Symbol] = ex
}

func (s *scripted) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]strategy.Signal{}
	s.exits = map[string]strategy.ExitSignal{}
}

type memJournal struct {
	mu      sync.Mutex
	signals []journal.SignalRecord
	orders  []journal.OrderRecord
	trades  []journal.TradeRecord
	events  []journal.EventRecord
}

func (j *memJournal) RecordSignal(_ context.Context, r journal.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, r)
	return nil
}

func (j *memJournal) RecordOrder(_ context.Context, r journal.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, r)
	return nil
}

func (j *memJournal) RecordTrade(_ context.Context, r journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, r)
	return nil
}

func (j *memJournal) RecordEvent(_ context.Context, r journal.EventRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, r)
	return nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) ordersWith(status string) []journal.OrderRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.OrderRecord
	for _, o := range j.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

type alertLog struct {
	mu   sync.Mutex
	msgs []alert.Message
}

func (a *alertLog) Name() string { return "test" }

func (a *alertLog) Notify(_ context.Context, m alert.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, m)
	return nil
}

func (a *alertLog) count(c alert.Category) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, m := range a.msgs {
		if m.Category == c {
			n++
		}
	}
	return n
}

func usdPair(symbol string) market.SymbolInfo {
	return market.SymbolInfo{
		Symbol: symbol, Digits: 5, Point: 0.00001, ContractSize: 100000,
		LotStep: 0.01, MinLot: 0.01, MaxLot: 50, TickValue: 1, TickSize: 0.00001,
	}
}

type harness struct {
	broker  *paper.Broker
	limiter *risk.Limiter
	strat   *scripted
	journal *memJournal
	alerts  *alertLog
	engine  *Engine
}

func newHarness(t *testing.T, cfg risk.Config, opts Options) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	b := paper.New(broker.Account{Login: "paper", Currency: "USD", Balance: 10000}, log)
	prices := map[string]float64{"EURUSD": 1.1000, "GBPUSD": 1.2500, "AUDUSD": 0.6500}
	for sym, bid := range prices {
		b.AddSymbol(usdPair(sym))
		b.SetBars(sym, []market.Bar{{Time: t0, Open: bid, High: bid, Low: bid, Close: bid}})
		b.UpdatePrice(context.Background(), market.Tick{Symbol: sym, Bid: bid, Ask: bid + 0.0002, Time: t0})
	}
	if len(opts.Symbols) == 0 {
		opts.Symbols = []string{"EURUSD"}
	}

	h := &harness{
		broker:  b,
		limiter: risk.NewLimiter(cfg),
		strat:   newScripted(),
		journal: &memJournal{},
		alerts:  &alertLog{},
	}
	e, err := New(Deps{
		Gateway:  b,
		Market:   b,
		Limiter:  h.limiter,
		Orders:   order.NewTranslator(b, b, order.DefaultOptions(), log),
		Strategy: h.strat,
		Journal:  h.journal,
		Alerts:   h.alerts,
		Log:      log,
	}, opts)
	require.NoError(t, err)
	e.now = func() time.Time { return t0 }
	h.engine = e
	return h
}

func onePct() risk.Config {
	return risk.Config{PerTradePct: 1, PerDayPct: 2, MaxActiveTrades: 4}
}

func buyEURUSD(stop float64) strategy.Signal {
	return strategy.Signal{Symbol: "EURUSD", Side: order.Buy, Price: 1.1000, StopLoss: fptr(stop), Confidence: 0.8}
}

func TestPollAndTradePlacesSizedOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980)) // 20 pips

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Symbols, 1)
	got := rep.Symbols[0]
	assert.Equal(t, Placed, got.Outcome)
	assert.NotZero(t, got.Ticket)
	// 100 risk / (20 pips * 10 per pip) = 0.5 lots
	assert.InDelta(t, 0.5, got.Lots, 1e-9)
	assert.Equal(t, 10000.0, rep.Equity)
	assert.NotEmpty(t, rep.CycleID)

	st := h.limiter.Snapshot()
	assert.Equal(t, map[string]float64{riskID(got.Ticket): 100}, st.ActiveTrades)
	assert.Equal(t, 100.0, st.DailyRiskUsed)

	require.Len(t, h.journal.signals, 1)
	assert.Equal(t, rep.CycleID, h.journal.signals[0].CycleID)
	placed := h.journal.ordersWith(journal.StatusPlaced)
	require.Len(t, placed, 1)
	assert.Equal(t, got.Ticket, placed[0].Ticket)
	assert.Equal(t, 100.0, placed[0].RiskAmount)
	assert.Equal(t, broker.CodeDone, placed[0].ResultCode)
	assert.InDelta(t, 1.0980, *placed[0].StopLoss, 1e-9)
	assert.InDelta(t, 0.5, placed[0].Lots, 1e-9)
	assert.InDelta(t, 0.5, placed[0].FilledLots, 1e-9)

	assert.Equal(t, 1, h.alerts.count(alert.CategorySignal))
	assert.Equal(t, 1, h.alerts.count(alert.CategoryOrder))

	pos := h.engine.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, 1.1002, pos[0].EntryPrice)
}

// rewriting alters every successful placement answer of the paper broker.
type rewriting struct {
	*paper.Broker
	rewrite func(*broker.Response)
}

func (g rewriting) Place(ctx context.Context, req broker.Request) (broker.Response, error) {
	resp, err := g.Broker.Place(ctx, req)
	if err == nil && resp.Code == broker.CodeDone {
		g.rewrite(&resp)
	}
	return resp, err
}

// withGateway rebuilds h.engine on gw, keeping the harness's other parts.
func (h *harness) withGateway(t *testing.T, gw broker.Gateway, opts Options) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(Deps{
		Gateway:  gw,
		Market:   h.broker,
		Limiter:  h.limiter,
		Orders:   order.NewTranslator(gw, h.broker, order.DefaultOptions(), log),
		Strategy: h.strat,
		Journal:  h.journal,
		Alerts:   h.alerts,
		Log:      log,
	}, opts)
	require.NoError(t, err)
	e.now = func() time.Time { return t0 }
	h.engine = e
}

func TestTicketlessPlacementsStillCountAgainstCap(t *testing.T) {
	t.Parallel()

	cfg := onePct()
	cfg.MaxActiveTrades = 2
	opts := Options{Symbols: []string{"EURUSD", "GBPUSD", "AUDUSD"}}
	h := newHarness(t, cfg, opts)
	h.withGateway(t, rewriting{Broker: h.broker, rewrite: func(r *broker.Response) {
		r.Order, r.Deal = 0, 0
	}}, opts)
	h.strat.enter(buyEURUSD(1.0980))
	h.strat.enter(strategy.Signal{Symbol: "GBPUSD", Side: order.Buy, Price: 1.25, StopLoss: fptr(1.2480)})
	h.strat.enter(strategy.Signal{Symbol: "AUDUSD", Side: order.Buy, Price: 0.65, StopLoss: fptr(0.6480)})

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Count(Placed))
	require.Equal(t, 1, rep.Count(Refused))
	assert.Equal(t, string(risk.MaxActiveTradesReached), rep.Symbols[2].Reason)
	assert.Len(t, h.limiter.Snapshot().ActiveTrades, 2)
	assert.Empty(t, h.engine.Positions(), "nothing to manage without a ticket")

	// Reconciliation cannot see them, so the reservations hold.
	h.strat.clear()
	_, err = h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.limiter.Snapshot().ActiveTrades, 2)
	assert.Equal(t, 3, h.alerts.count(alert.CategoryRisk))
}

func TestPlacedRowKeepsComputedAndFilledLots(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.withGateway(t, rewriting{Broker: h.broker, rewrite: func(r *broker.Response) {
		r.Volume = fptr(0.3)
	}}, Options{Symbols: []string{"EURUSD"}})
	h.strat.enter(buyEURUSD(1.0980))

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, rep.Symbols[0].Lots, 1e-9)

	placed := h.journal.ordersWith(journal.StatusPlaced)
	require.Len(t, placed, 1)
	assert.InDelta(t, 0.5, placed[0].Lots, 1e-9)
	assert.InDelta(t, 0.3, placed[0].FilledLots, 1e-9)
}

func TestPollAndTradeRefusalIsJournaledAndAlerted(t *testing.T) {
	t.Parallel()

	cfg := onePct()
	cfg.MaxActiveTrades = 1
	h := newHarness(t, cfg, Options{Symbols: []string{"EURUSD", "GBPUSD"}})
	h.strat.enter(buyEURUSD(1.0980))
	h.strat.enter(strategy.Signal{Symbol: "GBPUSD", Side: order.Sell, Price: 1.25, StopLoss: fptr(1.2520)})

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Symbols, 2)
	assert.Equal(t, Placed, rep.Symbols[0].Outcome)
	assert.Equal(t, Refused, rep.Symbols[1].Outcome)
	assert.Equal(t, string(risk.MaxActiveTradesReached), rep.Symbols[1].Reason)

	refused := h.journal.ordersWith(journal.StatusRefused)
	require.Len(t, refused, 1)
	assert.Equal(t, "GBPUSD", refused[0].Symbol)
	assert.Equal(t, 1, h.alerts.count(alert.CategoryRisk))

	open, err := h.broker.Positions(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1, "refused trade never reaches the broker")
}

func TestPollAndTradeSkipsCycleWithoutEquity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980))
	h.broker.FailNext(errors.New("terminal offline"))

	rep, err := h.engine.PollAndTrade(context.Background())
	require.ErrorIs(t, err, ErrEquityUnavailable)
	assert.True(t, rep.Skipped)
	assert.Empty(t, rep.Symbols)
	assert.Empty(t, h.journal.orders)
	require.Len(t, h.journal.events, 1)
	assert.Equal(t, "cycle_skipped", h.journal.events[0].Kind)
	assert.Equal(t, 1, h.alerts.count(alert.CategoryError))
	assert.Nil(t, h.limiter.Snapshot().Equity)
}

func TestPollAndTradeBrokerRejectionDoesNotRegister(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.broker.SetLeverage(1) // 0.5 lots of EURUSD needs 55k margin
	h.strat.enter(buyEURUSD(1.0980))

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failed, rep.Symbols[0].Outcome)
	assert.Empty(t, h.limiter.Snapshot().ActiveTrades)
	assert.Zero(t, h.limiter.Snapshot().DailyRiskUsed)
	assert.Empty(t, h.engine.Positions())

	failed := h.journal.ordersWith(journal.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, broker.CodeNoMoney, failed[0].ResultCode)
	assert.Equal(t, 1, h.alerts.count(alert.CategoryError))
}

func TestPollAndTradeStopFallback(t *testing.T) {
	t.Parallel()

	noStop := strategy.Signal{Symbol: "EURUSD", Side: order.Buy, Price: 1.1000}

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(noStop)
	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Refused, rep.Symbols[0].Outcome)
	assert.Equal(t, string(risk.InvalidStopOrPipValue), rep.Symbols[0].Reason)

	h = newHarness(t, onePct(), Options{DefaultStopPips: map[string]float64{"*": 25}})
	h.strat.enter(noStop)
	rep, err = h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Equal(t, Placed, rep.Symbols[0].Outcome)
	assert.InDelta(t, 0.4, rep.Symbols[0].Lots, 1e-9)

	pos := h.engine.Positions()
	require.Len(t, pos, 1)
	require.NotNil(t, pos[0].StopLoss)
	assert.InDelta(t, 1.0975, *pos[0].StopLoss, 1e-9)
}

func TestReserveFromFill(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{ReserveFromFill: true})
	h.strat.enter(buyEURUSD(1.0970)) // 30 pips -> 0.333 floored to 0.33

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Equal(t, Placed, rep.Symbols[0].Outcome)
	assert.InDelta(t, 0.33, rep.Symbols[0].Lots, 1e-9)
	assert.InDelta(t, 99, h.limiter.Snapshot().DailyRiskUsed, 1e-9)
}

func TestStrategyExitClosesPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980))
	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	ticket := rep.Symbols[0].Ticket

	h.broker.UpdatePrice(context.Background(), market.Tick{Symbol: "EURUSD", Bid: 1.1032, Ask: 1.1034, Time: t0.Add(time.Hour)})
	h.strat.exit(strategy.ExitSignal{Symbol: "EURUSD", Action: strategy.Close, Reason: "ema_cross_down"})

	rep, err = h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Exited, rep.Symbols[0].Outcome)
	assert.Equal(t, ticket, rep.Symbols[0].Ticket)

	assert.Empty(t, h.engine.Positions())
	assert.False(t, h.limiter.IsActive(riskID(ticket)))
	open, err := h.broker.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)

	require.Len(t, h.journal.trades, 1)
	tr := h.journal.trades[0]
	assert.Equal(t, "ema_cross_down", tr.Reason)
	// long 0.5 lots from 1.1002, out at bid 1.1032: 30 pips * 10 * 0.5
	assert.InDelta(t, 150, tr.RealizedPL, 1e-6)
	assert.Len(t, h.journal.ordersWith(journal.StatusClosed), 1)
	assert.Equal(t, 1, h.alerts.count(alert.CategoryTrade))
}

func TestPartialExitKeepsReservation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980))
	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	ticket := rep.Symbols[0].Ticket

	h.strat.exit(strategy.ExitSignal{Symbol: "EURUSD", Action: strategy.Partial, Lots: fptr(0.2), Reason: "scale_out"})
	rep, err = h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Exited, rep.Symbols[0].Outcome)
	assert.InDelta(t, 0.2, rep.Symbols[0].Lots, 1e-9)

	assert.True(t, h.limiter.IsActive(riskID(ticket)))
	pos := h.engine.Positions()
	require.Len(t, pos, 1)
	assert.InDelta(t, 0.3, pos[0].Lots, 1e-9)
}

func TestReconcileReleasesBrokerClosedPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980))
	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	ticket := rep.Symbols[0].Ticket

	// Price falls through the stop; the paper broker closes at 1.0980.
	h.broker.UpdatePrice(context.Background(), market.Tick{Symbol: "EURUSD", Bid: 1.0975, Ask: 1.0977, Time: t0.Add(time.Hour)})
	h.strat.clear()

	rep, err = h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{ticket}, rep.Closed)
	assert.False(t, h.limiter.IsActive(riskID(ticket)))
	assert.Empty(t, h.engine.Positions())

	require.Len(t, h.journal.trades, 1)
	tr := h.journal.trades[0]
	assert.Equal(t, "stop_loss", tr.Reason)
	assert.InDelta(t, -110, tr.RealizedPL, 1e-6)
	assert.Equal(t, 1.0980, tr.ExitPrice)
}

func TestParallelAdmissionIsSerialized(t *testing.T) {
	t.Parallel()

	cfg := onePct()
	cfg.MaxActiveTrades = 2
	h := newHarness(t, cfg, Options{
		Symbols:     []string{"EURUSD", "GBPUSD", "AUDUSD"},
		Parallel:    true,
		Concurrency: 3,
	})
	h.strat.enter(buyEURUSD(1.0980))
	h.strat.enter(strategy.Signal{Symbol: "GBPUSD", Side: order.Buy, Price: 1.25, StopLoss: fptr(1.2480)})
	h.strat.enter(strategy.Signal{Symbol: "AUDUSD", Side: order.Buy, Price: 0.65, StopLoss: fptr(0.6480)})

	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Symbols, 3)
	assert.Equal(t, []string{"EURUSD", "GBPUSD", "AUDUSD"},
		[]string{rep.Symbols[0].Symbol, rep.Symbols[1].Symbol, rep.Symbols[2].Symbol})
	assert.Equal(t, 2, rep.Count(Placed))
	assert.Equal(t, 1, rep.Count(Refused))
	assert.Len(t, h.limiter.Snapshot().ActiveTrades, 2)
}

func TestCancelledCycleStopsBetweenSymbols(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{Symbols: []string{"EURUSD", "GBPUSD"}})
	h.strat.enter(buyEURUSD(1.0980))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.engine.PollAndTrade(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Symbols)
	assert.Empty(t, h.journal.orders)
}

func TestNoDataAndNoSignal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{Symbols: []string{"EURUSD", "USDJPY"}})
	rep, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Symbols, 2)
	assert.Equal(t, NoSignal, rep.Symbols[0].Outcome)
	assert.Equal(t, NoData, rep.Symbols[1].Outcome)
}

func TestResetDaily(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{})
	h.strat.enter(buyEURUSD(1.0980))
	_, err := h.engine.PollAndTrade(context.Background())
	require.NoError(t, err)

	h.engine.ResetDaily(context.Background())
	st := h.limiter.Snapshot()
	assert.Zero(t, st.DailyRiskUsed)
	assert.Len(t, st.ActiveTrades, 1)
	require.Len(t, h.journal.events, 1)
	assert.Equal(t, "daily_reset", h.journal.events[0].Kind)
}

func TestNextReset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC), 22, time.Date(2024, 4, 10, 22, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2024, 4, 10, 23, 0, 0, 0, time.UTC), 0, time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)},
		{"exactly now rolls over", time.Date(2024, 4, 10, 5, 0, 0, 0, time.UTC), 5, time.Date(2024, 4, 11, 5, 0, 0, 0, time.UTC)},
		{"non utc input", time.Date(2024, 4, 10, 20, 0, 0, 0, time.FixedZone("X", -5*3600)), 0, time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextReset(tt.now, tt.hour))
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, onePct(), Options{PollInterval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, h.engine.Run(ctx))
	assert.Equal(t, 2, h.alerts.count(alert.CategorySystem))
}
