// Package paper is an in-memory broker and market data feed. It fills
// market orders at the current tick, rests pending orders until price
// reaches them and closes positions on stop-loss or take-profit.
package paper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

var ErrFailure = errors.New("paper: injected failure")

// Broker implements broker.Gateway, broker.PositionLister,
// broker.HistoryLister and market.Provider.
type Broker struct {
	mu       sync.Mutex
	acct     broker.Account
	leverage float64
	ticks    *market.TickStore
	symbols  map[string]market.SymbolInfo
	bars     map[string][]market.Bar

	orders    map[uint64]*broker.OrderView
	positions map[uint64]*position
	closed    []broker.ClosedPosition
	nextID    uint64

	failNext error
	log      *slog.Logger
}

type position struct {
	broker.Position
	info market.SymbolInfo
}

func New(acct broker.Account, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	if acct.Equity == 0 {
		acct.Equity = acct.Balance
	}
	acct.FreeMargin = acct.Equity
	return &Broker{
		acct:      acct,
		leverage:  100,
		ticks:     market.NewTickStore(),
		symbols:   make(map[string]market.SymbolInfo),
		bars:      make(map[string][]market.Bar),
		orders:    make(map[uint64]*broker.OrderView),
		positions: make(map[uint64]*position),
		nextID:    1000,
		log:       log.With("component", "paper"),
	}
}

// SetLeverage changes the leverage used for margin, 100 by default.
func (b *Broker) SetLeverage(l float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l > 0 {
		b.leverage = l
	}
}

func (b *Broker) AddSymbol(info market.SymbolInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info.Bid, info.Ask = nil, nil
	b.symbols[info.Symbol] = info
}

// SetBars replaces the bar history served for symbol.
func (b *Broker) SetBars(symbol string, bars []market.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[symbol] = slices.Clone(bars)
}

// AppendBar adds one bar to the end of symbol's history.
func (b *Broker) AppendBar(symbol string, bar market.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[symbol] = append(b.bars[symbol], bar)
}

// FailNext makes the next gateway call return err wrapped as a
// transport failure.
func (b *Broker) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrFailure
	}
	b.failNext = err
}

func (b *Broker) failedLocked() error {
	if b.failNext == nil {
		return nil
	}
	err := b.failNext
	b.failNext = nil
	return fmt.Errorf("%w: %w", broker.ErrTransport, err)
}

// Closed returns the positions closed so far, oldest first.
func (b *Broker) Closed() []broker.ClosedPosition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.closed)
}

// ClosedPositions returns the closes recorded for ticket, oldest first.
func (b *Broker) ClosedPositions(ctx context.Context, ticket uint64) ([]broker.ClosedPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return nil, err
	}
	var out []broker.ClosedPosition
	for _, c := range b.closed {
		if c.Ticket == ticket {
			out = append(out, c)
		}
	}
	return out, nil
}

// ---- market.Provider ----

func (b *Broker) Tick(ctx context.Context, symbol string) (market.Tick, error) {
	return b.ticks.Get(symbol)
}

func (b *Broker) Bars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bars := b.bars[symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, market.ErrNoData)
	}
	if count > 0 && count < len(bars) {
		bars = bars[len(bars)-count:]
	}
	return slices.Clone(bars), nil
}

func (b *Broker) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	b.mu.Lock()
	info, ok := b.symbols[symbol]
	b.mu.Unlock()
	if !ok {
		return market.SymbolInfo{}, fmt.Errorf("symbol info %s: %w", symbol, market.ErrUnknownSymbol)
	}
	if t, err := b.ticks.Get(symbol); err == nil {
		bid, ask := t.Bid, t.Ask
		info.Bid, info.Ask = &bid, &ask
	}
	return info, nil
}

// ---- broker.Gateway ----

func (b *Broker) Account(ctx context.Context) (broker.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return broker.Account{}, err
	}
	return b.acct, nil
}

func (b *Broker) Place(ctx context.Context, req broker.Request) (broker.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return broker.Response{}, err
	}

	info, ok := b.symbols[req.Symbol]
	if !ok {
		return reject(broker.CodeInvalid, "unknown symbol"), nil
	}
	if req.Volume < info.MinLot || (info.MaxLot > 0 && req.Volume > info.MaxLot) {
		return reject(broker.CodeInvalidVolume, "invalid volume"), nil
	}

	switch req.Action {
	case broker.ActionDeal:
		if req.Position != 0 {
			return b.closeLocked(ctx, req)
		}
		return b.openLocked(ctx, req, info)
	case broker.ActionPending:
		if !req.Type.IsPending() || req.Price <= 0 {
			return reject(broker.CodeInvalidPrice, "invalid price"), nil
		}
		b.nextID++
		o := &broker.OrderView{
			Ticket:     b.nextID,
			Symbol:     req.Symbol,
			Type:       req.Type,
			Volume:     req.Volume,
			Price:      req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			SetupTime:  b.now(req.Symbol),
			Comment:    req.Comment,
			Magic:      req.Magic,
		}
		b.orders[o.Ticket] = o
		b.log.Debug("pending order placed", "ticket", o.Ticket, "symbol", o.Symbol, "type", o.Type, "price", o.Price)
		return broker.Response{Code: broker.CodeDone, Order: o.Ticket, Comment: "placed"}, nil
	default:
		return reject(broker.CodeInvalid, "unsupported action "+string(req.Action)), nil
	}
}

func (b *Broker) openLocked(ctx context.Context, req broker.Request, info market.SymbolInfo) (broker.Response, error) {
	t, err := b.ticks.Get(req.Symbol)
	if err != nil {
		return reject(broker.CodeNoPrices, "no prices"), nil
	}
	price := t.Ask
	if !req.Type.IsBuy() {
		price = t.Bid
	}
	if !stopsValid(req.Type.IsBuy(), price, req.StopLoss, req.TakeProfit) {
		return reject(broker.CodeInvalidStops, "invalid stops"), nil
	}

	margin := b.marginFor(ctx, req.Symbol, req.Volume, price, info)
	if margin > b.acct.FreeMargin {
		return reject(broker.CodeNoMoney, "no money"), nil
	}

	b.nextID++
	p := &position{
		Position: broker.Position{
			Ticket:     b.nextID,
			Symbol:     req.Symbol,
			Type:       req.Type,
			Volume:     req.Volume,
			PriceOpen:  price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			OpenTime:   t.Time,
			Magic:      req.Magic,
			Comment:    req.Comment,
		},
		info: info,
	}
	b.positions[p.Ticket] = p
	b.revalueLocked(ctx)

	vol := req.Volume
	b.log.Debug("position opened", "ticket", p.Ticket, "symbol", p.Symbol, "type", p.Type, "volume", vol, "price", price)
	return broker.Response{
		Code:    broker.CodeDone,
		Order:   p.Ticket,
		Deal:    p.Ticket,
		Volume:  &vol,
		Price:   &price,
		Comment: "done",
	}, nil
}

// closeLocked handles a deal that names a position: an opposite order
// for all or part of its volume.
func (b *Broker) closeLocked(ctx context.Context, req broker.Request) (broker.Response, error) {
	p, ok := b.positions[req.Position]
	if !ok {
		return reject(broker.CodeInvalid, "position not found"), nil
	}
	if req.Type.IsBuy() == p.Type.IsBuy() {
		return reject(broker.CodeInvalid, "close must be opposite side"), nil
	}
	t, err := b.ticks.Get(p.Symbol)
	if err != nil {
		return reject(broker.CodeNoPrices, "no prices"), nil
	}
	price := t.Bid
	if !p.Type.IsBuy() {
		price = t.Ask
	}

	vol := math.Min(req.Volume, p.Volume)
	b.closeVolumeLocked(ctx, p, vol, price, t.Time, "close")
	b.revalueLocked(ctx)

	b.nextID++
	return broker.Response{
		Code:    broker.CodeDone,
		Order:   b.nextID,
		Deal:    b.nextID,
		Volume:  &vol,
		Price:   &price,
		Comment: "closed",
	}, nil
}

func (b *Broker) Modify(ctx context.Context, ticket uint64, m broker.Modification) (broker.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return broker.Response{}, err
	}
	o, ok := b.orders[ticket]
	if !ok {
		return reject(broker.CodeInvalid, "order not found"), nil
	}
	if m.Price <= 0 {
		return reject(broker.CodeInvalidPrice, "invalid price"), nil
	}
	if !stopsValid(o.Type.IsBuy(), m.Price, m.StopLoss, m.TakeProfit) {
		return reject(broker.CodeInvalidStops, "invalid stops"), nil
	}
	o.Price, o.StopLoss, o.TakeProfit = m.Price, m.StopLoss, m.TakeProfit
	return broker.Response{Code: broker.CodeDone, Order: ticket, Comment: "modified"}, nil
}

func (b *Broker) Cancel(ctx context.Context, ticket uint64) (broker.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return broker.Response{}, err
	}
	if _, ok := b.orders[ticket]; !ok {
		return reject(broker.CodeInvalid, "order not found"), nil
	}
	delete(b.orders, ticket)
	return broker.Response{Code: broker.CodeDone, Order: ticket, Comment: "cancelled"}, nil
}

func (b *Broker) Order(ctx context.Context, ticket uint64) (broker.OrderView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return broker.OrderView{}, err
	}
	o, ok := b.orders[ticket]
	if !ok {
		return broker.OrderView{}, fmt.Errorf("order %d: %w", ticket, broker.ErrOrderNotFound)
	}
	return *o, nil
}

func (b *Broker) PendingOrders(ctx context.Context) ([]broker.OrderView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return nil, err
	}
	out := make([]broker.OrderView, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	slices.SortFunc(out, func(a, c broker.OrderView) int { return cmp.Compare(a.Ticket, c.Ticket) })
	return out, nil
}

func (b *Broker) Positions(ctx context.Context) ([]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failedLocked(); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p.Position)
	}
	slices.SortFunc(out, func(a, c broker.Position) int { return cmp.Compare(a.Ticket, c.Ticket) })
	return out, nil
}

// UpdatePrice stores a new tick, triggers pending orders that price has
// reached, closes positions whose stop-loss or take-profit was hit and
// revalues the account.
func (b *Broker) UpdatePrice(ctx context.Context, t market.Tick) {
	b.ticks.Set(t)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range b.sortedOrdersLocked() {
		if o.Symbol != t.Symbol || !triggered(o, t) {
			continue
		}
		delete(b.orders, o.Ticket)
		info := b.symbols[o.Symbol]
		p := &position{
			Position: broker.Position{
				Ticket:     o.Ticket,
				Symbol:     o.Symbol,
				Type:       fillType(o.Type),
				Volume:     o.Volume,
				PriceOpen:  o.Price,
				StopLoss:   o.StopLoss,
				TakeProfit: o.TakeProfit,
				OpenTime:   t.Time,
				Magic:      o.Magic,
				Comment:    o.Comment,
			},
			info: info,
		}
		b.positions[p.Ticket] = p
		b.log.Debug("pending order triggered", "ticket", o.Ticket, "symbol", o.Symbol, "price", o.Price)
	}

	for _, p := range b.sortedPositionsLocked() {
		if p.Symbol != t.Symbol {
			continue
		}
		mark := t.Bid
		if !p.Type.IsBuy() {
			mark = t.Ask
		}
		switch {
		case hitStopLoss(p.Position, mark):
			b.closeVolumeLocked(ctx, p, p.Volume, p.StopLoss, t.Time, "stop_loss")
		case hitTakeProfit(p.Position, mark):
			b.closeVolumeLocked(ctx, p, p.Volume, p.TakeProfit, t.Time, "take_profit")
		}
	}

	b.revalueLocked(ctx)
}

func (b *Broker) closeVolumeLocked(ctx context.Context, p *position, vol, price float64, at time.Time, reason string) {
	pl := b.profitLocked(ctx, p, vol, price)
	b.acct.Balance += pl
	b.closed = append(b.closed, broker.ClosedPosition{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Type:       p.Type,
		Volume:     vol,
		PriceOpen:  p.PriceOpen,
		PriceClose: price,
		OpenTime:   p.OpenTime,
		CloseTime:  at,
		Profit:     pl,
		Reason:     reason,
	})

	p.Volume = market.RoundToStep(p.Volume-vol, p.info.LotStep)
	if p.Volume <= 0 {
		delete(b.positions, p.Ticket)
	}
	b.log.Debug("position closed", "ticket", p.Ticket, "volume", vol, "price", price, "profit", pl, "reason", reason)
}

// profitLocked is the P/L of vol lots of p at price, in account currency.
func (b *Broker) profitLocked(ctx context.Context, p *position, vol, price float64) float64 {
	dir := 1.0
	if !p.Type.IsBuy() {
		dir = -1
	}
	size := p.info.ContractSize
	if size <= 0 {
		size = 1
	}
	plQuote := dir * (price - p.PriceOpen) * vol * size
	rate, err := market.QuoteToAccountRate(ctx, b, p.Symbol, b.acct.Currency)
	if err != nil {
		b.log.Warn("no quote conversion rate, using 1", "symbol", p.Symbol, "err", err)
		rate = 1
	}
	return plQuote * rate
}

func (b *Broker) marginFor(ctx context.Context, symbol string, vol, price float64, info market.SymbolInfo) float64 {
	rate, err := market.QuoteToAccountRate(ctx, b, symbol, b.acct.Currency)
	if err != nil {
		rate = 1
	}
	return vol * info.ContractSize * price * rate / b.leverage
}

func (b *Broker) revalueLocked(ctx context.Context) {
	equity := b.acct.Balance
	var margin float64
	for _, p := range b.positions {
		t, err := b.ticks.Get(p.Symbol)
		if err != nil {
			continue
		}
		mark := t.Bid
		if !p.Type.IsBuy() {
			mark = t.Ask
		}
		p.Profit = b.profitLocked(ctx, p, p.Volume, mark)
		equity += p.Profit
		margin += b.marginFor(ctx, p.Symbol, p.Volume, t.Mid(), p.info)
	}
	b.acct.Equity = equity
	b.acct.Margin = margin
	b.acct.FreeMargin = equity - margin
}

func (b *Broker) sortedOrdersLocked() []*broker.OrderView {
	out := make([]*broker.OrderView, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, c *broker.OrderView) int { return cmp.Compare(a.Ticket, c.Ticket) })
	return out
}

func (b *Broker) sortedPositionsLocked() []*position {
	out := make([]*position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, c *position) int { return cmp.Compare(a.Ticket, c.Ticket) })
	return out
}

func (b *Broker) now(symbol string) time.Time {
	if t, err := b.ticks.Get(symbol); err == nil && !t.Time.IsZero() {
		return t.Time
	}
	return time.Now().UTC()
}

func reject(code int, comment string) broker.Response {
	return broker.Response{Code: code, Comment: comment}
}
