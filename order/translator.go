package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// Options are the broker request fields that do not come from the intent.
type Options struct {
	Deviation int           // max slippage in points for market orders
	Magic     int64         // expert id stamped on every order
	Comment   string        // prefix for order comments
	Timeout   time.Duration // bound on each gateway call
}

func DefaultOptions() Options {
	return Options{
		Deviation: 10,
		Magic:     234567,
		Comment:   "[TradingBot]",
		Timeout:   10 * time.Second,
	}
}

// Translator validates intents, converts volumes, calls the gateway exactly
// once per operation and normalizes the answer. It never retries.
type Translator struct {
	gw   broker.Gateway
	md   market.Provider
	opts Options
	log  *slog.Logger
}

// NewTranslator wires a translator. md is only consulted for intents whose
// volume is not already in lots and may be nil otherwise.
func NewTranslator(gw broker.Gateway, md market.Provider, opts Options, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Translator{gw: gw, md: md, opts: opts, log: log.With("component", "order")}
}

// Place submits an intent. Validation and conversion problems are returned
// as errors before the gateway is contacted. Once the gateway is called the
// outcome is always a Result; a transport failure yields Success=false
// with ResultCode -1.
func (t *Translator) Place(ctx context.Context, in Intent) (Result, error) {
	if err := in.check(); err != nil {
		return Result{}, fmt.Errorf("place: %w", err)
	}

	if !in.Unit.IsLots() {
		lots, err := t.toLots(ctx, in)
		if err != nil {
			return Result{}, fmt.Errorf("place %s: %w: %w", in.Symbol, ErrVolumeConversionFailed, err)
		}
		in.Volume = lots
		in.Unit = market.Lots
	}

	o, err := Build(in)
	if err != nil {
		return Result{}, fmt.Errorf("place: %w", err)
	}

	req := o.request()
	req.Magic = t.opts.Magic
	req.Comment = fmt.Sprintf("%s %s", t.opts.Comment, o.action())
	if req.Action == broker.ActionDeal {
		req.Deviation = t.opts.Deviation
	}

	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	resp, err := t.gw.Place(callCtx, req)
	if err != nil {
		t.log.Error("place failed", "symbol", req.Symbol, "action", o.action(), "err", err)
		return transportResult(o.action(), err), nil
	}

	res := Result{
		Success:      resp.Code == broker.CodeDone,
		Ticket:       ticket(resp, 0),
		FilledVolume: orDefault(resp.Volume, req.Volume),
		FilledPrice:  orDefault(resp.Price, req.Price),
		Comment:      resp.Comment,
		ResultCode:   resp.Code,
		Action:       o.action(),
	}
	if res.Success {
		t.log.Info("place ok", "symbol", req.Symbol, "action", res.Action, "ticket", res.Ticket,
			"volume", res.FilledVolume, "price", res.FilledPrice)
	} else {
		t.log.Warn("place rejected", "symbol", req.Symbol, "action", res.Action,
			"retcode", res.ResultCode, "comment", res.Comment)
	}
	return res, nil
}

func (t *Translator) toLots(ctx context.Context, in Intent) (float64, error) {
	if t.md == nil {
		return 0, errors.New("no market data provider")
	}
	info, err := t.md.SymbolInfo(ctx, in.Symbol)
	if err != nil {
		return 0, err
	}
	return market.ToLots(ctx, t.md, in.Volume, in.Unit, info)
}

// Changes lists the levels to move on a pending order. Nil keeps the
// current value.
type Changes struct {
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
}

// Modify moves a pending order's price, stop-loss or take-profit. The
// order's current levels are read first so the result can report both.
func (t *Translator) Modify(ctx context.Context, ticketID uint64, ch Changes) (Result, error) {
	if ch.Price == nil && ch.StopLoss == nil && ch.TakeProfit == nil {
		return Result{}, fmt.Errorf("modify %d: %w: nothing to change", ticketID, ErrInvalidOrderSpec)
	}
	for _, p := range []*float64{ch.Price, ch.StopLoss, ch.TakeProfit} {
		if p != nil && !positive(*p) {
			return Result{}, fmt.Errorf("modify %d: %w: level %v", ticketID, ErrInvalidOrderSpec, *p)
		}
	}

	cur, res, err := t.lookup(ctx, ticketID, "modify")
	if err != nil || !res.Success {
		return res, err
	}

	old := Levels{Price: cur.Price, StopLoss: cur.StopLoss, TakeProfit: cur.TakeProfit}
	next := Levels{
		Price:      orDefault(ch.Price, old.Price),
		StopLoss:   orDefault(ch.StopLoss, old.StopLoss),
		TakeProfit: orDefault(ch.TakeProfit, old.TakeProfit),
	}

	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	resp, err := t.gw.Modify(callCtx, ticketID, broker.Modification{
		Price:      next.Price,
		StopLoss:   next.StopLoss,
		TakeProfit: next.TakeProfit,
		Magic:      t.opts.Magic,
		Comment:    t.opts.Comment + " modified",
	})
	if err != nil {
		t.log.Error("modify failed", "ticket", ticketID, "err", err)
		res := transportResult("modify", err)
		res.Old = &old
		return res, nil
	}

	res = Result{
		Success:    resp.Code == broker.CodeDone,
		Ticket:     ticket(resp, ticketID),
		Comment:    resp.Comment,
		ResultCode: resp.Code,
		Action:     "modify",
		Old:        &old,
		New:        &next,
	}
	if res.Success {
		t.log.Info("modify ok", "ticket", ticketID,
			"price", fmt.Sprintf("%.5f->%.5f", old.Price, next.Price),
			"sl", fmt.Sprintf("%.5f->%.5f", old.StopLoss, next.StopLoss),
			"tp", fmt.Sprintf("%.5f->%.5f", old.TakeProfit, next.TakeProfit))
	} else {
		t.log.Warn("modify rejected", "ticket", ticketID, "retcode", res.ResultCode, "comment", res.Comment)
	}
	return res, nil
}

// Cancel removes a pending order.
func (t *Translator) Cancel(ctx context.Context, ticketID uint64) (Result, error) {
	_, res, err := t.lookup(ctx, ticketID, "cancel")
	if err != nil || !res.Success {
		return res, err
	}

	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	resp, err := t.gw.Cancel(callCtx, ticketID)
	if err != nil {
		t.log.Error("cancel failed", "ticket", ticketID, "err", err)
		return transportResult("cancel", err), nil
	}

	res = Result{
		Success:    resp.Code == broker.CodeDone,
		Ticket:     ticket(resp, ticketID),
		Comment:    resp.Comment,
		ResultCode: resp.Code,
		Action:     "cancel",
	}
	if res.Success {
		t.log.Info("cancel ok", "ticket", ticketID)
	} else {
		t.log.Warn("cancel rejected", "ticket", ticketID, "retcode", res.ResultCode, "comment", res.Comment)
	}
	return res, nil
}

// PendingOrders lists the broker's resting orders.
func (t *Translator) PendingOrders(ctx context.Context) ([]broker.OrderView, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()
	return t.gw.PendingOrders(callCtx)
}

// lookup fetches the target of a modify or cancel. A missing order is an
// error; a transport failure is a failed Result. On success the returned
// Result has Success set and is only a go-ahead.
func (t *Translator) lookup(ctx context.Context, ticketID uint64, action string) (broker.OrderView, Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	cur, err := t.gw.Order(callCtx, ticketID)
	switch {
	case errors.Is(err, broker.ErrOrderNotFound):
		t.log.Error(action+" target not found", "ticket", ticketID)
		return cur, Result{}, fmt.Errorf("%s %d: %w", action, ticketID, ErrOrderNotFound)
	case err != nil:
		t.log.Error(action+" lookup failed", "ticket", ticketID, "err", err)
		return cur, transportResult(action, err), nil
	}
	return cur, Result{Success: true}, nil
}

func transportResult(action string, err error) Result {
	return Result{
		Success:    false,
		ResultCode: broker.CodeTransport,
		Comment:    err.Error(),
		Action:     action,
	}
}

// ticket prefers the order id: pending orders have no deal yet.
func ticket(resp broker.Response, fallback uint64) uint64 {
	if resp.Order != 0 {
		return resp.Order
	}
	if resp.Deal != 0 {
		return resp.Deal
	}
	return fallback
}

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
