package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/tradebot/alert"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/strategy"
)

const closedByBroker = "closed_by_broker"

// checkExits asks the strategy whether any tracked position on sym should
// be closed and closes it at market. It reports the last exit made.
func (e *Engine) checkExits(ctx context.Context, cycleID, sym string, bars []market.Bar) (SymbolReport, bool) {
	var (
		rep    SymbolReport
		exited bool
	)
	for _, p := range e.trackedFor(sym) {
		if ctx.Err() != nil {
			break
		}
		ex, ok := e.deps.Strategy.Exit(sym, bars, p.Position)
		if !ok {
			continue
		}
		rep, exited = e.exit(ctx, cycleID, p, ex, bars[len(bars)-1].Close), true
	}
	return rep, exited
}

func (e *Engine) exit(ctx context.Context, cycleID string, p *tracked, ex strategy.ExitSignal, last float64) SymbolReport {
	log := e.log.With("cycle", cycleID, "symbol", p.Symbol, "ticket", p.Ticket)

	lots := p.Lots
	if ex.Action == strategy.Partial && ex.Lots != nil && *ex.Lots < lots {
		lots = market.FloorToStep(*ex.Lots, p.info.LotStep)
	}
	rec := journal.OrderRecord{
		CycleID: cycleID,
		Symbol:  p.Symbol,
		Side:    string(p.Side.Opposite()),
		Kind:    string(order.Market),
		Lots:    lots,
		Price:   last,
		Ticket:  p.Ticket,
	}
	if lots <= 0 {
		return e.failed(ctx, rec, "exit volume rounds to zero")
	}

	res, err := e.place(ctx, order.Intent{
		Symbol:        p.Symbol,
		Side:          p.Side.Opposite(),
		Kind:          order.Market,
		Volume:        lots,
		Unit:          market.Lots,
		ClosePosition: p.Ticket,
	})
	if err != nil {
		return e.failed(ctx, rec, err.Error())
	}
	rec.ResultCode = res.ResultCode
	if !res.Success {
		return e.failed(ctx, rec, res.Comment)
	}

	price := res.FilledPrice
	if price <= 0 {
		price = last
	}
	pnl := realizedPnL(p.info, p.Side, p.EntryPrice, price, res.FilledVolume)
	full := res.FilledVolume >= p.Lots-1e-9
	e.closed(ctx, p, res.FilledVolume, price, pnl, ex.Reason, full)

	rec.Status = journal.StatusClosed
	rec.FilledLots = res.FilledVolume
	rec.Price = price
	rec.Reason = ex.Reason
	e.recordOrder(ctx, rec)

	log.Info("position exited", "reason", ex.Reason, "lots", res.FilledVolume, "price", price, "pnl", pnl, "full", full)
	return SymbolReport{Symbol: p.Symbol, Outcome: Exited, Reason: ex.Reason, Ticket: p.Ticket, Lots: res.FilledVolume}
}

// closed books a full or partial close: the trade row, the alert and,
// for a full close, the limiter release.
func (e *Engine) closed(ctx context.Context, p *tracked, lots, price, pnl float64, reason string, full bool) {
	if full {
		e.deps.Limiter.RegisterClose(p.riskID, pnl)
		e.untrack(p.Ticket)
	} else {
		e.mu.Lock()
		p.Lots = market.RoundToStep(p.Lots-lots, p.info.LotStep)
		e.mu.Unlock()
	}

	e.journalErr(ctx, "trades", e.deps.Journal.RecordTrade(context.WithoutCancel(ctx), journal.TradeRecord{
		TradeID:    riskID(p.Ticket),
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		Lots:       lots,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		OpenTime:   p.OpenTime,
		CloseTime:  e.now(),
		RealizedPL: pnl,
		Reason:     reason,
	}))
	e.notify(ctx, alert.TradeClosed(p.Symbol, p.Ticket, reason, pnl))
}

// reconcile compares tracked positions with the broker's open positions.
// Positions the broker closed on its own, by stop-loss or take-profit for
// example, are released from the limiter. It needs a gateway that lists
// positions; otherwise it does nothing.
func (e *Engine) reconcile(ctx context.Context, cycleID string) []uint64 {
	lister, ok := e.deps.Gateway.(broker.PositionLister)
	if !ok {
		return nil
	}
	e.mu.Lock()
	mine := make([]*tracked, 0, len(e.positions))
	for _, p := range e.positions {
		mine = append(mine, p)
	}
	e.mu.Unlock()
	if len(mine) == 0 {
		return nil
	}

	open, err := lister.Positions(ctx)
	if err != nil {
		e.log.Warn("positions unavailable, reconcile skipped", "cycle", cycleID, "err", err)
		return nil
	}
	byTicket := make(map[uint64]broker.Position, len(open))
	for _, bp := range open {
		byTicket[bp.Ticket] = bp
	}

	var gone []uint64
	for _, p := range mine {
		if bp, ok := byTicket[p.Ticket]; ok {
			e.mu.Lock()
			p.lastPnL = bp.Profit
			if bp.Volume > 0 && bp.Volume < p.Lots {
				p.Lots = bp.Volume
			}
			e.mu.Unlock()
			continue
		}
		lots, price, pnl, reason := e.brokerClose(ctx, p)
		e.closed(ctx, p, lots, price, pnl, reason, true)
		e.log.Info("position closed by broker", "cycle", cycleID, "ticket", p.Ticket, "symbol", p.Symbol,
			"reason", reason, "pnl", pnl)
		gone = append(gone, p.Ticket)
	}
	return gone
}

// brokerClose looks up how the broker closed p. Without history the last
// seen floating P/L stands in for the realized result.
func (e *Engine) brokerClose(ctx context.Context, p *tracked) (lots, price, pnl float64, reason string) {
	lots, pnl, reason = p.Lots, p.lastPnL, closedByBroker
	h, ok := e.deps.Gateway.(broker.HistoryLister)
	if !ok {
		return lots, 0, pnl, reason
	}
	closes, err := h.ClosedPositions(ctx, p.Ticket)
	if err != nil || len(closes) == 0 {
		if err != nil {
			e.log.Warn("close history unavailable", "ticket", p.Ticket, "err", err)
		}
		return lots, 0, pnl, reason
	}

	// Partial closes the engine already booked are in the history too;
	// only the final one is new.
	c := closes[len(closes)-1]
	reason = c.Reason
	if reason == "" {
		reason = closedByBroker
	}
	return c.Volume, c.PriceClose, c.Profit, reason
}

// realizedPnL values a close in account currency from the symbol's tick
// value. Without tick metadata it falls back to the quote-currency amount.
func realizedPnL(info market.SymbolInfo, side order.Side, entry, exit, lots float64) float64 {
	dir := 1.0
	if side == order.Sell {
		dir = -1
	}
	move := (exit - entry) * dir
	if info.TickSize > 0 && info.TickValue > 0 {
		return round2(move / info.TickSize * info.TickValue * lots)
	}
	return round2(move * info.ContractSize * lots)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func (r SymbolReport) String() string {
	if r.Reason == "" {
		return fmt.Sprintf("%s: %s", r.Symbol, r.Outcome)
	}
	return fmt.Sprintf("%s: %s (%s)", r.Symbol, r.Outcome, r.Reason)
}
