package engine

import (
	"context"
	"fmt"

	"github.com/rustyeddy/tradebot/alert"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/pkg/id"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

// enter turns an entry signal into a market order if the limiter allows
// it. Every refusal and failure is journaled and alerted.
func (e *Engine) enter(ctx context.Context, cycleID string, sig strategy.Signal) SymbolReport {
	sym := sig.Symbol
	log := e.log.With("cycle", cycleID, "symbol", sym, "side", string(sig.Side))
	rec := journal.OrderRecord{
		CycleID:    cycleID,
		Symbol:     sym,
		Side:       string(sig.Side),
		Kind:       string(order.Market),
		Price:      sig.Price,
		TakeProfit: sig.TakeProfit,
	}

	info, err := e.deps.Market.SymbolInfo(ctx, sym)
	if err != nil {
		log.Warn("symbol info unavailable", "err", err)
		return e.failed(ctx, rec, fmt.Sprintf("symbol info: %v", err))
	}

	// Stop distance from the signal's stop, else the configured default.
	stopLoss := sig.StopLoss
	var stopPips float64
	if stopLoss != nil {
		stopPips = risk.StopDistancePips(info, sig.Price, *stopLoss)
	} else if pips := e.stopPipsFor(sym); pips > 0 {
		stopPips = pips
		sl := risk.StopPrice(info, sig.Price, pips, sig.Side == order.Buy)
		stopLoss = &sl
	}
	if stopLoss != nil && *stopLoss <= 0 {
		stopLoss = nil
		stopPips = 0
	}
	rec.StopLoss = stopLoss
	pipValue := risk.PipValuePerLot(info)

	e.admit.Lock()
	defer e.admit.Unlock()

	if ok, reason := e.deps.Limiter.CanOpenTrade(stopPips, pipValue); !ok {
		log.Info("trade refused", "reason", string(reason), "stop_pips", stopPips, "pip_value", pipValue)
		return e.refused(ctx, rec, string(reason))
	}

	lots := market.FloorToStep(e.deps.Limiter.ComputePositionSize(stopPips, pipValue), info.LotStep)
	lots, err = market.CheckLots(lots, info)
	if err != nil {
		log.Info("trade refused", "reason", "lots_out_of_bounds", "err", err)
		return e.refused(ctx, rec, "lots_out_of_bounds")
	}
	rec.Lots = lots

	riskAmount, err := e.deps.Limiter.RiskAmount()
	if err != nil {
		// CanOpenTrade already proved equity is known.
		panic(err)
	}

	res, err := e.place(ctx, order.Intent{
		Symbol:     sym,
		Side:       sig.Side,
		Kind:       order.Market,
		Volume:     lots,
		Unit:       market.Lots,
		StopLoss:   stopLoss,
		TakeProfit: sig.TakeProfit,
	})
	if err != nil {
		log.Error("order rejected before submission", "err", err)
		return e.failed(ctx, rec, err.Error())
	}
	rec.ResultCode = res.ResultCode
	rec.Ticket = res.Ticket
	if !res.Success {
		return e.failed(ctx, rec, res.Comment)
	}

	if e.opts.ReserveFromFill {
		riskAmount = res.FilledVolume * stopPips * pipValue
	}

	entry := res.FilledPrice
	if entry <= 0 {
		entry = sig.Price
	}

	// A success without a ticket cannot be closed or reconciled. Its
	// reservation is kept under a fresh key for the life of the process so
	// it still counts against the open-trade cap.
	key := riskID(res.Ticket)
	if res.Ticket == 0 {
		key = id.New()
	}
	e.deps.Limiter.RegisterNewTrade(key, riskAmount)
	if res.Ticket == 0 {
		log.Warn("order placed without a ticket, position not tracked", "risk_id", key)
		e.notify(ctx, alert.Risk(sym, "order placed without a ticket; manage it on the terminal"))
	} else {
		e.track(&tracked{
			Position: strategy.Position{
				Ticket:     res.Ticket,
				Symbol:     sym,
				Side:       sig.Side,
				EntryPrice: entry,
				Lots:       res.FilledVolume,
				StopLoss:   stopLoss,
				TakeProfit: sig.TakeProfit,
				OpenTime:   e.now(),
			},
			riskID:  key,
			cycleID: cycleID,
			info:    info,
		})
	}

	rec.Status = journal.StatusPlaced
	rec.FilledLots = res.FilledVolume
	rec.Price = entry
	rec.RiskAmount = riskAmount
	rec.Reason = res.Comment
	e.recordOrder(ctx, rec)
	e.notify(ctx, alert.OrderUpdate(sym, res.Ticket, "placed"))

	log.Info("trade placed", "ticket", res.Ticket, "lots", res.FilledVolume, "price", entry, "risk", riskAmount)
	return SymbolReport{Symbol: sym, Outcome: Placed, Ticket: res.Ticket, Lots: res.FilledVolume}
}

// place submits in on a context that survives cancellation of the cycle
// but is bounded by the order timeout.
func (e *Engine) place(ctx context.Context, in order.Intent) (order.Result, error) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.OrderTimeout)
	defer cancel()
	return e.deps.Orders.Place(octx, in)
}

func (e *Engine) refused(ctx context.Context, rec journal.OrderRecord, reason string) SymbolReport {
	rec.Status = journal.StatusRefused
	rec.Reason = reason
	e.recordOrder(ctx, rec)
	e.notify(ctx, alert.Risk(rec.Symbol, fmt.Sprintf("%s %s refused: %s", rec.Side, rec.Symbol, reason)))
	return SymbolReport{Symbol: rec.Symbol, Outcome: Refused, Reason: reason}
}

func (e *Engine) failed(ctx context.Context, rec journal.OrderRecord, reason string) SymbolReport {
	rec.Status = journal.StatusFailed
	rec.Reason = reason
	e.recordOrder(ctx, rec)
	msg := alert.Error(fmt.Sprintf("%s %s failed: %s", rec.Side, rec.Symbol, reason))
	msg.Symbol = rec.Symbol
	e.notify(ctx, msg)
	return SymbolReport{Symbol: rec.Symbol, Outcome: Failed, Reason: reason, Ticket: rec.Ticket}
}

func (e *Engine) recordOrder(ctx context.Context, rec journal.OrderRecord) {
	if rec.Time.IsZero() {
		rec.Time = e.now()
	}
	// An order row is written even when the cycle was cancelled meanwhile.
	e.journalErr(ctx, "orders", e.deps.Journal.RecordOrder(context.WithoutCancel(ctx), rec))
}
