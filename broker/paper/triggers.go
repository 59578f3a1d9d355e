package paper

import (
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// triggered reports whether tick t reaches pending order o. Buys fill on
// the ask, sells on the bid.
func triggered(o *broker.OrderView, t market.Tick) bool {
	switch o.Type {
	case broker.BuyLimit:
		return t.Ask <= o.Price
	case broker.SellLimit:
		return t.Bid >= o.Price
	case broker.BuyStop:
		return t.Ask >= o.Price
	case broker.SellStop:
		return t.Bid <= o.Price
	}
	return false
}

func fillType(t broker.OrderType) broker.OrderType {
	if t.IsBuy() {
		return broker.Buy
	}
	return broker.Sell
}

// Longs are marked on the bid, shorts on the ask.
func hitStopLoss(p broker.Position, mark float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Type.IsBuy() {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}

func hitTakeProfit(p broker.Position, mark float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Type.IsBuy() {
		return mark >= p.TakeProfit
	}
	return mark <= p.TakeProfit
}

// stopsValid checks that stop-loss and take-profit, when set, sit on the
// losing and winning side of price.
func stopsValid(long bool, price, sl, tp float64) bool {
	if long {
		return (sl == 0 || sl < price) && (tp == 0 || tp > price)
	}
	return (sl == 0 || sl > price) && (tp == 0 || tp < price)
}
