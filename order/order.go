// Package order turns an abstract trade intent into a broker request and
// the broker's answer into a uniform Result.
package order

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

var (
	ErrInvalidOrderSpec       = errors.New("invalid order spec")
	ErrPriceRequired          = errors.New("price required for limit/stop orders")
	ErrVolumeConversionFailed = errors.New("volume conversion failed")
	ErrOrderNotFound          = errors.New("order not found")
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite is the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Kind string

const (
	Market Kind = "market"
	Limit  Kind = "limit"
	Stop   Kind = "stop"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("%w: side %q", ErrInvalidOrderSpec, s)
}

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Market:
		return Market, nil
	case Limit:
		return Limit, nil
	case Stop:
		return Stop, nil
	}
	return "", fmt.Errorf("%w: kind %q", ErrInvalidOrderSpec, s)
}

// Intent is what the caller wants traded. Nil Price, StopLoss and
// TakeProfit mean "not given"; an explicit zero is rejected.
type Intent struct {
	Symbol     string
	Side       Side
	Kind       Kind
	Volume     float64
	Unit       market.VolumeUnit
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64

	// ClosePosition, when set on a market order, closes that position
	// instead of opening a new one.
	ClosePosition uint64
}

// Levels are the price, stop-loss and take-profit of an order. Zero means
// the level is not set.
type Levels struct {
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// Result is the normalized outcome of one Place, Modify or Cancel call.
type Result struct {
	Success      bool
	Ticket       uint64
	FilledVolume float64
	FilledPrice  float64
	Comment      string
	ResultCode   int
	Action       string // side and kind, e.g. "buy limit", for audit

	// Old and New are set by Modify.
	Old *Levels
	New *Levels
}

// Order is one of MarketOrder, LimitOrder or StopOrder. Each carries only
// the fields valid for its kind.
type Order interface {
	request() broker.Request
	action() string
}

type MarketOrder struct {
	Symbol     string
	Side       Side
	Volume     float64
	StopLoss   *float64
	TakeProfit *float64
	Position   uint64
}

type LimitOrder struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
}

type StopOrder struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
}

func (o MarketOrder) request() broker.Request {
	typ := broker.Buy
	if o.Side == Sell {
		typ = broker.Sell
	}
	return broker.Request{
		Action:      broker.ActionDeal,
		Symbol:      o.Symbol,
		Volume:      o.Volume,
		Type:        typ,
		StopLoss:    level(o.StopLoss),
		TakeProfit:  level(o.TakeProfit),
		TimeInForce: broker.GTC,
		Filling:     broker.FillFOK,
		Position:    o.Position,
	}
}

func (o MarketOrder) action() string { return string(o.Side) + " " + string(Market) }

func (o LimitOrder) request() broker.Request {
	typ := broker.BuyLimit
	if o.Side == Sell {
		typ = broker.SellLimit
	}
	return pending(o.Symbol, typ, o.Volume, o.Price, o.StopLoss, o.TakeProfit)
}

func (o LimitOrder) action() string { return string(o.Side) + " " + string(Limit) }

func (o StopOrder) request() broker.Request {
	typ := broker.BuyStop
	if o.Side == Sell {
		typ = broker.SellStop
	}
	return pending(o.Symbol, typ, o.Volume, o.Price, o.StopLoss, o.TakeProfit)
}

func (o StopOrder) action() string { return string(o.Side) + " " + string(Stop) }

func pending(symbol string, typ broker.OrderType, vol, price float64, sl, tp *float64) broker.Request {
	return broker.Request{
		Action:      broker.ActionPending,
		Symbol:      symbol,
		Volume:      vol,
		Type:        typ,
		Price:       price,
		StopLoss:    level(sl),
		TakeProfit:  level(tp),
		TimeInForce: broker.GTC,
		Filling:     broker.FillIOC,
	}
}

func level(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Build validates an intent whose volume is already in lots and returns
// the matching order kind.
func Build(in Intent) (Order, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if !positive(in.Volume) {
		return nil, fmt.Errorf("%w: volume %v", ErrInvalidOrderSpec, in.Volume)
	}

	switch in.Kind {
	case Limit:
		return LimitOrder{in.Symbol, in.Side, in.Volume, *in.Price, in.StopLoss, in.TakeProfit}, nil
	case Stop:
		return StopOrder{in.Symbol, in.Side, in.Volume, *in.Price, in.StopLoss, in.TakeProfit}, nil
	default:
		return MarketOrder{in.Symbol, in.Side, in.Volume, in.StopLoss, in.TakeProfit, in.ClosePosition}, nil
	}
}

// check validates everything except the volume, which may still need
// converting into lots.
func (in Intent) check() error {
	if in.Side != Buy && in.Side != Sell {
		return fmt.Errorf("%w: side/kind %q/%q", ErrInvalidOrderSpec, in.Side, in.Kind)
	}
	if in.Kind != Market && in.Kind != Limit && in.Kind != Stop {
		return fmt.Errorf("%w: side/kind %q/%q", ErrInvalidOrderSpec, in.Side, in.Kind)
	}
	if in.Kind != Market && in.Price == nil {
		return ErrPriceRequired
	}
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidOrderSpec)
	}
	if in.Kind != Market && !positive(*in.Price) {
		return fmt.Errorf("%w: price %v", ErrInvalidOrderSpec, *in.Price)
	}
	if in.StopLoss != nil && !positive(*in.StopLoss) {
		return fmt.Errorf("%w: stop loss %v (omit it for no stop)", ErrInvalidOrderSpec, *in.StopLoss)
	}
	if in.TakeProfit != nil && !positive(*in.TakeProfit) {
		return fmt.Errorf("%w: take profit %v (omit it for no target)", ErrInvalidOrderSpec, *in.TakeProfit)
	}
	if in.ClosePosition != 0 && in.Kind != Market {
		return fmt.Errorf("%w: positions close at market", ErrInvalidOrderSpec)
	}
	return nil
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}
