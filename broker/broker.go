// Package broker defines the execution gateway contract the bot trades
// through. Gateways speak MetaTrader semantics: one request shape for
// market and pending orders, numeric result codes, and tickets.
package broker

import (
	"context"
	"errors"
	"time"
)

// Result codes. CodeDone is the broker's canonical "request completed";
// the rest are the rejections the bundled gateways produce.
const (
	CodeDone          = 10009
	CodeInvalid       = 10013
	CodeInvalidVolume = 10014
	CodeInvalidPrice  = 10015
	CodeInvalidStops  = 10016
	CodeNoMoney       = 10019
	CodeNoPrices      = 10021

	// CodeTransport marks a result that never got a broker answer.
	CodeTransport = -1
)

var (
	// ErrTransport wraps any failure to reach the broker or read its answer.
	ErrTransport = errors.New("broker transport failure")
	// ErrOrderNotFound is returned by Order when the ticket is unknown.
	ErrOrderNotFound = errors.New("order not found")
)

type Action string

const (
	ActionDeal    Action = "deal"    // execute at market
	ActionPending Action = "pending" // place a pending order
	ActionModify  Action = "modify"
	ActionRemove  Action = "remove"
)

type OrderType string

const (
	Buy       OrderType = "buy"
	Sell      OrderType = "sell"
	BuyLimit  OrderType = "buy_limit"
	SellLimit OrderType = "sell_limit"
	BuyStop   OrderType = "buy_stop"
	SellStop  OrderType = "sell_stop"
)

// IsPending reports whether orders of this type rest on the book.
func (t OrderType) IsPending() bool {
	switch t {
	case BuyLimit, SellLimit, BuyStop, SellStop:
		return true
	}
	return false
}

// IsBuy reports whether the type opens or adds to a long.
func (t OrderType) IsBuy() bool {
	return t == Buy || t == BuyLimit || t == BuyStop
}

type TimeInForce string

const GTC TimeInForce = "gtc"

type FillPolicy string

const (
	FillFOK    FillPolicy = "fok"
	FillIOC    FillPolicy = "ioc"
	FillReturn FillPolicy = "return"
)

// Request is an order as the gateway receives it. StopLoss and TakeProfit
// use 0 for "none", as brokers do on the wire.
type Request struct {
	Action      Action      `json:"action"`
	Symbol      string      `json:"symbol"`
	Volume      float64     `json:"volume"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price"`
	StopLoss    float64     `json:"sl"`
	TakeProfit  float64     `json:"tp"`
	Deviation   int         `json:"deviation,omitempty"`
	Magic       int64       `json:"magic"`
	Comment     string      `json:"comment"`
	TimeInForce TimeInForce `json:"type_time"`
	Filling     FillPolicy  `json:"type_filling"`
	Position    uint64      `json:"position,omitempty"` // position ticket being closed
}

// Modification carries the complete new levels of a pending order.
type Modification struct {
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Magic      int64   `json:"magic"`
	Comment    string  `json:"comment"`
}

// Response is the broker's answer to a Place, Modify or Cancel. Volume and
// Price are nil when the broker left them out, which is normal for a
// pending order that has not triggered.
type Response struct {
	Code    int      `json:"retcode"`
	Order   uint64   `json:"order"`
	Deal    uint64   `json:"deal"`
	Volume  *float64 `json:"volume,omitempty"`
	Price   *float64 `json:"price,omitempty"`
	Comment string   `json:"comment"`
}

// OrderView is a pending order as listed by the broker.
type OrderView struct {
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Type       OrderType `json:"type"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"sl"`
	TakeProfit float64   `json:"tp"`
	SetupTime  time.Time `json:"time_setup"`
	Comment    string    `json:"comment"`
	Magic      int64     `json:"magic"`
}

type Account struct {
	Login      string  `json:"login"`
	Currency   string  `json:"currency"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
}

// Gateway executes orders. Every call can fail; a failure to talk to the
// broker wraps ErrTransport so it is never confused with an empty answer.
type Gateway interface {
	Account(ctx context.Context) (Account, error)
	Place(ctx context.Context, req Request) (Response, error)
	Modify(ctx context.Context, ticket uint64, m Modification) (Response, error)
	Cancel(ctx context.Context, ticket uint64) (Response, error)
	Order(ctx context.Context, ticket uint64) (OrderView, error)
	PendingOrders(ctx context.Context) ([]OrderView, error)
}

// Position is an open market exposure.
type Position struct {
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Type       OrderType `json:"type"` // Buy or Sell
	Volume     float64   `json:"volume"`
	PriceOpen  float64   `json:"price_open"`
	StopLoss   float64   `json:"sl"`
	TakeProfit float64   `json:"tp"`
	Profit     float64   `json:"profit"`
	OpenTime   time.Time `json:"time"`
	Magic      int64     `json:"magic"`
	Comment    string    `json:"comment"`
}

// PositionLister is implemented by gateways that can report open
// positions. The engine uses it to notice positions closed broker side.
type PositionLister interface {
	Positions(ctx context.Context) ([]Position, error)
}

// ClosedPosition is all or part of a position the broker has closed, with
// the realized P/L in account currency.
type ClosedPosition struct {
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Type       OrderType `json:"type"`
	Volume     float64   `json:"volume"`
	PriceOpen  float64   `json:"price_open"`
	PriceClose float64   `json:"price_close"`
	OpenTime   time.Time `json:"time"`
	CloseTime  time.Time `json:"time_close"`
	Profit     float64   `json:"profit"`
	Reason     string    `json:"reason"`
}

// HistoryLister is implemented by gateways that report how a position was
// closed. A position closed in several parts yields several entries.
type HistoryLister interface {
	ClosedPositions(ctx context.Context, ticket uint64) ([]ClosedPosition, error)
}
