// Package strategy turns recent bars into entry and exit signals. A
// strategy only proposes trades; sizing, risk checks and execution happen
// in the engine.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
)

// Signal proposes opening a position. StopLoss and TakeProfit are nil when
// the strategy has no opinion.
type Signal struct {
	Symbol     string
	Side       order.Side
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
	Confidence float64 // 0..1
	Metadata   map[string]any
}

type ExitAction string

const (
	Close   ExitAction = "close"
	Partial ExitAction = "partial"
)

// ExitSignal proposes closing all (Close) or Lots of (Partial) an open
// position.
type ExitSignal struct {
	Symbol   string
	Action   ExitAction
	Reason   string
	Lots     *float64
	Metadata map[string]any
}

// Position is an open trade as the engine tracks it.
type Position struct {
	Ticket     uint64
	Symbol     string
	Side       order.Side
	EntryPrice float64
	Lots       float64
	StopLoss   *float64
	TakeProfit *float64
	OpenTime   time.Time
}

// Strategy is called once per symbol per cycle with the latest bars,
// oldest first. Implementations must be safe for concurrent use across
// symbols.
type Strategy interface {
	Name() string
	Entry(symbol string, bars []market.Bar) (Signal, bool)
	Exit(symbol string, bars []market.Bar, pos Position) (ExitSignal, bool)
}

// Monitor is implemented by strategies that report their latest indicator
// values.
type Monitor interface {
	Status() map[string]any
}

// Params configures the bundled strategies. Zero values take defaults.
type Params struct {
	Fast          int     // fast EMA period
	Slow          int     // slow EMA period
	RR            float64 // take-profit distance as a multiple of the stop distance
	SwingLookback int     // bars searched for the swing low/high used as stop
	ATRPeriod     int
}

func (p Params) withDefaults() Params {
	if p.Fast <= 0 {
		p.Fast = 20
	}
	if p.Slow <= 0 {
		p.Slow = 50
	}
	if p.RR <= 0 {
		p.RR = 2
	}
	if p.SwingLookback <= 0 {
		p.SwingLookback = 10
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}
	return p
}

var ErrUnknownStrategy = errors.New("unknown strategy")

type factory func(Params) (Strategy, error)

var (
	regMu    sync.RWMutex
	registry = map[string]factory{
		"noop":      func(Params) (Strategy, error) { return Noop{}, nil },
		"ema_cross": func(p Params) (Strategy, error) { return NewEMACross(p) },
	}
)

// Register adds a named strategy constructor.
func Register(name string, f func(Params) (Strategy, error)) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// New builds the strategy registered under name.
func New(name string, p Params) (Strategy, error) {
	regMu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	return f(p)
}

// Names lists the registered strategies, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
