package strategy

import (
	"fmt"
	"maps"
	"math"
	"sync"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
)

// EMACross buys when the fast EMA of closes crosses above the slow EMA on
// the latest bar and sells on the opposite cross. Only the cross itself
// fires, not every bar while the averages stay crossed.
//
// The stop goes behind the recent swing low (long) or high (short) and the
// target at RR times the stop distance. Open positions are closed when the
// averages cross against them.
type EMACross struct {
	p    Params
	name string

	mu     sync.Mutex
	status map[string]map[string]any // symbol -> last values
}

func NewEMACross(p Params) (*EMACross, error) {
	p = p.withDefaults()
	if p.Fast >= p.Slow {
		return nil, fmt.Errorf("ema_cross: fast period %d must be below slow period %d", p.Fast, p.Slow)
	}
	return &EMACross{
		p:      p,
		name:   fmt.Sprintf("EMA_CROSS(%d,%d)", p.Fast, p.Slow),
		status: make(map[string]map[string]any),
	}, nil
}

func (x *EMACross) Name() string { return x.name }

// cross reports +1 for a cross up on the last bar, -1 for a cross down and
// 0 otherwise, along with the last fast and slow values.
func (x *EMACross) cross(bars []market.Bar) (dir int, fast, slow float64, ok bool) {
	if len(bars) < x.p.Slow+1 {
		return 0, 0, 0, false
	}
	closes := market.Closes(bars)
	f := EMA(closes, x.p.Fast)
	s := EMA(closes, x.p.Slow)
	n := len(closes) - 1

	prev := f[n-1] - s[n-1]
	cur := f[n] - s[n]
	switch {
	case prev <= 0 && cur > 0:
		dir = 1
	case prev >= 0 && cur < 0:
		dir = -1
	}
	return dir, f[n], s[n], true
}

func (x *EMACross) Entry(symbol string, bars []market.Bar) (Signal, bool) {
	dir, fast, slow, ok := x.cross(bars)
	if !ok {
		x.record(symbol, map[string]any{"state": "warming up", "bars": len(bars)})
		return Signal{}, false
	}
	x.record(symbol, map[string]any{"fast": fast, "slow": slow, "cross": dir})
	if dir == 0 {
		return Signal{}, false
	}

	last := bars[len(bars)-1]
	price := last.Close
	sig := Signal{
		Symbol: symbol,
		Side:   order.Buy,
		Price:  price,
		Metadata: map[string]any{
			"strategy": x.name,
			"fast":     fast,
			"slow":     slow,
		},
	}

	// Exclude the signal bar from the swing search so the stop is not the
	// bar's own extreme.
	swing := bars[:len(bars)-1]
	var stop float64
	if dir > 0 {
		stop = SwingLow(swing, x.p.SwingLookback)
	} else {
		sig.Side = order.Sell
		stop = SwingHigh(swing, x.p.SwingLookback)
	}

	if dist := math.Abs(price - stop); !math.IsInf(stop, 0) && dist > 0 && (stop < price) == (dir > 0) {
		tp := price + float64(dir)*x.p.RR*dist
		sig.StopLoss = &stop
		if tp > 0 {
			sig.TakeProfit = &tp
		}
	}

	sig.Confidence = 0.5
	if atr, ok := ATR(bars, x.p.ATRPeriod); ok && atr > 0 {
		sig.Confidence = math.Min(1, math.Abs(fast-slow)/atr)
		sig.Metadata["atr"] = atr
	}
	return sig, true
}

func (x *EMACross) Exit(symbol string, bars []market.Bar, pos Position) (ExitSignal, bool) {
	dir, fast, slow, ok := x.cross(bars)
	if !ok || dir == 0 {
		return ExitSignal{}, false
	}
	against := (pos.Side == order.Buy && dir < 0) || (pos.Side == order.Sell && dir > 0)
	if !against {
		return ExitSignal{}, false
	}
	return ExitSignal{
		Symbol: symbol,
		Action: Close,
		Reason: "ema cross against position",
		Metadata: map[string]any{
			"strategy": x.name,
			"fast":     fast,
			"slow":     slow,
		},
	}, true
}

func (x *EMACross) record(symbol string, v map[string]any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.status[symbol] = v
}

// Status returns the last indicator values seen per symbol.
func (x *EMACross) Status() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]any, len(x.status))
	for k, v := range x.status {
		out[k] = maps.Clone(v)
	}
	return out
}
