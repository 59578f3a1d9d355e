package strategy

import (
	"math"

	"github.com/rustyeddy/tradebot/market"
)

// EMA returns the exponential moving average of xs at every index, seeded
// with the first value.
func EMA(xs []float64, period int) []float64 {
	if period <= 0 || len(xs) == 0 {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func trueRange(cur, prev market.Bar) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR is the Wilder-smoothed average true range over bars. It needs
// period+1 bars and returns false otherwise.
func ATR(bars []market.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1])) / float64(period)
	}
	return atr, true
}

// SwingLow is the lowest low of the last n bars.
func SwingLow(bars []market.Bar, n int) float64 {
	lo := math.Inf(1)
	for _, b := range tail(bars, n) {
		lo = math.Min(lo, b.Low)
	}
	return lo
}

// SwingHigh is the highest high of the last n bars.
func SwingHigh(bars []market.Bar, n int) float64 {
	hi := math.Inf(-1)
	for _, b := range tail(bars, n) {
		hi = math.Max(hi, b.High)
	}
	return hi
}

func tail(bars []market.Bar, n int) []market.Bar {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}
