package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/market"
)

func TestComputePositionSizeScenario(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{PerTradePct: 1.0, PerDayPct: 2.0, MaxActiveTrades: 1})
	require.NoError(t, l.UpdateEquity(10000))

	// 100 / (10 * 10)
	assert.Equal(t, 1.0, l.ComputePositionSize(10, 10))
}

func TestComputePositionSizeMonotonic(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{PerTradePct: 0.5, PerDayPct: 2.0, MaxActiveTrades: 3})
	require.NoError(t, l.UpdateEquity(25000))

	prev := l.ComputePositionSize(1, 10)
	for d := 2.0; d <= 200; d += 7 {
		got := l.ComputePositionSize(d, 10)
		assert.Less(t, got, prev, "stop distance %v", d)
		prev = got
	}

	prev = l.ComputePositionSize(20, 0.5)
	for pv := 1.0; pv <= 50; pv += 3 {
		got := l.ComputePositionSize(20, pv)
		assert.Less(t, got, prev, "pip value %v", pv)
		prev = got
	}
}

func TestComputePositionSizeEpsilonFloor(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{PerTradePct: 1, PerDayPct: 2, MaxActiveTrades: 1})
	require.NoError(t, l.UpdateEquity(1000))

	got := l.ComputePositionSize(0, 10)
	assert.InDelta(t, 10/minLossPerLot, got, 1)
	assert.Equal(t, 0.0, newLimiterWithEquity(t, 0).ComputePositionSize(10, 10))
}

func TestComputePositionSizePanicsWithoutEquity(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{PerTradePct: 1, PerDayPct: 2, MaxActiveTrades: 1})
	assert.PanicsWithError(t, ErrEquityNotSet.Error(), func() {
		l.ComputePositionSize(10, 10)
	})
}

func newLimiterWithEquity(t *testing.T, equity float64) *Limiter {
	t.Helper()
	l := NewLimiter(Config{PerTradePct: 1, PerDayPct: 2, MaxActiveTrades: 1})
	require.NoError(t, l.UpdateEquity(equity))
	return l
}

func TestPipHelpers(t *testing.T) {
	t.Parallel()

	eur := market.SymbolInfo{Symbol: "EURUSD", Digits: 5, Point: 0.00001, TickValue: 1, TickSize: 0.00001}
	jpy := market.SymbolInfo{Symbol: "USDJPY", Digits: 3, Point: 0.001, TickValue: 0.67, TickSize: 0.001}
	gold := market.SymbolInfo{Symbol: "XAUUSD", Digits: 2, Point: 0.01, TickValue: 1, TickSize: 0.01}

	tests := []struct {
		name     string
		info     market.SymbolInfo
		entry    float64
		stop     float64
		wantPips float64
		wantPV   float64
	}{
		{"eurusd 5 digit", eur, 1.10000, 1.09800, 20, 10},
		{"usdjpy 3 digit", jpy, 150.00, 150.35, 35, 6.7},
		{"gold point pips", gold, 2000.00, 1999.00, 100, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.wantPips, StopDistancePips(tt.info, tt.entry, tt.stop), 1e-6)
			assert.InDelta(t, tt.wantPV, PipValuePerLot(tt.info), 1e-9)
		})
	}

	assert.InDelta(t, 1.0980, StopPrice(eur, 1.1000, 20, true), 1e-9)
	assert.InDelta(t, 1.1020, StopPrice(eur, 1.1000, 20, false), 1e-9)
	assert.Equal(t, 0.0, PipValuePerLot(market.SymbolInfo{}))
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(1.10, 1.09, 1.12), 1e-9)
	assert.Equal(t, 0.0, RR(1.10, 1.10, 1.12))
}
