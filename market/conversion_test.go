package market

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTickSource struct {
	ticks  map[string]Tick
	called []string
}

func (f *fakeTickSource) Tick(ctx context.Context, symbol string) (Tick, error) {
	f.called = append(f.called, symbol)
	t, ok := f.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoData
	}
	return t, nil
}

func eurusd() SymbolInfo {
	return SymbolInfo{
		Symbol:       "EURUSD",
		Digits:       5,
		Point:        0.00001,
		ContractSize: 100000,
		LotStep:      0.01,
		MinLot:       0.01,
		MaxLot:       100,
		TickValue:    1,
		TickSize:     0.00001,
	}
}

func TestRoundToStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{"half up", 0.015, 0.01, 0.02},
		{"below half", 0.0149, 0.01, 0.01},
		{"exact", 0.07, 0.01, 0.07},
		{"float noise", 0.1 + 0.2, 0.1, 0.3},
		{"coarse step", 1.25, 0.5, 1.5},
		{"zero step", 0.123, 0, 0.123},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, RoundToStep(tt.value, tt.step), 1e-12)
		})
	}
}

func TestRoundToStepIsMultipleOfStep(t *testing.T) {
	t.Parallel()

	steps := []float64{0.01, 0.1, 0.05, 1}
	for _, step := range steps {
		for v := 0.0; v < 5; v += 0.0037 {
			got := RoundToStep(v, step)
			n := got / step
			assert.InDelta(t, math.Round(n), n, 1e-9, "value %v step %v -> %v", v, step, got)
		}
	}
}

func TestFloorToStep(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.23, FloorToStep(1.2399, 0.01), 1e-12)
	assert.InDelta(t, 0.29, FloorToStep(0.29, 0.01), 1e-12)
	assert.InDelta(t, 0.0, FloorToStep(0.009, 0.01), 1e-12)
	assert.Equal(t, 0.5, FloorToStep(0.49999999999999956, 0.01))
}

func TestToLotsDirectQuoteCurrency(t *testing.T) {
	t.Parallel()

	src := &fakeTickSource{}
	lots, err := ToLots(context.Background(), src, 15000, "USD", eurusd())
	require.NoError(t, err)
	assert.InDelta(t, 0.15, lots, 1e-12)
	assert.Empty(t, src.called, "direct conversion needs no rate")
}

func TestToLotsForeignCurrencyUsesCrossBid(t *testing.T) {
	t.Parallel()

	src := &fakeTickSource{ticks: map[string]Tick{
		"EURUSD": {Symbol: "EURUSD", Bid: 1.10, Ask: 1.1002},
	}}
	info := eurusd()
	info.Symbol = "GBPUSD"

	// 10000 EUR -> 11000 USD -> 0.11 lots
	lots, err := ToLots(context.Background(), src, 10000, "EUR", info)
	require.NoError(t, err)
	assert.InDelta(t, 0.11, lots, 1e-12)
	assert.Equal(t, []string{"EURUSD"}, src.called)
}

func TestToLotsForeignCurrencyInversePair(t *testing.T) {
	t.Parallel()

	src := &fakeTickSource{ticks: map[string]Tick{
		"USDJPY": {Symbol: "USDJPY", Bid: 150, Ask: 150.02},
	}}

	// JPY -> USD only has USDJPY listed: 1,500,000 JPY / 150 = 10,000 USD.
	lots, err := ToLots(context.Background(), src, 1_500_000, "JPY", eurusd())
	require.NoError(t, err)
	assert.InDelta(t, 0.10, lots, 1e-12)
	assert.Equal(t, []string{"JPYUSD", "USDJPY"}, src.called)
}

func TestToLotsIndexWithoutCurrencyPair(t *testing.T) {
	t.Parallel()

	us30 := SymbolInfo{Symbol: "US30", ContractSize: 1, LotStep: 0.1, MinLot: 0.1, MaxLot: 50}

	// Quote currency unknown: the amount is taken as already in it.
	lots, err := ToLots(context.Background(), nil, 50, "USD", us30)
	require.NoError(t, err)
	assert.InDelta(t, 50, lots, 1e-12)

	// Quote currency reported by the provider enables cross conversion.
	us30.QuoteCurrency = "usd"
	src := &fakeTickSource{ticks: map[string]Tick{"EURUSD": {Symbol: "EURUSD", Bid: 1.2}}}
	lots, err = ToLots(context.Background(), src, 10, "EUR", us30)
	require.NoError(t, err)
	assert.InDelta(t, 12, lots, 1e-12)
	assert.Equal(t, []string{"EURUSD"}, src.called)
}

func TestSymbolInfoQuote(t *testing.T) {
	t.Parallel()

	q, ok := eurusd().Quote()
	assert.True(t, ok)
	assert.Equal(t, "USD", q)

	_, ok = SymbolInfo{Symbol: "GER40"}.Quote()
	assert.False(t, ok)

	q, ok = SymbolInfo{Symbol: "GER40", QuoteCurrency: "EUR"}.Quote()
	assert.True(t, ok)
	assert.Equal(t, "EUR", q)
}

func TestToLotsNoRate(t *testing.T) {
	t.Parallel()

	src := &fakeTickSource{ticks: map[string]Tick{}}
	_, err := ToLots(context.Background(), src, 1000, "CHF", eurusd())
	assert.True(t, errors.Is(err, ErrNoRate), "got %v", err)
}

func TestToLotsBelowMinLotFails(t *testing.T) {
	t.Parallel()

	_, err := ToLots(context.Background(), nil, 400, "USD", eurusd())
	assert.True(t, errors.Is(err, ErrBelowMinLot), "got %v", err)
}

func TestToLotsClampsToMaxLot(t *testing.T) {
	t.Parallel()

	info := eurusd()
	info.MaxLot = 5
	lots, err := ToLots(context.Background(), nil, 1e9, "USD", info)
	require.NoError(t, err)
	assert.Equal(t, 5.0, lots)
}

func TestToLotsUnknownSymbol(t *testing.T) {
	t.Parallel()

	_, err := ToLots(context.Background(), nil, 1000, "USD", SymbolInfo{})
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}

func TestParseVolumeUnit(t *testing.T) {
	t.Parallel()

	u, err := ParseVolumeUnit("")
	require.NoError(t, err)
	assert.True(t, u.IsLots())

	u, err = ParseVolumeUnit("eur")
	require.NoError(t, err)
	assert.Equal(t, VolumeUnit("EUR"), u)

	_, err = ParseVolumeUnit("dollars")
	assert.Error(t, err)
}

func TestCurrencies(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"EURUSD", "eur_usd", "EUR/USD", "EURUSD.m"} {
		base, quote, err := Currencies(s)
		require.NoError(t, err, s)
		assert.Equal(t, "EUR", base)
		assert.Equal(t, "USD", quote)
	}

	_, _, err := Currencies("XAUUSD2")
	assert.Error(t, err)
}

func TestQuoteToAccountRate(t *testing.T) {
	t.Parallel()

	src := &fakeTickSource{ticks: map[string]Tick{
		"USDJPY": {Symbol: "USDJPY", Bid: 150},
	}}

	r, err := QuoteToAccountRate(context.Background(), src, "EURUSD", "usd")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r)

	r, err = QuoteToAccountRate(context.Background(), src, "EURJPY", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/150, r, 1e-12)

	_, err = QuoteToAccountRate(context.Background(), src, "EURGBP", "USD")
	assert.True(t, errors.Is(err, ErrNoRate))
}
