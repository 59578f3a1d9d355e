package market

import (
	"fmt"
	"strings"
)

// SymbolInfo is a read-only snapshot of a symbol's trading metadata as
// reported by the market data provider. Bid and Ask are nil when no tick
// was available at query time.
type SymbolInfo struct {
	Symbol       string
	Digits       int
	Point        float64
	ContractSize float64 // units of base currency per lot, e.g. 100000 for EURUSD
	LotStep      float64
	MinLot       float64
	MaxLot       float64
	TickValue    float64 // P/L of one tick for one lot, account currency
	TickSize     float64
	Bid          *float64
	Ask          *float64

	// QuoteCurrency is the currency prices and profits are expressed in.
	// Empty means it is derived from the symbol name when that is an FX
	// pair.
	QuoteCurrency string
}

// Known reports whether the snapshot carries enough metadata to size orders.
func (s SymbolInfo) Known() bool {
	return s.Symbol != "" && s.ContractSize > 0 && s.LotStep > 0
}

// Spread returns the bid/ask spread in points.
func (s SymbolInfo) Spread() (float64, bool) {
	if s.Bid == nil || s.Ask == nil || s.Point <= 0 {
		return 0, false
	}
	return (*s.Ask - *s.Bid) / s.Point, true
}

// Quote returns the symbol's quote currency, from QuoteCurrency or the
// pair name. ok is false for symbols such as indices whose quote currency
// is not known.
func (s SymbolInfo) Quote() (quote string, ok bool) {
	if q := strings.TrimSpace(s.QuoteCurrency); q != "" {
		return strings.ToUpper(q), true
	}
	_, q, err := Currencies(s.Symbol)
	return q, err == nil
}

// Currencies splits an FX symbol into its base and quote currencies.
// "EURUSD", "EUR_USD" and "EUR/USD" are all accepted; broker suffixes
// such as "EURUSD.m" are ignored.
func Currencies(symbol string) (base, quote string, err error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, ".#"); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer("_", "", "/", "").Replace(s)
	if len(s) != 6 {
		return "", "", fmt.Errorf("symbol %q is not a currency pair", symbol)
	}
	return s[:3], s[3:], nil
}

// Pair joins two currency codes into the symbol form used by the broker.
func Pair(base, quote string) string {
	return strings.ToUpper(base) + strings.ToUpper(quote)
}
