package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// VolumeUnit says what an order volume is denominated in: Lots, or a
// three letter currency code meaning "this much money".
type VolumeUnit string

const Lots VolumeUnit = "lots"

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNoRate        = errors.New("no conversion rate")
	ErrBelowMinLot   = errors.New("volume below minimum lot")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseVolumeUnit accepts "lots" or a currency code, case-insensitive.
func ParseVolumeUnit(s string) (VolumeUnit, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(Lots)) {
		return Lots, nil
	}
	if len(s) != 3 {
		return "", fmt.Errorf("volume unit %q: want lots or a currency code", s)
	}
	return VolumeUnit(strings.ToUpper(s)), nil
}

func (u VolumeUnit) IsLots() bool { return u == "" || u == Lots }

// ToLots converts amount, denominated in unit, into a lot quantity for the
// symbol described by info.
//
// When unit is the symbol's quote currency, or the quote currency is
// unknown, lots = amount / contract_size.
// Any other currency is first converted into the quote currency using the
// bid of the cross pair (UNIT+QUOTE, or the inverse of QUOTE+UNIT). The
// result is rounded half-up to the lot step; a result under the minimum lot
// fails with ErrBelowMinLot rather than being bumped up. A result over the
// maximum lot is clamped down.
func ToLots(ctx context.Context, rates TickSource, amount float64, unit VolumeUnit, info SymbolInfo) (float64, error) {
	if !info.Known() {
		return 0, fmt.Errorf("to lots %q: %w", info.Symbol, ErrUnknownSymbol)
	}
	if !(amount > 0) {
		return 0, fmt.Errorf("to lots %q: %w: %v", info.Symbol, ErrInvalidAmount, amount)
	}
	if unit.IsLots() {
		return CheckLots(RoundToStep(amount, info.LotStep), info)
	}

	// Without a known quote currency the amount is taken to be in it
	// already, as for index and CFD contracts.
	quote, ok := info.Quote()

	inQuote := decimal.NewFromFloat(amount)
	if cur := string(unit); ok && cur != quote {
		rate, err := crossRate(ctx, rates, cur, quote)
		if err != nil {
			return 0, fmt.Errorf("to lots %q: %w", info.Symbol, err)
		}
		inQuote = inQuote.Mul(rate)
	}

	lots, _ := inQuote.Div(decimal.NewFromFloat(info.ContractSize)).Float64()
	return CheckLots(RoundToStep(lots, info.LotStep), info)
}

// crossRate returns how many units of quote one unit of cur buys.
func crossRate(ctx context.Context, rates TickSource, cur, quote string) (decimal.Decimal, error) {
	if rates == nil {
		return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrNoRate, cur, quote)
	}
	if t, err := rates.Tick(ctx, Pair(cur, quote)); err == nil && t.Bid > 0 {
		return decimal.NewFromFloat(t.Bid), nil
	}
	if t, err := rates.Tick(ctx, Pair(quote, cur)); err == nil && t.Bid > 0 {
		return decimal.NewFromInt(1).Div(decimal.NewFromFloat(t.Bid)), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrNoRate, cur, quote)
}

// RoundToStep rounds value to the nearest multiple of step, halves away
// from zero. Arithmetic is done in decimal so 0.015 at step 0.01 is 0.02.
func RoundToStep(value, step float64) float64 {
	s := decimal.NewFromFloat(step)
	if s.Sign() <= 0 {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Div(s).Round(0).Mul(s).Float64()
	return f
}

// FloorToStep truncates value down to a multiple of step. Position sizing
// uses it so rounding never adds risk. Float noise below a millionth of a
// step is ignored, so 0.49999999999999956 at step 0.01 stays 0.5.
func FloorToStep(value, step float64) float64 {
	s := decimal.NewFromFloat(step)
	if s.Sign() <= 0 {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Div(s).Round(6).Floor().Mul(s).Float64()
	return f
}

// CheckLots enforces the symbol's lot bounds on an already stepped volume.
func CheckLots(lots float64, info SymbolInfo) (float64, error) {
	if lots <= 0 || lots < info.MinLot {
		return 0, fmt.Errorf("%w: %v < %v (%s)", ErrBelowMinLot, lots, info.MinLot, info.Symbol)
	}
	if info.MaxLot > 0 && lots > info.MaxLot {
		return info.MaxLot, nil
	}
	return lots, nil
}

// QuoteToAccountRate returns the factor that turns an amount in symbol's
// quote currency into the account currency.
func QuoteToAccountRate(ctx context.Context, rates TickSource, symbol, account string) (float64, error) {
	_, quote, err := Currencies(symbol)
	if err != nil {
		return 0, err
	}
	account = strings.ToUpper(account)
	if account == "" || quote == account {
		return 1, nil
	}
	r, err := crossRate(ctx, rates, quote, account)
	if err != nil {
		return 0, err
	}
	f, _ := r.Float64()
	return f, nil
}
