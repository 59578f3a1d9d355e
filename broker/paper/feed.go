package paper

import (
	"context"
	"fmt"

	"github.com/rustyeddy/tradebot/market"
)

// Feed serves market data from an upstream provider and mirrors it into
// the paper broker, so orders fill and stops trigger at live prices
// without reaching a real account.
type Feed struct {
	up market.Provider
	b  *Broker
}

// Follow returns a provider that reads from up and keeps b in step.
func (b *Broker) Follow(up market.Provider) *Feed {
	return &Feed{up: up, b: b}
}

// Bars returns upstream bars and refreshes the symbol's tick first, which
// lets resting orders and stops react once per poll.
func (f *Feed) Bars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	if _, err := f.Tick(ctx, symbol); err != nil {
		f.b.log.Debug("tick refresh failed", "symbol", symbol, "err", err)
	}
	return f.up.Bars(ctx, symbol, tf, count)
}

func (f *Feed) Tick(ctx context.Context, symbol string) (market.Tick, error) {
	t, err := f.up.Tick(ctx, symbol)
	if err != nil {
		return market.Tick{}, err
	}
	if _, ok := f.b.symbol(symbol); !ok {
		if _, err := f.SymbolInfo(ctx, symbol); err != nil {
			return market.Tick{}, err
		}
	}
	f.b.UpdatePrice(ctx, t)
	return t, nil
}

// SymbolInfo registers the upstream contract with the paper broker. A
// quote carried in the answer becomes the broker's current tick.
func (f *Feed) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	info, err := f.up.SymbolInfo(ctx, symbol)
	if err != nil {
		return market.SymbolInfo{}, fmt.Errorf("paper feed: %w", err)
	}
	f.b.AddSymbol(info)
	if info.Bid != nil && info.Ask != nil {
		f.b.UpdatePrice(ctx, market.Tick{Symbol: symbol, Bid: *info.Bid, Ask: *info.Ask, Time: f.b.now(symbol)})
	}
	return info, nil
}

func (b *Broker) symbol(name string) (market.SymbolInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.symbols[name]
	return info, ok
}
