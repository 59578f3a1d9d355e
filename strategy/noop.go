package strategy

import "github.com/rustyeddy/tradebot/market"

// Noop never trades.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Entry(string, []market.Bar) (Signal, bool) { return Signal{}, false }

func (Noop) Exit(string, []market.Bar, Position) (ExitSignal, bool) { return ExitSignal{}, false }
