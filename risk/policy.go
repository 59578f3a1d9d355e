package risk

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the risk limits. Percentages are on a 0-100 scale, so
// PerTradePct 1.0 means one percent of equity.
type Config struct {
	PerTradePct     float64
	PerDayPct       float64
	MaxActiveTrades int

	// Dynamic is reserved for equity-dependent limit tables. It is carried
	// through configuration but not consulted yet.
	Dynamic DynamicRules
}

type DynamicRules struct {
	Enabled bool
	Rules   map[string]float64
}

// DefaultConfig mirrors the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		PerTradePct:     0.5,
		PerDayPct:       2.0,
		MaxActiveTrades: 4,
	}
}

var ErrInvalidConfig = errors.New("invalid risk config")

func (c Config) Validate() error {
	if !finite(c.PerTradePct) || c.PerTradePct <= 0 || c.PerTradePct > 100 {
		return fmt.Errorf("%w: per_trade_pct %v must be in (0, 100]", ErrInvalidConfig, c.PerTradePct)
	}
	if !finite(c.PerDayPct) || c.PerDayPct <= 0 || c.PerDayPct > 100 {
		return fmt.Errorf("%w: per_day_pct %v must be in (0, 100]", ErrInvalidConfig, c.PerDayPct)
	}
	if c.MaxActiveTrades <= 0 {
		return fmt.Errorf("%w: max_active_trades %d must be positive", ErrInvalidConfig, c.MaxActiveTrades)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
