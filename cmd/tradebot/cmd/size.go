package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute a risk-based position size",
	Long: `Size a trade the way the engine does: risk per_trade_pct of equity over
the stop distance, floored to the lot step and checked against the lot
bounds. Risk limits come from the config file when it exists.

Example:
  tradebot size --equity 10000 --stop-pips 20 --pip-value 10`,
	Args: cobra.NoArgs,
	RunE: runSize,
}

var (
	sizeEquity   float64
	sizeStopPips float64
	sizePipValue float64
	sizeLotStep  float64
	sizeMinLot   float64
	sizeMaxLot   float64
)

func init() {
	rootCmd.AddCommand(sizeCmd)

	sizeCmd.Flags().Float64Var(&sizeEquity, "equity", 0, "account equity (required)")
	sizeCmd.Flags().Float64Var(&sizeStopPips, "stop-pips", 0, "stop distance in pips (required)")
	sizeCmd.Flags().Float64Var(&sizePipValue, "pip-value", 10, "value of one pip for one lot, in account currency")
	sizeCmd.Flags().Float64Var(&sizeLotStep, "lot-step", 0.01, "volume step")
	sizeCmd.Flags().Float64Var(&sizeMinLot, "min-lot", 0.01, "smallest volume")
	sizeCmd.Flags().Float64Var(&sizeMaxLot, "max-lot", 100, "largest volume")
	sizeCmd.MarkFlagRequired("equity")
	sizeCmd.MarkFlagRequired("stop-pips")
}

type sizing struct {
	Raw        float64
	Lots       float64
	RiskAmount float64
	Reason     risk.Reason
}

// sizeTrade asks a fresh limiter whether the trade may open and, if so,
// how many lots it may carry.
func sizeTrade(limits risk.Config, equity, stopPips, pipValue float64, info market.SymbolInfo) (sizing, error) {
	l := risk.NewLimiter(limits)
	if err := l.UpdateEquity(equity); err != nil {
		return sizing{}, err
	}
	ok, reason := l.CanOpenTrade(stopPips, pipValue)
	if !ok {
		return sizing{Reason: reason}, nil
	}
	raw := l.ComputePositionSize(stopPips, pipValue)
	lots, err := market.CheckLots(market.FloorToStep(raw, info.LotStep), info)
	if err != nil {
		return sizing{Raw: raw, Reason: reason}, err
	}
	amount, err := l.RiskAmount()
	if err != nil {
		return sizing{}, err
	}
	return sizing{Raw: raw, Lots: lots, RiskAmount: amount, Reason: reason}, nil
}

func runSize(cmd *cobra.Command, args []string) error {
	limits := config.Default().RiskLimits()
	if _, err := os.Stat(configPath); err == nil {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		limits = cfg.RiskLimits()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: %w", err)
	}

	info := market.SymbolInfo{LotStep: sizeLotStep, MinLot: sizeMinLot, MaxLot: sizeMaxLot}
	s, err := sizeTrade(limits, sizeEquity, sizeStopPips, sizePipValue, info)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}

	out := cmd.OutOrStdout()
	if s.Reason != risk.OK {
		fmt.Fprintf(out, "✗ Refused: %s\n", s.Reason)
		return nil
	}
	fmt.Fprintf(out, "✓ Position size: %.2f lots (raw %.4f)\n", s.Lots, s.Raw)
	fmt.Fprintf(out, "  Risk: %.2f (%.2f%% of %.2f) over %.1f pips\n", s.RiskAmount, limits.PerTradePct, sizeEquity, sizeStopPips)
	fmt.Fprintf(out, "  Loss at stop: %.2f\n", s.Lots*sizeStopPips*sizePipValue)
	return nil
}
