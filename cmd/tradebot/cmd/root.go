package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "Risk-gated FX order execution bot",
	Long: `Tradebot turns strategy signals into broker orders.

Every order passes the risk limiter first: per-trade and per-day budgets
sized from account equity and a cap on open trades. Signals, orders and
closed trades are written to a journal and operators are alerted over
Telegram.

It provides tools for:
  - Running the polling loop against an MT5 bridge or a paper account
  - Generating and validating configuration files
  - Querying and archiving the trade journal
  - Listing, placing, modifying and cancelling orders on the bridge
  - Risk-based position sizing`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tradebot.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// loadConfig reads the --config file and installs the process logger
// described by its logging section.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log := logging.New(level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(log)
	return cfg, log, nil
}
