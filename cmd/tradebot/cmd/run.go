package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/engine"
	"github.com/rustyeddy/tradebot/journal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the polling loop",
	Long: `Poll every configured symbol, ask the strategy for signals and place
the orders the risk limiter admits. Runs until interrupted.

Examples:
  tradebot run -c tradebot.yaml
  tradebot run --paper
  tradebot run --once`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runOnce  bool
	runPaper bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().BoolVar(&runPaper, "paper", false, "execute on a paper account using the bridge's prices")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, md, err := newGateway(cfg, runPaper, log)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	if days := cfg.Journal.ArchiveAfterDays; cfg.Journal.Type == "csv" && days > 0 {
		archived, err := journal.Archive(cfg.Journal.Dir, time.Now().AddDate(0, 0, -days))
		if err != nil {
			log.Warn("journal archive failed", "err", err)
		} else if len(archived) > 0 {
			log.Info("journal files archived", "count", len(archived))
		}
	}

	alerts := newAlerts(cfg.Telegram, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := alerts.Close(closeCtx); err != nil {
			log.Warn("alerts not drained", "err", err)
		}
		st := alerts.Stats()
		log.Info("alerts", "sent", st.Sent, "failed", st.Failed, "dropped", st.Dropped)
	}()

	eng, err := newEngine(cfg, gw, md, j, alerts, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	log.Info("starting", "symbols", cfg.App.Symbols, "broker", cfg.Broker.Type, "paper", runPaper,
		"journal", cfg.Journal.Type, "strategy", cfg.Strategy.Name)

	if !runOnce {
		return eng.Run(ctx)
	}

	rep, err := eng.PollAndTrade(ctx)
	if err != nil && !errors.Is(err, engine.ErrEquityUnavailable) {
		return fmt.Errorf("cycle: %w", err)
	}
	fmt.Printf("Cycle %s  equity %.2f\n", rep.CycleID, rep.Equity)
	for _, s := range rep.Symbols {
		fmt.Printf("  %s\n", s)
	}
	return err
}
