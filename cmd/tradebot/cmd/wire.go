package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/tradebot/alert"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/broker/bridge"
	"github.com/rustyeddy/tradebot/broker/paper"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/engine"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

var (
	ErrNoMarketData = errors.New("broker.base_url is required for market data and order management")
	ErrNoQueryDB    = errors.New("journal queries need a sqlite or postgres journal (or --db)")
)

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Dir, cfg.RotateDaily)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "sqlite", "postgres":
		j, err := openQueryJournal(cfg, "")
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("journal type %q", cfg.Type)
	}
}

// openQueryJournal opens the SQL journal named by dbPath, or by the
// config when dbPath is empty.
func openQueryJournal(cfg config.JournalConfig, dbPath string) (*journal.SQLJournal, error) {
	if dbPath != "" {
		return journal.NewSQLite(dbPath)
	}
	switch cfg.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.Path)
	case "postgres":
		return journal.OpenSQL("postgres", cfg.DSN)
	default:
		return nil, ErrNoQueryDB
	}
}

// newAlerts fans alerts out to the log and, when configured, Telegram,
// behind a non-blocking queue.
func newAlerts(cfg config.TelegramConfig, log *slog.Logger) *alert.Dispatcher {
	sinks := alert.Multi{alert.LogNotifier{Log: log}}
	tg := alert.NewTelegram(alert.TelegramConfig{
		Enabled:  cfg.Enabled,
		BotToken: cfg.BotToken,
		ChatID:   cfg.ChatID,
		APIURL:   cfg.APIURL,
	})
	switch {
	case tg.Enabled():
		sinks = append(sinks, tg)
	case cfg.Enabled:
		log.Warn("telegram alerts disabled: bot token or chat id missing")
	}
	return alert.NewDispatcher(sinks, 0, log)
}

// newGateway returns the execution gateway and the market data provider.
// Paper trading executes locally against prices mirrored from the bridge.
func newGateway(cfg *config.Config, forcePaper bool, log *slog.Logger) (broker.Gateway, market.Provider, error) {
	client, err := newBridge(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Broker.Type == "bridge" && !forcePaper {
		return client, client, nil
	}

	p := cfg.Broker.Paper
	pb := paper.New(broker.Account{Login: "paper", Currency: p.Currency, Balance: p.Balance}, log)
	pb.SetLeverage(p.Leverage)
	return pb, pb.Follow(client), nil
}

func newBridge(cfg *config.Config, log *slog.Logger) (*bridge.Client, error) {
	if cfg.Broker.BaseURL == "" {
		return nil, ErrNoMarketData
	}
	return bridge.New(bridge.Config{
		BaseURL: cfg.Broker.BaseURL,
		Token:   cfg.Broker.Token,
		Timeout: cfg.BrokerTimeout(),
		Retries: cfg.Broker.Retries,
	}, log)
}

func translatorOptions(cfg *config.Config) order.Options {
	return order.Options{
		Deviation: cfg.Broker.Deviation,
		Magic:     cfg.Broker.Magic,
		Comment:   cfg.Broker.Comment,
		Timeout:   cfg.OrderTimeout(),
	}
}

func newEngine(cfg *config.Config, gw broker.Gateway, md market.Provider, j journal.Journal, alerts alert.Notifier, log *slog.Logger) (*engine.Engine, error) {
	strat, err := strategy.New(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		return nil, err
	}
	tf, err := market.ParseTimeframe(cfg.App.Timeframe)
	if err != nil {
		return nil, err
	}

	orders := order.NewTranslator(gw, md, translatorOptions(cfg), log)

	opts := engine.DefaultOptions()
	opts.Symbols = cfg.App.Symbols
	opts.Timeframe = tf
	if cfg.App.DataWindow > 0 {
		opts.DataWindow = cfg.App.DataWindow
	}
	opts.Parallel = cfg.App.Parallel
	if cfg.App.Concurrency > 0 {
		opts.Concurrency = cfg.App.Concurrency
	}
	opts.OrderTimeout = cfg.OrderTimeout()
	opts.PollInterval = cfg.PollInterval()
	opts.DailyResetHour = cfg.App.DailyResetHour
	opts.DefaultStopPips = cfg.DefaultStopPips()
	opts.ReserveFromFill = cfg.Risk.ReserveFromFill

	return engine.New(engine.Deps{
		Gateway:  gw,
		Market:   md,
		Limiter:  risk.NewLimiter(cfg.RiskLimits()),
		Orders:   orders,
		Strategy: strat,
		Journal:  j,
		Alerts:   alerts,
		Log:      log,
	}, opts)
}
