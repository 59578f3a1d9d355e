// Package config loads the bot's YAML (or JSON) configuration. String
// values of the form "env:NAME" are replaced by the NAME environment
// variable at load time.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

const envPrefix = "env:"

// Config is the complete bot configuration.
type Config struct {
	App      AppConfig               `json:"app" yaml:"app"`
	Risk     RiskConfig              `json:"risk" yaml:"risk"`
	Broker   BrokerConfig            `json:"broker" yaml:"broker"`
	Symbols  map[string]SymbolConfig `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Strategy StrategyConfig          `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig           `json:"journal" yaml:"journal"`
	Telegram TelegramConfig          `json:"telegram" yaml:"telegram"`
	Logging  LoggingConfig           `json:"logging" yaml:"logging"`
}

// AppConfig controls the polling loop.
type AppConfig struct {
	Symbols        []string `json:"symbols" yaml:"symbols"`
	Timeframe      string   `json:"timeframe" yaml:"timeframe"`
	DataWindow     int      `json:"data_window" yaml:"data_window"`
	PollInterval   string   `json:"poll_interval" yaml:"poll_interval"` // e.g. "60s"
	DailyResetHour int      `json:"daily_reset_hour" yaml:"daily_reset_hour"`
	Parallel       bool     `json:"parallel" yaml:"parallel"`
	Concurrency    int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	OrderTimeout   string   `json:"order_timeout" yaml:"order_timeout"`
}

// RiskConfig holds the limits; percentages are on a 0-100 scale.
type RiskConfig struct {
	PerTradePct     float64       `json:"per_trade_pct" yaml:"per_trade_pct"`
	PerDayPct       float64       `json:"per_day_pct" yaml:"per_day_pct"`
	MaxActiveTrades int           `json:"max_active_trades" yaml:"max_active_trades"`
	ReserveFromFill bool          `json:"reserve_from_fill" yaml:"reserve_from_fill"`
	Dynamic         DynamicConfig `json:"dynamic" yaml:"dynamic"`
}

type DynamicConfig struct {
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Rules   map[string]float64 `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// BrokerConfig selects and configures the execution gateway.
type BrokerConfig struct {
	Type      string      `json:"type" yaml:"type"` // "paper" or "bridge"
	BaseURL   string      `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token     string      `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout   string      `json:"timeout" yaml:"timeout"`
	Retries   int         `json:"retries" yaml:"retries"`
	Deviation int         `json:"deviation" yaml:"deviation"`
	Magic     int64       `json:"magic" yaml:"magic"`
	Comment   string      `json:"comment" yaml:"comment"`
	Paper     PaperConfig `json:"paper" yaml:"paper"`
}

type PaperConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Leverage float64 `json:"leverage" yaml:"leverage"`
}

type SymbolConfig struct {
	DefaultStopPips float64 `json:"default_stop_pips" yaml:"default_stop_pips"`
}

type StrategyConfig struct {
	Name          string  `json:"name" yaml:"name"`
	Fast          int     `json:"fast,omitempty" yaml:"fast,omitempty"`
	Slow          int     `json:"slow,omitempty" yaml:"slow,omitempty"`
	RR            float64 `json:"rr,omitempty" yaml:"rr,omitempty"`
	SwingLookback int     `json:"swing_lookback,omitempty" yaml:"swing_lookback,omitempty"`
	ATRPeriod     int     `json:"atr_period,omitempty" yaml:"atr_period,omitempty"`
}

// JournalConfig picks the journal backend: "csv" writes files under Dir,
// "sqlite" a database at Path, "postgres" the database at DSN.
type JournalConfig struct {
	Type             string `json:"type" yaml:"type"`
	Dir              string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Path             string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN              string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	RotateDaily      bool   `json:"rotate_daily" yaml:"rotate_daily"`
	ArchiveAfterDays int    `json:"archive_after_days" yaml:"archive_after_days"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	APIURL   string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// LoadFromFile reads, resolves and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML, falling back to JSON, over the defaults and
// resolves env placeholders. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Maps merge on decode; symbols come from the file alone.
	cfg.Symbols = nil

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err == nil {
		resolveEnv(&root)
		if root.Kind != 0 {
			if err := root.Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		if jerr := dec.Decode(cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	// Placeholders from the defaults, or from a JSON file.
	cfg.resolveEnvFields()

	// Telegram credentials fall back to the conventional variables.
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Telegram.ChatID == "" {
		cfg.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	return cfg, nil
}

// resolveEnv rewrites every "env:NAME" scalar in place. A variable that
// is unset resolves to the empty string. The tag is cleared so the value
// decodes into numeric and boolean fields too.
func resolveEnv(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && strings.HasPrefix(n.Value, envPrefix) {
		n.Value = os.Getenv(strings.TrimPrefix(n.Value, envPrefix))
		n.Tag = ""
		n.Style = 0
		if n.Value == "" {
			// Empty plain scalars decode as null; keep it a string.
			n.Tag = "!!str"
		}
		return
	}
	for _, c := range n.Content {
		resolveEnv(c)
	}
}

// resolveEnvFields resolves placeholders left in string fields after
// decoding.
func (c *Config) resolveEnvFields() {
	for _, p := range []*string{
		&c.Broker.BaseURL, &c.Broker.Token,
		&c.Journal.Dir, &c.Journal.Path, &c.Journal.DSN,
		&c.Telegram.BotToken, &c.Telegram.ChatID, &c.Telegram.APIURL,
	} {
		if strings.HasPrefix(*p, envPrefix) {
			*p = os.Getenv(strings.TrimPrefix(*p, envPrefix))
		}
	}
}

// SaveToFile writes the configuration as YAML for .yaml/.yml paths and as
// indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration and reports the first problem found.
func (c *Config) Validate() error {
	if len(c.App.Symbols) == 0 {
		return fmt.Errorf("app.symbols is required")
	}
	for _, s := range c.App.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("app.symbols must not contain empty names")
		}
	}
	if _, err := market.ParseTimeframe(c.App.Timeframe); err != nil {
		return fmt.Errorf("app.timeframe: %w", err)
	}
	if c.App.DataWindow <= 0 {
		return fmt.Errorf("app.data_window must be positive")
	}
	if d, err := parseDuration(c.App.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("app.poll_interval must be a positive duration, got %q", c.App.PollInterval)
	}
	if d, err := parseDuration(c.App.OrderTimeout); err != nil || d <= 0 {
		return fmt.Errorf("app.order_timeout must be a positive duration, got %q", c.App.OrderTimeout)
	}
	if c.App.DailyResetHour < 0 || c.App.DailyResetHour > 23 {
		return fmt.Errorf("app.daily_reset_hour must be between 0 and 23")
	}
	if c.App.Concurrency < 0 {
		return fmt.Errorf("app.concurrency must not be negative")
	}

	if err := c.RiskLimits().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	switch c.Broker.Type {
	case "paper":
		if c.Broker.Paper.Balance <= 0 {
			return fmt.Errorf("broker.paper.balance must be positive")
		}
		if c.Broker.Paper.Currency == "" {
			return fmt.Errorf("broker.paper.currency is required")
		}
	case "bridge":
		if c.Broker.BaseURL == "" {
			return fmt.Errorf("broker.base_url required for bridge type")
		}
	default:
		return fmt.Errorf("broker.type must be 'paper' or 'bridge'")
	}
	if _, err := parseDuration(c.Broker.Timeout); err != nil {
		return fmt.Errorf("broker.timeout: %w", err)
	}
	if c.Broker.Deviation < 0 {
		return fmt.Errorf("broker.deviation must not be negative")
	}

	for name, s := range c.Symbols {
		if s.DefaultStopPips < 0 {
			return fmt.Errorf("symbols.%s.default_stop_pips must not be negative", name)
		}
	}

	if _, err := strategy.New(c.Strategy.Name, c.StrategyParams()); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal.dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn required for Postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'postgres'")
	}
	if c.Journal.ArchiveAfterDays < 0 {
		return fmt.Errorf("journal.archive_after_days must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

// RiskLimits maps the risk section onto the limiter's configuration.
func (c *Config) RiskLimits() risk.Config {
	return risk.Config{
		PerTradePct:     c.Risk.PerTradePct,
		PerDayPct:       c.Risk.PerDayPct,
		MaxActiveTrades: c.Risk.MaxActiveTrades,
		Dynamic: risk.DynamicRules{
			Enabled: c.Risk.Dynamic.Enabled,
			Rules:   c.Risk.Dynamic.Rules,
		},
	}
}

func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		Fast:          c.Strategy.Fast,
		Slow:          c.Strategy.Slow,
		RR:            c.Strategy.RR,
		SwingLookback: c.Strategy.SwingLookback,
		ATRPeriod:     c.Strategy.ATRPeriod,
	}
}

// DefaultStopPips returns the per-symbol fallback stop distances.
func (c *Config) DefaultStopPips() map[string]float64 {
	out := make(map[string]float64, len(c.Symbols))
	for name, s := range c.Symbols {
		if s.DefaultStopPips > 0 {
			out[name] = s.DefaultStopPips
		}
	}
	return out
}

func (c *Config) PollInterval() time.Duration {
	d, _ := parseDuration(c.App.PollInterval)
	return d
}

func (c *Config) OrderTimeout() time.Duration {
	d, _ := parseDuration(c.App.OrderTimeout)
	return d
}

func (c *Config) BrokerTimeout() time.Duration {
	d, _ := parseDuration(c.Broker.Timeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Default returns a paper-trading configuration with the stock limits:
// half a percent per trade, two percent per day, four open trades.
func Default() *Config {
	limits := risk.DefaultConfig()
	return &Config{
		App: AppConfig{
			Symbols:        []string{"EURUSD", "GBPUSD"},
			Timeframe:      string(market.H1),
			DataWindow:     200,
			PollInterval:   "60s",
			DailyResetHour: 0,
			OrderTimeout:   "10s",
		},
		Risk: RiskConfig{
			PerTradePct:     limits.PerTradePct,
			PerDayPct:       limits.PerDayPct,
			MaxActiveTrades: limits.MaxActiveTrades,
		},
		Broker: BrokerConfig{
			Type:      "paper",
			Timeout:   "10s",
			Retries:   2,
			Deviation: 10,
			Magic:     234567,
			Comment:   "[TradingBot]",
			Paper: PaperConfig{
				Currency: "USD",
				Balance:  10000,
				Leverage: 100,
			},
		},
		Symbols: map[string]SymbolConfig{
			"EURUSD": {DefaultStopPips: 20},
			"GBPUSD": {DefaultStopPips: 25},
		},
		Strategy: StrategyConfig{
			Name: "ema_cross",
			Fast: 20,
			Slow: 50,
		},
		Journal: JournalConfig{
			Type:             "csv",
			Dir:              "./journal",
			RotateDaily:      true,
			ArchiveAfterDays: 30,
		},
		Telegram: TelegramConfig{
			Enabled:  true,
			BotToken: envPrefix + "TELEGRAM_BOT_TOKEN",
			ChatID:   envPrefix + "TELEGRAM_CHAT_ID",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
