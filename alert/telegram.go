package alert

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	APIURL   string // defaults to the public Bot API
	Timeout  time.Duration
}

// Telegram sends alerts through the Bot API's sendMessage, formatted as
// HTML.
type Telegram struct {
	cfg    TelegramConfig
	client *resty.Client
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return NewTelegramWithClient(&http.Client{}, cfg)
}

func NewTelegramWithClient(hc *http.Client, cfg TelegramConfig) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = telegramAPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout)
	return &Telegram{cfg: cfg, client: c}
}

func (t *Telegram) Name() string { return "telegram" }

// Enabled reports whether the notifier is switched on and has credentials.
func (t *Telegram) Enabled() bool {
	return t.cfg.Enabled && t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Notify(ctx context.Context, m Message) error {
	if !t.Enabled() {
		return nil
	}

	var reply telegramReply
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.cfg.BotToken).
		SetBody(map[string]any{
			"chat_id":    t.cfg.ChatID,
			"text":       Format(m),
			"parse_mode": "HTML",
		}).
		SetResult(&reply).
		SetError(&reply).
		Post("/bot{token}/sendMessage")
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() || !reply.OK {
		desc := reply.Description
		if desc == "" {
			desc = strings.TrimSpace(resp.String())
		}
		return fmt.Errorf("telegram api http %d: %s", resp.StatusCode(), desc)
	}
	return nil
}

// Format renders m as Telegram HTML.
func Format(m Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n", emoji(m.Category), html.EscapeString(m.Title))
	if m.Symbol != "" {
		fmt.Fprintf(&b, "Symbol: <code>%s</code>\n", html.EscapeString(m.Symbol))
	}
	b.WriteString(html.EscapeString(m.Text))
	if m.PnL != nil {
		fmt.Fprintf(&b, "\nPnL: <code>%+.2f</code>", *m.PnL)
	}
	if !m.Time.IsZero() {
		fmt.Fprintf(&b, "\n\n%s UTC", m.Time.UTC().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func emoji(c Category) string {
	switch c {
	case CategorySignal:
		return "📈"
	case CategoryOrder:
		return "🧾"
	case CategoryTrade:
		return "🎯"
	case CategoryRisk:
		return "⚠️"
	case CategoryError:
		return "❌"
	case CategorySystem:
		return "🚀"
	default:
		return "📢"
	}
}
