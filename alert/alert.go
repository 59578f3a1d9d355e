// Package alert notifies operators about signals, orders, risk refusals
// and errors. Delivery is best effort: a failed or slow channel never
// holds up trading.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Category string

const (
	CategorySignal Category = "signal"
	CategoryOrder  Category = "order"
	CategoryTrade  Category = "trade"
	CategoryRisk   Category = "risk"
	CategoryError  Category = "error"
	CategorySystem Category = "system"
)

type Message struct {
	Category Category
	Title    string
	Text     string
	Symbol   string
	PnL      *float64
	Time     time.Time
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, m Message) error
}

// Signal describes a new strategy signal.
func Signal(symbol, side string, price float64, sl, tp *float64, confidence float64) Message {
	text := fmt.Sprintf("%s @ %.5f", side, price)
	if sl != nil {
		text += fmt.Sprintf("\nSL %.5f", *sl)
	}
	if tp != nil {
		text += fmt.Sprintf("\nTP %.5f", *tp)
	}
	text += fmt.Sprintf("\nconfidence %.2f", confidence)
	return Message{Category: CategorySignal, Title: "Signal", Symbol: symbol, Text: text, Time: time.Now()}
}

// OrderUpdate reports a change in an order's status.
func OrderUpdate(symbol string, ticket uint64, status string) Message {
	return Message{
		Category: CategoryOrder,
		Title:    "Order " + status,
		Symbol:   symbol,
		Text:     fmt.Sprintf("Order %d: %s", ticket, status),
		Time:     time.Now(),
	}
}

// TradeClosed reports a closed position and its result.
func TradeClosed(symbol string, ticket uint64, reason string, pnl float64) Message {
	return Message{
		Category: CategoryTrade,
		Title:    "Position closed",
		Symbol:   symbol,
		Text:     fmt.Sprintf("Position %d closed: %s", ticket, reason),
		PnL:      &pnl,
		Time:     time.Now(),
	}
}

func Risk(symbol, text string) Message {
	return Message{Category: CategoryRisk, Title: "Risk", Symbol: symbol, Text: text, Time: time.Now()}
}

func Error(text string) Message {
	return Message{Category: CategoryError, Title: "Error", Text: text, Time: time.Now()}
}

func System(text string) Message {
	return Message{Category: CategorySystem, Title: "System", Text: text, Time: time.Now()}
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (LogNotifier) Name() string { return "log" }

func (n LogNotifier) Notify(ctx context.Context, m Message) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	switch m.Category {
	case CategoryRisk:
		level = slog.LevelWarn
	case CategoryError:
		level = slog.LevelError
	}
	attrs := []any{"category", string(m.Category), "text", m.Text}
	if m.Symbol != "" {
		attrs = append(attrs, "symbol", m.Symbol)
	}
	if m.PnL != nil {
		attrs = append(attrs, "pnl", *m.PnL)
	}
	log.Log(ctx, level, "alert: "+m.Title, attrs...)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
