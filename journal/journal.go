// Package journal is the bot's append-only audit trail: every signal,
// every order attempt, every closed trade and notable engine events.
package journal

import (
	"context"
	"errors"
	"time"
)

// Order outcomes recorded in OrderRecord.Status.
const (
	StatusPlaced  = "placed"
	StatusFailed  = "failed"
	StatusRefused = "refused" // stopped by risk limits, never sent
	StatusClosed  = "closed"  // closing order for an open position
)

type SignalRecord struct {
	ID         string
	Time       time.Time
	CycleID    string
	Symbol     string
	Side       string
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
	Confidence float64
	Strategy   string
}

type OrderRecord struct {
	ID         string
	Time       time.Time
	CycleID    string
	Symbol     string
	Side       string
	Kind       string
	Lots       float64 // size the engine computed and requested
	FilledLots float64 // size the broker reported filled
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
	Status     string
	Ticket     uint64
	ResultCode int
	RiskAmount float64
	Reason     string // broker comment or refusal reason
}

type TradeRecord struct {
	ID         string
	TradeID    string // broker position ticket
	Symbol     string
	Side       string
	Lots       float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

type EventRecord struct {
	ID      string
	Time    time.Time
	Kind    string // e.g. daily_reset, cycle_skipped
	Message string
}

// Journal records audit rows. Implementations are safe for concurrent
// use.
type Journal interface {
	RecordSignal(ctx context.Context, r SignalRecord) error
	RecordOrder(ctx context.Context, r OrderRecord) error
	RecordTrade(ctx context.Context, r TradeRecord) error
	RecordEvent(ctx context.Context, r EventRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSignal(context.Context, SignalRecord) error { return nil }
func (Nop) RecordOrder(context.Context, OrderRecord) error   { return nil }
func (Nop) RecordTrade(context.Context, TradeRecord) error   { return nil }
func (Nop) RecordEvent(context.Context, EventRecord) error   { return nil }
func (Nop) Close() error                                     { return nil }

// Multi writes to every journal and joins their errors.
type Multi []Journal

func (m Multi) RecordSignal(ctx context.Context, r SignalRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordSignal(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordOrder(ctx context.Context, r OrderRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordOrder(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordTrade(ctx context.Context, r TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEvent(ctx context.Context, r EventRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEvent(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
