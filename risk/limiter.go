// Package risk decides whether a new trade may be opened and how large it
// may be, and keeps the per-day and open-trade bookkeeping behind that
// decision.
package risk

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
)

var (
	ErrInvalidEquity = errors.New("invalid equity")
	ErrEquityNotSet  = errors.New("equity not set")
)

// Reason explains the outcome of CanOpenTrade.
type Reason string

const (
	OK                     Reason = "ok"
	EquityNotSet           Reason = "equity_not_set"
	MaxActiveTradesReached Reason = "max_active_trades_reached"
	DailyRiskExceeded      Reason = "daily_risk_exceeded"
	InvalidStopOrPipValue  Reason = "invalid_stop_or_pip_value"
)

// Limiter owns the risk state of one running engine. It is safe for
// concurrent use, but CanOpenTrade followed by RegisterNewTrade is two
// calls; callers that trade symbols in parallel must serialize that
// sequence themselves.
type Limiter struct {
	mu  sync.Mutex
	cfg Config

	equity    float64
	equitySet bool
	dailyUsed float64
	active    map[string]float64 // trade id -> reserved risk
}

func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:    cfg,
		active: make(map[string]float64),
	}
}

func (l *Limiter) Config() Config { return l.cfg }

// UpdateEquity records the latest known account equity.
func (l *Limiter) UpdateEquity(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("update equity: %w: %v", ErrInvalidEquity, v)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.equity = v
	l.equitySet = true
	return nil
}

// CanOpenTrade checks, in order: equity known, open trade count, daily
// budget, then the stop distance and pip value of this request. The first
// failing check decides the reason.
func (l *Limiter) CanOpenTrade(stopDistance, pipValuePerLot float64) (bool, Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.equitySet {
		return false, EquityNotSet
	}
	if len(l.active) >= l.cfg.MaxActiveTrades {
		return false, MaxActiveTradesReached
	}
	if l.dailyUsed >= l.equity*l.cfg.PerDayPct/100.0 {
		return false, DailyRiskExceeded
	}
	if !(stopDistance > 0) || !(pipValuePerLot > 0) {
		return false, InvalidStopOrPipValue
	}
	return true, OK
}

// RegisterNewTrade reserves riskAmount for tradeID and adds it to the daily
// budget. It is not idempotent: registering the same id twice overwrites
// the reservation and counts the amount twice against the day.
func (l *Limiter) RegisterNewTrade(tradeID string, riskAmount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[tradeID] = riskAmount
	l.dailyUsed += riskAmount
}

// RegisterClose forgets tradeID. Realized P/L does not give daily budget
// back; it reaches future sizing only through UpdateEquity.
func (l *Limiter) RegisterClose(tradeID string, realizedPnL float64) {
	_ = realizedPnL
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, tradeID)
}

// ResetDailyLimits zeroes the daily budget. Open trades are kept.
func (l *Limiter) ResetDailyLimits() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyUsed = 0
}

// State is a copy of the limiter's bookkeeping.
type State struct {
	Equity        *float64
	DailyRiskUsed float64
	DailyBudget   float64
	ActiveTrades  map[string]float64
}

func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := State{
		DailyRiskUsed: l.dailyUsed,
		ActiveTrades:  maps.Clone(l.active),
	}
	if l.equitySet {
		e := l.equity
		s.Equity = &e
		s.DailyBudget = e * l.cfg.PerDayPct / 100.0
	}
	return s
}

// IsActive reports whether tradeID currently holds a reservation.
func (l *Limiter) IsActive(tradeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[tradeID]
	return ok
}
