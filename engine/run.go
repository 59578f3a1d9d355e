package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/tradebot/alert"
)

// ResetDaily zeroes the limiter's daily budget and records the reset.
func (e *Engine) ResetDaily(ctx context.Context) {
	before := e.deps.Limiter.Snapshot()
	e.deps.Limiter.ResetDailyLimits()
	e.event(ctx, "daily_reset", "daily risk budget reset")
	e.log.Info("daily limits reset", "used", before.DailyRiskUsed, "active", len(before.ActiveTrades))
}

// Run polls every PollInterval until ctx is cancelled, resetting the
// daily limits at DailyResetHour UTC. The first cycle starts immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.notify(ctx, alert.System("trading started: "+e.deps.Strategy.Name()))
	defer e.notify(context.WithoutCancel(ctx), alert.System("trading stopped"))

	nextReset := NextReset(e.now(), e.opts.DailyResetHour)
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case <-ticker.C:
			if now := e.now(); !now.Before(nextReset) {
				e.ResetDaily(ctx)
				nextReset = NextReset(now, e.opts.DailyResetHour)
			}
			e.cycle(ctx)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	if _, err := e.PollAndTrade(ctx); err != nil && !errors.Is(err, ErrEquityUnavailable) {
		e.log.Error("cycle failed", "err", err)
	}
}

// NextReset returns the first instant after now at hour:00 UTC.
func NextReset(now time.Time, hour int) time.Time {
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour%24, 0, 0, 0, time.UTC)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
