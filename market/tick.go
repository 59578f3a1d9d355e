package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoData is returned by a Provider when the request was served but the
// provider had nothing for it. Callers treat it as "unknown", never as zero.
var ErrNoData = errors.New("market: no data")

type Tick struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64
	Last   float64
	Volume float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// TickSource is the subset of a Provider needed for currency conversion.
type TickSource interface {
	Tick(ctx context.Context, symbol string) (Tick, error)
}

// Provider supplies bars, ticks and symbol metadata. Every method may fail;
// an empty answer is reported as ErrNoData so it can be told apart from a
// connectivity failure.
type Provider interface {
	TickSource
	Bars(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoData
	}
	return t, nil
}
