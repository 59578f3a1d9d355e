package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/broker/bridge"
	"github.com/rustyeddy/tradebot/broker/paper"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/order"
	"github.com/rustyeddy/tradebot/risk"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lotBounds() market.SymbolInfo {
	return market.SymbolInfo{LotStep: 0.01, MinLot: 0.01, MaxLot: 100}
}

func TestSizeTrade(t *testing.T) {
	t.Parallel()

	s, err := sizeTrade(risk.DefaultConfig(), 10000, 20, 10, lotBounds())
	require.NoError(t, err)
	assert.Equal(t, risk.OK, s.Reason)
	assert.Equal(t, 0.25, s.Lots)
	assert.InDelta(t, 50, s.RiskAmount, 1e-9)
}

func TestSizeTradeRefusedAndTooSmall(t *testing.T) {
	t.Parallel()

	s, err := sizeTrade(risk.DefaultConfig(), 10000, 0, 10, lotBounds())
	require.NoError(t, err)
	assert.Equal(t, risk.InvalidStopOrPipValue, s.Reason)

	_, err = sizeTrade(risk.DefaultConfig(), 100, 200, 10, lotBounds())
	assert.ErrorIs(t, err, market.ErrBelowMinLot)

	_, err = sizeTrade(risk.DefaultConfig(), math.NaN(), 20, 10, lotBounds())
	assert.ErrorIs(t, err, risk.ErrInvalidEquity)
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "10/03/2024")
	assert.Error(t, err)

	assert.Equal(t, "2024-01-02", dayArg([]string{"2024-01-02"}))
	assert.Len(t, dayArg(nil), len("2006-01-02"))
}

func TestOpenJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	j, err := openJournal(config.JournalConfig{Type: "csv", Dir: dir, RotateDaily: true})
	require.NoError(t, err)
	assert.IsType(t, &journal.CSVJournal{}, j)
	require.NoError(t, j.Close())

	j, err = openJournal(config.JournalConfig{Type: "sqlite", Path: filepath.Join(dir, "j.sqlite")})
	require.NoError(t, err)
	assert.IsType(t, &journal.SQLJournal{}, j)
	require.NoError(t, j.Close())

	_, err = openJournal(config.JournalConfig{Type: "mongo"})
	assert.Error(t, err)

	_, err = openQueryJournal(config.JournalConfig{Type: "csv", Dir: dir}, "")
	assert.ErrorIs(t, err, ErrNoQueryDB)

	q, err := openQueryJournal(config.JournalConfig{Type: "csv"}, filepath.Join(dir, "other.sqlite"))
	require.NoError(t, err)
	require.NoError(t, q.Close())
}

func TestNewGateway(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	_, _, err := newGateway(cfg, false, quiet())
	assert.ErrorIs(t, err, ErrNoMarketData)

	cfg.Broker.BaseURL = "http://127.0.0.1:8228/api/v1"
	gw, md, err := newGateway(cfg, false, quiet())
	require.NoError(t, err)
	assert.IsType(t, &paper.Broker{}, gw)
	assert.IsType(t, &paper.Feed{}, md)

	cfg.Broker.Type = "bridge"
	gw, md, err = newGateway(cfg, false, quiet())
	require.NoError(t, err)
	assert.IsType(t, &bridge.Client{}, gw)
	assert.Same(t, gw, md)

	gw, _, err = newGateway(cfg, true, quiet())
	require.NoError(t, err)
	assert.IsType(t, &paper.Broker{}, gw, "--paper overrides a bridge config")
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Broker.BaseURL = "http://127.0.0.1:8228/api/v1"
	gw, md, err := newGateway(cfg, false, quiet())
	require.NoError(t, err)

	alerts := newAlerts(config.TelegramConfig{Enabled: true}, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer alerts.Close(ctx)

	eng, err := newEngine(cfg, gw, md, journal.Nop{}, alerts, quiet())
	require.NoError(t, err)
	assert.NotNil(t, eng)

	cfg.Strategy.Name = "martingale"
	_, err = newEngine(cfg, gw, md, nil, alerts, quiet())
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printSummary(&buf, journal.Summary{
		Day:          time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Signals:      3,
		Orders:       map[string]int{"refused": 1, "placed": 2},
		Trades:       1,
		RealizedPL:   42.5,
		GrossProfit:  42.5,
		ProfitFactor: math.Inf(1),
	})
	out := buf.String()
	assert.Contains(t, out, "2024-01-02")
	assert.Contains(t, out, "+42.50")
	assert.Contains(t, out, "PF:         inf")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("placed")), bytes.Index(buf.Bytes(), []byte("refused")))

	buf.Reset()
	printOrders(&buf, nil)
	assert.Equal(t, "no orders\n", buf.String())

	buf.Reset()
	printOrders(&buf, []journal.OrderRecord{{
		Time: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), Symbol: "EURUSD", Side: "buy",
		Lots: 0.5, FilledLots: 0.3, Status: journal.StatusPlaced, Ticket: 7, ResultCode: 10009,
	}})
	assert.Contains(t, buf.String(), "FILLED")
	assert.Contains(t, buf.String(), "   0.50    0.30 placed")
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "1:x")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	path := filepath.Join(t.TempDir(), "bot.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"config", "init", "-o", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "✓ Created default configuration")

	out.Reset()
	rootCmd.SetArgs([]string{"config", "validate", "-f", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "EURUSD, GBPUSD")
	assert.Contains(t, out.String(), "Telegram: true")
}

func fptr(v float64) *float64 { return &v }

// paperOrders returns a translator on a paper account quoting EURUSD at
// 1.1000/1.1002.
func paperOrders(t *testing.T) (*order.Translator, *paper.Broker) {
	t.Helper()
	b := paper.New(broker.Account{Login: "paper", Currency: "USD", Balance: 10000}, quiet())
	b.AddSymbol(market.SymbolInfo{
		Symbol: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100000,
		LotStep: 0.01, MinLot: 0.01, MaxLot: 50, TickValue: 1, TickSize: 0.00001,
	})
	b.UpdatePrice(context.Background(), market.Tick{
		Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Time: time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	return order.NewTranslator(b, b, order.DefaultOptions(), quiet()), b
}

func TestOrdersPendingLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, b := paperOrders(t)

	var out bytes.Buffer
	require.NoError(t, listPending(ctx, tr, &out))
	assert.Equal(t, "no pending orders\n", out.String())

	in, err := buildIntent("EURUSD", "Buy", "LIMIT", "lots", 0.1, fptr(1.0950), fptr(1.0900), fptr(1.1050))
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, placeOrder(ctx, tr, in, &out))
	assert.Contains(t, out.String(), "✓ buy limit ticket")
	assert.Contains(t, out.String(), "R:R 2.00")

	pending, err := b.PendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	ticket := pending[0].Ticket

	out.Reset()
	require.NoError(t, listPending(ctx, tr, &out))
	assert.Contains(t, out.String(), "buy_limit")
	assert.Contains(t, out.String(), "1.09500")

	out.Reset()
	require.NoError(t, modifyOrder(ctx, tr, ticket, order.Changes{StopLoss: fptr(1.0920)}, &out))
	assert.Contains(t, out.String(), "sl    1.09000 -> 1.09200")
	assert.Contains(t, out.String(), "price 1.09500 -> 1.09500")

	out.Reset()
	require.NoError(t, cancelOrder(ctx, tr, ticket, &out))
	assert.Contains(t, out.String(), "✓ cancel")
	pending, err = b.PendingOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = cancelOrder(ctx, tr, ticket, &out)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrdersPlaceInCurrencyUnits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, b := paperOrders(t)

	// 10000 EUR at 1.1000 is 11000 USD, or 0.11 lots of 100000.
	in, err := buildIntent("EURUSD", "sell", "market", "eur", 10000, nil, nil, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, placeOrder(ctx, tr, in, &out))
	assert.Contains(t, out.String(), "0.11 lots at 1.10000")
	assert.NotContains(t, out.String(), "R:R")

	pos, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, broker.Sell, pos[0].Type)
	assert.InDelta(t, 0.11, pos[0].Volume, 1e-9)
}

func TestBuildIntentRejectsBadWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		side, kind, unit string
		is               error
	}{
		{"hold", "market", "lots", order.ErrInvalidOrderSpec},
		{"buy", "oco", "lots", order.ErrInvalidOrderSpec},
		{"buy", "market", "dollars", nil},
	}
	for _, tt := range tests {
		_, err := buildIntent("EURUSD", tt.side, tt.kind, tt.unit, 1, nil, nil, nil)
		require.Error(t, err, "%+v", tt)
		if tt.is != nil {
			assert.ErrorIs(t, err, tt.is)
		}
	}
}

func TestOrdersRejectionFailsCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr, _ := paperOrders(t)

	// A buy stop-loss above the ask is refused by the broker.
	in, err := buildIntent("EURUSD", "buy", "market", "lots", 0.1, nil, fptr(1.2000), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = placeOrder(ctx, tr, in, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "✗ buy market rejected")
	assert.Contains(t, err.Error(), "10016")
}

func TestParseTicket(t *testing.T) {
	t.Parallel()

	n, err := parseTicket("50123456")
	require.NoError(t, err)
	assert.Equal(t, uint64(50123456), n)

	for _, s := range []string{"0", "-3", "abc", ""} {
		_, err := parseTicket(s)
		assert.Error(t, err, s)
	}
}
