// Package bridge talks to a MetaTrader 5 HTTP bridge: a small service on
// the terminal's host exposing account, order and market data endpoints
// as JSON.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

type Config struct {
	BaseURL string        // e.g. http://127.0.0.1:8228/api/v1
	Token   string        // sent as a bearer token when set
	Timeout time.Duration // per request
	Retries int           // read-only requests only
}

// Client implements broker.Gateway, broker.PositionLister,
// broker.HistoryLister and market.Provider over the bridge's REST API. Order placement, changes and
// cancellation are sent once and never retried.
type Client struct {
	read  *resty.Client
	write *resty.Client
	log   *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("bridge: base url required")
	}
	return NewWithClient(&http.Client{}, cfg, log), nil
}

// NewWithClient builds a Client on an existing http.Client, which tests
// use to point it at an httptest server.
func NewWithClient(hc *http.Client, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	setup := func(r *resty.Client) *resty.Client {
		r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json")
		if cfg.Token != "" {
			r.SetAuthToken(cfg.Token)
		}
		return r
	}
	return &Client{
		read:  setup(resty.NewWithClient(hc)).SetRetryCount(cfg.Retries),
		write: setup(resty.NewWithClient(hc)).SetRetryCount(0),
		log:   log.With("component", "bridge"),
	}
}

// apiError is the bridge's error body.
type apiError struct {
	Error string `json:"error"`
}

// do runs a request and maps failures: no answer or a 5xx is a transport
// failure, 404 is reported as errNotFound, other 4xx as a plain error.
func (c *Client) do(r *resty.Request, method, path string) error {
	resp, err := r.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", broker.ErrTransport, method, path, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := strings.TrimSpace(resp.String())
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %s", errNotFound, method, path, msg)
	case resp.StatusCode() >= 500:
		return fmt.Errorf("%w: %s %s: http %d: %s", broker.ErrTransport, method, path, resp.StatusCode(), msg)
	default:
		return fmt.Errorf("bridge %s %s: http %d: %s", method, path, resp.StatusCode(), msg)
	}
}

var errNotFound = errors.New("not found")

func (c *Client) get(ctx context.Context, out any) *resty.Request {
	return c.read.R().SetContext(ctx).SetResult(out).SetError(&apiError{})
}

// ---- broker.Gateway ----

// accountJSON keeps equity optional so a missing field is not read as zero.
type accountJSON struct {
	broker.Account
	Equity *float64 `json:"equity"`
}

// Account returns the account snapshot. An answer without equity wraps
// market.ErrNoData: equity is unknown, not zero.
func (c *Client) Account(ctx context.Context) (broker.Account, error) {
	var out accountJSON
	if err := c.do(c.get(ctx, &out), http.MethodGet, "/account"); err != nil {
		return broker.Account{}, err
	}
	if out.Equity == nil {
		return broker.Account{}, fmt.Errorf("account: equity missing: %w", market.ErrNoData)
	}
	acct := out.Account
	acct.Equity = *out.Equity
	return acct, nil
}

func (c *Client) Place(ctx context.Context, req broker.Request) (broker.Response, error) {
	var out broker.Response
	r := c.write.R().SetContext(ctx).SetBody(req).SetResult(&out).SetError(&apiError{})
	if err := c.do(r, http.MethodPost, "/orders"); err != nil {
		return broker.Response{}, err
	}
	c.log.Debug("order sent", "symbol", req.Symbol, "type", req.Type, "retcode", out.Code)
	return out, nil
}

func (c *Client) Modify(ctx context.Context, ticket uint64, m broker.Modification) (broker.Response, error) {
	var out broker.Response
	path := "/orders/" + strconv.FormatUint(ticket, 10)
	r := c.write.R().SetContext(ctx).SetBody(m).SetResult(&out).SetError(&apiError{})
	if err := c.do(r, http.MethodPut, path); err != nil {
		return broker.Response{}, notFound(err, ticket)
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, ticket uint64) (broker.Response, error) {
	var out broker.Response
	path := "/orders/" + strconv.FormatUint(ticket, 10)
	r := c.write.R().SetContext(ctx).SetResult(&out).SetError(&apiError{})
	if err := c.do(r, http.MethodDelete, path); err != nil {
		return broker.Response{}, notFound(err, ticket)
	}
	return out, nil
}

func (c *Client) Order(ctx context.Context, ticket uint64) (broker.OrderView, error) {
	var o broker.OrderView
	path := "/orders/" + strconv.FormatUint(ticket, 10)
	if err := c.do(c.get(ctx, &o), http.MethodGet, path); err != nil {
		return broker.OrderView{}, notFound(err, ticket)
	}
	return o, nil
}

func (c *Client) PendingOrders(ctx context.Context) ([]broker.OrderView, error) {
	var out []broker.OrderView
	if err := c.do(c.get(ctx, &out), http.MethodGet, "/orders"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	var out []broker.Position
	if err := c.do(c.get(ctx, &out), http.MethodGet, "/positions"); err != nil {
		return nil, err
	}
	return out, nil
}

// ClosedPositions returns the closing deals of ticket. A ticket the bridge
// has no history for yields an empty slice.
func (c *Client) ClosedPositions(ctx context.Context, ticket uint64) ([]broker.ClosedPosition, error) {
	var out []broker.ClosedPosition
	path := "/history/positions/" + strconv.FormatUint(ticket, 10)
	if err := c.do(c.get(ctx, &out), http.MethodGet, path); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func notFound(err error, ticket uint64) error {
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("order %d: %w", ticket, broker.ErrOrderNotFound)
	}
	return err
}

// ---- market.Provider ----

type tickJSON struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"` // unix seconds
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
}

type barJSON struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"tick_volume"`
}

type symbolJSON struct {
	Name         string   `json:"name"`
	Digits       int      `json:"digits"`
	Point        float64  `json:"point"`
	ContractSize float64  `json:"trade_contract_size"`
	VolumeStep   float64  `json:"volume_step"`
	VolumeMin    float64  `json:"volume_min"`
	VolumeMax    float64  `json:"volume_max"`
	TickValue    float64  `json:"trade_tick_value"`
	TickSize     float64  `json:"trade_tick_size"`
	Bid          *float64 `json:"bid"`
	Ask          *float64 `json:"ask"`
	Profit       string   `json:"currency_profit"`
}

func (c *Client) Tick(ctx context.Context, symbol string) (market.Tick, error) {
	var t tickJSON
	path := "/ticks/" + symbol
	if err := c.do(c.get(ctx, &t), http.MethodGet, path); err != nil {
		return market.Tick{}, noData(err)
	}
	if t.Bid == 0 && t.Ask == 0 {
		return market.Tick{}, fmt.Errorf("tick %s: %w", symbol, market.ErrNoData)
	}
	return market.Tick{
		Symbol: symbol,
		Time:   time.Unix(t.Time, 0).UTC(),
		Bid:    t.Bid,
		Ask:    t.Ask,
		Last:   t.Last,
		Volume: t.Volume,
	}, nil
}

func (c *Client) Bars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	var rows []barJSON
	path := "/bars/" + symbol
	r := c.get(ctx, &rows).SetQueryParams(map[string]string{
		"timeframe": string(tf),
		"count":     strconv.Itoa(count),
	})
	if err := c.do(r, http.MethodGet, path); err != nil {
		return nil, noData(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, market.ErrNoData)
	}
	bars := make([]market.Bar, len(rows))
	for i, b := range rows {
		bars[i] = market.Bar{
			Time:   time.Unix(b.Time, 0).UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return bars, nil
}

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	var s symbolJSON
	path := "/symbols/" + symbol
	if err := c.do(c.get(ctx, &s), http.MethodGet, path); err != nil {
		if errors.Is(err, errNotFound) {
			return market.SymbolInfo{}, fmt.Errorf("symbol info %s: %w", symbol, market.ErrUnknownSymbol)
		}
		return market.SymbolInfo{}, err
	}
	if s.Name == "" {
		s.Name = symbol
	}
	return market.SymbolInfo{
		Symbol:        s.Name,
		Digits:        s.Digits,
		Point:         s.Point,
		ContractSize:  s.ContractSize,
		LotStep:       s.VolumeStep,
		MinLot:        s.VolumeMin,
		MaxLot:        s.VolumeMax,
		TickValue:     s.TickValue,
		TickSize:      s.TickSize,
		Bid:           s.Bid,
		Ask:           s.Ask,
		QuoteCurrency: s.Profit,
	}, nil
}

// noData turns the bridge's 404 for a known-but-empty series into
// market.ErrNoData.
func noData(err error) error {
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %w", market.ErrNoData, err)
	}
	return err
}
