package luno

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Ticker returns the latest ticker of pair.
func (c *Client) Ticker(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/ticker", query: url.Values{"pair": {pair}}})
}

// Tickers returns the tickers of all pairs.
func (c *Client) Tickers(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/tickers"})
}

// OrderBook returns the top of the order book of pair.
func (c *Client) OrderBook(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/orderbook_top", query: url.Values{"pair": {pair}}})
}

// Trades returns recent trades of pair, optionally since a Unix millisecond timestamp.
func (c *Client) Trades(ctx context.Context, pair string, since int64) (json.RawMessage, error) {
	q := url.Values{"pair": {pair}}
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/trades", query: q})
}

// Markets returns the exchange's market list.
func (c *Client) Markets(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/exchange/1/markets"})
}

// Balances returns the balances of all accounts.
func (c *Client) Balances(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/balance", auth: true})
}

// Transactions returns a row range of an account's transactions. Zero bounds
// are left to the exchange defaults.
func (c *Client) Transactions(ctx context.Context, accountID string, minRow, maxRow int64) (json.RawMessage, error) {
	q := url.Values{}
	if minRow > 0 {
		q.Set("min_row", strconv.FormatInt(minRow, 10))
	}
	if maxRow > 0 {
		q.Set("max_row", strconv.FormatInt(maxRow, 10))
	}
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/1/accounts/" + url.PathEscape(accountID) + "/transactions",
		query:  q,
		auth:   true,
	})
}

// PendingTransactions returns an account's pending transactions.
func (c *Client) PendingTransactions(ctx context.Context, accountID string) (json.RawMessage, error) {
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/1/accounts/" + url.PathEscape(accountID) + "/pending",
		auth:   true,
	})
}

// ListOrders returns orders, optionally filtered by state and pair.
func (c *Client) ListOrders(ctx context.Context, state, pair string) (json.RawMessage, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if pair != "" {
		q.Set("pair", pair)
	}
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/listorders", query: q, auth: true})
}

// GetOrder returns one order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/orders/" + url.PathEscape(orderID), auth: true})
}

// OrderType is the side of a limit order.
type OrderType string

const (
	Bid OrderType = "BID"
	Ask OrderType = "ASK"
)

// ParseOrderType accepts "bid"/"ask" in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case Bid, Ask:
		return t, nil
	}
	return "", errors.Errorf("order type must be BID or ASK, got %q", s)
}

// OrderRequest is a new limit order. Empty optional fields are omitted.
type OrderRequest struct {
	Type             OrderType
	Pair             string
	Price            string
	Volume           string
	BaseAccountID    string
	CounterAccountID string
}

func (o OrderRequest) form() url.Values {
	f := url.Values{"type": {string(o.Type)}, "pair": {o.Pair}}
	for key, v := range map[string]string{
		"price":              o.Price,
		"volume":             o.Volume,
		"base_account_id":    o.BaseAccountID,
		"counter_account_id": o.CounterAccountID,
	} {
		if v != "" {
			f.Set(key, v)
		}
	}
	return f
}

// PostOrder places a limit order.
func (c *Client) PostOrder(ctx context.Context, order OrderRequest) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodPost, path: "/api/1/postorder", form: order.form(), auth: true})
}

// StopOrder cancels an order.
func (c *Client) StopOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/1/stoporder",
		form:   url.Values{"order_id": {orderID}},
		auth:   true,
	})
}

// FeeInfo returns the account's fees for pair.
func (c *Client) FeeInfo(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.do(ctx, call{method: http.MethodGet, path: "/api/1/fee_info", query: url.Values{"pair": {pair}}, auth: true})
}

// Candle is one OHLCV bar. Prices are decimal strings as sent by the exchange.
type Candle struct {
	Timestamp int64  `json:"timestamp"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
}

// Candles is a candle series.
type Candles struct {
	Pair     string   `json:"pair"`
	Duration int64    `json:"duration"`
	Candles  []Candle `json:"candles"`
}

// Candles returns up to 1000 candles of duration seconds starting at since
// (Unix milliseconds).
func (c *Client) Candles(ctx context.Context, pair string, since, duration int64) (*Candles, error) {
	raw, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/exchange/1/candles",
		query: url.Values{
			"pair":     {strings.ToUpper(pair)},
			"since":    {strconv.FormatInt(since, 10)},
			"duration": {strconv.FormatInt(duration, 10)},
		},
		auth: true,
	})
	if err != nil {
		return nil, err
	}

	var out Candles
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode candles")
	}
	return &out, nil
}
