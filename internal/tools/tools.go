// Package tools binds exchange operations to MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/amanasmuei/lunomcp/internal/luno"
	"github.com/amanasmuei/lunomcp/internal/mcp"
)

// Exchange is the part of the exchange client the tools use.
type Exchange interface {
	HasCredentials() bool

	Ticker(ctx context.Context, pair string) (json.RawMessage, error)
	Tickers(ctx context.Context) (json.RawMessage, error)
	Markets(ctx context.Context) (json.RawMessage, error)
	OrderBook(ctx context.Context, pair string) (json.RawMessage, error)
	Trades(ctx context.Context, pair string, since int64) (json.RawMessage, error)

	Balances(ctx context.Context) (json.RawMessage, error)
	Transactions(ctx context.Context, accountID string, minRow, maxRow int64) (json.RawMessage, error)
	PendingTransactions(ctx context.Context, accountID string) (json.RawMessage, error)
	ListOrders(ctx context.Context, state, pair string) (json.RawMessage, error)
	GetOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	PostOrder(ctx context.Context, order luno.OrderRequest) (json.RawMessage, error)
	StopOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	FeeInfo(ctx context.Context, pair string) (json.RawMessage, error)
	Candles(ctx context.Context, pair string, since, duration int64) (*luno.Candles, error)
}

var _ Exchange = (*luno.Client)(nil)

// openOrderState is the order state get_open_orders filters on by default.
const openOrderState = "PENDING"

type toolset struct {
	ex    Exchange
	clock clock.PassiveClock
}

// Register adds every exchange tool to d. clk supplies "now" for relative
// time windows; nil means the wall clock.
func Register(d *mcp.Dispatcher, ex Exchange, clk clock.PassiveClock) error {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ts := &toolset{ex: ex, clock: clk}

	for _, def := range ts.definitions() {
		if err := d.Register(def); err != nil {
			return errors.Wrapf(err, "register %s", def.Name)
		}
	}
	return nil
}

func (ts *toolset) definitions() []mcp.ToolDefinition {
	return []mcp.ToolDefinition{
		{
			Tool: tool("get_crypto_price", "Get the current price of a trading pair, with bid, ask and 24h volume.",
				object([]string{"pair"}, props{"pair": pairProp})),
			Call: ts.cryptoPrice,
		},
		{
			Tool: tool("get_market_overview", "Get an overview of all markets on the exchange.", object(nil, nil)),
			Call: ts.marketOverview,
		},
		{
			Tool: tool("get_orderbook", "Get the top of the order book for a trading pair.",
				object([]string{"pair"}, props{"pair": pairProp})),
			Call: ts.orderBook,
		},
		{
			Tool: tool("get_recent_trades", "Get recent trades for a trading pair.",
				object([]string{"pair"}, props{
					"pair":  pairProp,
					"since": {Type: "integer", Description: "Only trades after this Unix timestamp in milliseconds"},
				})),
			Call: ts.recentTrades,
		},
		{
			Tool: tool("get_all_tickers", "Get the tickers of every trading pair.", object(nil, nil)),
			Call: ts.allTickers,
		},
		{
			Tool: tool("check_api_health", "Check that the exchange API is reachable and responding.", object(nil, nil)),
			Call: ts.apiHealth,
		},
		{
			Tool:         tool("get_account_balance", "Get the balances of all accounts.", object(nil, nil)),
			RequiresAuth: true,
			Call:         ts.accountBalance,
		},
		{
			Tool:         tool("get_accounts", "List the accounts with their IDs and currencies.", object(nil, nil)),
			RequiresAuth: true,
			Call:         ts.accounts,
		},
		{
			Tool: tool("list_orders", "List orders, optionally filtered by state and pair.",
				object(nil, props{
					"state": {Type: "string", Description: "Order state", Enum: []string{"PENDING", "COMPLETE"}},
					"pair":  pairProp,
				})),
			RequiresAuth: true,
			Call:         ts.listOrders,
		},
		{
			Tool: tool("get_open_orders", "List open orders, optionally filtered by pair.",
				object(nil, props{
					"pair":  pairProp,
					"state": {Type: "string", Description: "Order state", Enum: []string{"PENDING", "COMPLETE"}, Default: openOrderState},
				})),
			RequiresAuth: true,
			Call:         ts.openOrders,
		},
		{
			Tool: tool("place_order", "Place a limit order.",
				object([]string{"type", "pair"}, props{
					"type":               {Type: "string", Description: "BID to buy, ASK to sell", Enum: []string{"BID", "ASK"}},
					"pair":               pairProp,
					"price":              {Type: "string", Description: "Limit price per unit in the counter currency"},
					"volume":             {Type: "string", Description: "Amount of the base currency"},
					"base_account_id":    {Type: "string", Description: "Account to use for the base currency"},
					"counter_account_id": {Type: "string", Description: "Account to use for the counter currency"},
				})),
			RequiresAuth: true,
			Call:         ts.placeOrder,
		},
		{
			Tool: tool("cancel_order", "Cancel an open order.",
				object([]string{"order_id"}, props{"order_id": orderIDProp})),
			RequiresAuth: true,
			Call:         ts.cancelOrder,
		},
		{
			Tool: tool("get_order_status", "Get the details and status of an order.",
				object([]string{"order_id"}, props{"order_id": orderIDProp})),
			RequiresAuth: true,
			Call:         ts.orderStatus,
		},
		{
			Tool: tool("get_transaction_history", "Get the transactions of an account.",
				object([]string{"account_id"}, props{
					"account_id": {Type: "string", Description: "Account ID"},
					"min_row":    {Type: "integer", Description: "First row to return"},
					"max_row":    {Type: "integer", Description: "Row after the last one to return"},
				})),
			RequiresAuth: true,
			Call:         ts.transactionHistory,
		},
		{
			Tool: tool("get_pending_transactions", "Get the pending transactions of an account.",
				object([]string{"account_id"}, props{
					"account_id": {Type: "string", Description: "Account ID"},
				})),
			RequiresAuth: true,
			Call:         ts.pendingTransactions,
		},
		{
			Tool: tool("get_fees", "Get the trading fees for a pair.",
				object([]string{"pair"}, props{"pair": pairProp})),
			RequiresAuth: true,
			Call:         ts.fees,
		},
		{
			Tool: tool("get_historical_prices", "Get OHLC candles for a trading pair.",
				object([]string{"pair", "since"}, props{
					"pair":     pairProp,
					"since":    {Type: "integer", Description: "Start as Unix timestamp in milliseconds; up to 1000 candles are returned"},
					"duration": {Type: "integer", Description: "Candle duration in seconds", Default: defaultDuration},
				})),
			RequiresAuth: true,
			Call:         ts.historicalPrices,
		},
		{
			Tool: tool("get_price_range", "Get price statistics for a trading pair over the last few days.",
				object([]string{"pair"}, props{
					"pair": pairProp,
					"days": {Type: "integer", Description: "Number of days, 1 to 30", Default: defaultDays, Minimum: intPtr(minDays), Maximum: intPtr(maxDays)},
				})),
			RequiresAuth: true,
			Call:         ts.priceRange,
		},
	}
}

func (ts *toolset) cryptoPrice(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	raw, err := ts.ex.Ticker(ctx, pair)
	if err != nil {
		return nil, err
	}

	var ticker map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return nil, errors.Wrap(err, "decode ticker")
	}
	out := map[string]any{"pair": pair}
	for _, field := range []string{"ask", "bid", "last_trade", "rolling_24_hour_volume", "timestamp", "status"} {
		if v, ok := ticker[field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

func (ts *toolset) marketOverview(ctx context.Context, args mcp.Arguments) (any, error) {
	raw, err := ts.ex.Markets(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"markets": raw}, nil
}

func (ts *toolset) orderBook(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	return ts.ex.OrderBook(ctx, pair)
}

func (ts *toolset) recentTrades(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	since, err := args.IntOr("since", 0)
	if err != nil {
		return nil, err
	}
	return ts.ex.Trades(ctx, pair, since)
}

func (ts *toolset) allTickers(ctx context.Context, args mcp.Arguments) (any, error) {
	raw, err := ts.ex.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	tickers, err := listField(raw, "tickers")
	if err != nil {
		return nil, err
	}
	return map[string]any{"tickers": tickers, "ticker_count": len(tickers)}, nil
}

func (ts *toolset) apiHealth(ctx context.Context, args mcp.Arguments) (any, error) {
	if err := ts.checkAPI(ctx); err != nil {
		return map[string]any{
			"api_healthy": false,
			"status":      "warning",
			"message":     "API may be experiencing issues",
			"error":       err.Error(),
		}, nil
	}
	return map[string]any{
		"api_healthy": true,
		"status":      "success",
		"message":     "API is responding normally",
	}, nil
}

// checkAPI probes the exchange with the cheapest public call.
func (ts *toolset) checkAPI(ctx context.Context) error {
	_, err := ts.ex.Tickers(ctx)
	return err
}

func (ts *toolset) accountBalance(ctx context.Context, args mcp.Arguments) (any, error) {
	return ts.ex.Balances(ctx)
}

func (ts *toolset) accounts(ctx context.Context, args mcp.Arguments) (any, error) {
	raw, err := ts.ex.Balances(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := listField(raw, "balance")
	if err != nil {
		return nil, err
	}
	return map[string]any{"accounts": accounts, "account_count": len(accounts)}, nil
}

func (ts *toolset) listOrders(ctx context.Context, args mcp.Arguments) (any, error) {
	state, _, err := args.OptionalString("state")
	if err != nil {
		return nil, err
	}
	pair, _, err := args.OptionalString("pair")
	if err != nil {
		return nil, err
	}
	return ts.ex.ListOrders(ctx, strings.ToUpper(state), normalizePair(pair))
}

func (ts *toolset) openOrders(ctx context.Context, args mcp.Arguments) (any, error) {
	state, _, err := args.OptionalString("state")
	if err != nil {
		return nil, err
	}
	if state = strings.ToUpper(strings.TrimSpace(state)); state == "" {
		state = openOrderState
	}
	pair, _, err := args.OptionalString("pair")
	if err != nil {
		return nil, err
	}
	pair = normalizePair(pair)

	raw, err := ts.ex.ListOrders(ctx, state, pair)
	if err != nil {
		return nil, err
	}
	orders, err := listField(raw, "orders")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"orders":       orders,
		"order_count":  len(orders),
		"filter_pair":  pair,
		"filter_state": state,
	}, nil
}

func (ts *toolset) placeOrder(ctx context.Context, args mcp.Arguments) (any, error) {
	rawType, err := args.String("type")
	if err != nil {
		return nil, err
	}
	orderType, err := luno.ParseOrderType(rawType)
	if err != nil {
		return nil, mcp.InvalidParams("%s", err)
	}
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}

	order := luno.OrderRequest{Type: orderType, Pair: pair}
	for key, dst := range map[string]*string{
		"price":              &order.Price,
		"volume":             &order.Volume,
		"base_account_id":    &order.BaseAccountID,
		"counter_account_id": &order.CounterAccountID,
	} {
		if *dst, _, err = args.OptionalString(key); err != nil {
			return nil, err
		}
	}
	return ts.ex.PostOrder(ctx, order)
}

func (ts *toolset) cancelOrder(ctx context.Context, args mcp.Arguments) (any, error) {
	id, err := args.String("order_id")
	if err != nil {
		return nil, err
	}
	return ts.ex.StopOrder(ctx, id)
}

func (ts *toolset) orderStatus(ctx context.Context, args mcp.Arguments) (any, error) {
	id, err := args.String("order_id")
	if err != nil {
		return nil, err
	}
	return ts.ex.GetOrder(ctx, id)
}

func (ts *toolset) transactionHistory(ctx context.Context, args mcp.Arguments) (any, error) {
	account, err := args.String("account_id")
	if err != nil {
		return nil, err
	}
	minRow, err := args.IntOr("min_row", 0)
	if err != nil {
		return nil, err
	}
	maxRow, err := args.IntOr("max_row", 0)
	if err != nil {
		return nil, err
	}
	return ts.ex.Transactions(ctx, account, minRow, maxRow)
}

func (ts *toolset) pendingTransactions(ctx context.Context, args mcp.Arguments) (any, error) {
	account, err := args.String("account_id")
	if err != nil {
		return nil, err
	}
	raw, err := ts.ex.PendingTransactions(ctx, account)
	if err != nil {
		return nil, err
	}
	pending, err := listField(raw, "pending")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"account_id":    account,
		"pending":       pending,
		"pending_count": len(pending),
	}, nil
}

func (ts *toolset) fees(ctx context.Context, args mcp.Arguments) (any, error) {
	pair, err := pairArg(args)
	if err != nil {
		return nil, err
	}
	return ts.ex.FeeInfo(ctx, pair)
}

// listField extracts the array under field of an exchange response. A missing
// or null field is an empty list.
func listField(raw json.RawMessage, field string) ([]json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrapf(err, "decode %s", field)
	}
	list := []json.RawMessage{}
	if v, ok := body[field]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &list); err != nil {
			return nil, errors.Wrapf(err, "decode %s", field)
		}
	}
	return list, nil
}

func pairArg(args mcp.Arguments) (string, error) {
	pair, err := args.String("pair")
	if err != nil {
		return "", err
	}
	return normalizePair(pair), nil
}

func normalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}
