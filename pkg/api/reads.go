package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/energy-gateway/pkg/broadcast"
	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/market"
)

// decode unmarshals a contract response. An empty or null payload leaves
// the zero value.
func decode[T any](tx string, data []byte, v *T) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s response: %w", tx, err)
	}
	return nil
}

// evaluateJSON runs tx in a session of its own and decodes the result.
func evaluateJSON[T any](ctx context.Context, m *ledger.Manager, tx string, args ...string) (T, error) {
	var out T
	data, err := m.Evaluate(ctx, tx, args...)
	if err != nil {
		return out, err
	}
	err = decode(tx, data, &out)
	return out, err
}

// passthrough returns a contract response verbatim after checking it is JSON.
func passthrough(ctx context.Context, m *ledger.Manager, tx string, args ...string) (json.RawMessage, error) {
	data, err := m.Evaluate(ctx, tx, args...)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode %s response: invalid JSON", tx)
	}
	return json.RawMessage(data), nil
}

func readOrderBook(ctx context.Context, c ledger.Contract) (market.OrderBook, error) {
	book := market.OrderBook{Buy: []market.Order{}, Sell: []market.Order{}}
	data, err := c.Evaluate(ctx, ledger.TxGetOrderBook)
	if err != nil {
		return book, err
	}
	err = decode(ledger.TxGetOrderBook, data, &book)
	return book, err
}

func readTrades(ctx context.Context, c ledger.Contract, tx string, args ...string) ([]market.Trade, error) {
	var trades []market.Trade
	data, err := c.Evaluate(ctx, tx, args...)
	if err != nil {
		return nil, err
	}
	err = decode(tx, data, &trades)
	return trades, err
}

func readMarketState(ctx context.Context, c ledger.Contract) (market.MarketState, error) {
	var state market.MarketState
	data, err := c.Evaluate(ctx, ledger.TxGetMarketState)
	if err != nil {
		return state, err
	}
	err = decode(ledger.TxGetMarketState, data, &state)
	return state, err
}

// FetchOrderBook reads the order book in a session of its own. It is the
// polling function of every broadcast task.
func FetchOrderBook(m *ledger.Manager) broadcast.FetchFunc {
	return func(ctx context.Context) (market.OrderBook, error) {
		return ledger.WithSession(ctx, m, readOrderBook)
	}
}

// snapshot is the ledger state behind a statistics response, read
// concurrently within a single session.
type snapshot struct {
	state  market.MarketState
	trades []market.Trade
	book   market.OrderBook
}

func readSnapshot(ctx context.Context, c ledger.Contract) (snapshot, error) {
	var s snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.state, err = readMarketState(gctx, c)
		return err
	})
	g.Go(func() (err error) {
		s.trades, err = readTrades(gctx, c, ledger.TxGetTradeHistory)
		return err
	})
	g.Go(func() (err error) {
		s.book, err = readOrderBook(gctx, c)
		return err
	})
	err := g.Wait()
	return s, err
}

// parseBalance reads the bare number GetUserBalance returns.
func parseBalance(data []byte) (float64, error) {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("decode %s response: %w", ledger.TxGetUserBalance, err)
	}
	return d.InexactFloat64(), nil
}

const (
	defaultRecentTrades = 10
	maxRecentTrades     = 1000
)

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRecentTrades, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, invalid("limit", "limit must be a positive integer")
	}
	if n > maxRecentTrades {
		n = maxRecentTrades
	}
	return n, nil
}
