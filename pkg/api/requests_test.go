package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/storage"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestPlaceOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   PlaceOrderRequest
		field string
		args  []string
	}{
		{"buy", PlaceOrderRequest{Side: "buy", Price: dec("5"), Quantity: dec("1.25"), UserID: "u1"}, "", []string{"buy", "5", "1.25", "u1", ""}},
		{"sell with producer", PlaceOrderRequest{Side: "SELL", Price: dec("5"), Quantity: dec("1"), UserID: "u1", ProducerID: "p1"}, "", []string{"sell", "5", "1", "u1", "p1"}},
		{"missing side", PlaceOrderRequest{Price: dec("5"), Quantity: dec("1"), UserID: "u1"}, "side", nil},
		{"unknown side", PlaceOrderRequest{Side: "hold", Price: dec("5"), Quantity: dec("1"), UserID: "u1"}, "side", nil},
		{"missing price", PlaceOrderRequest{Side: "buy", Quantity: dec("1"), UserID: "u1"}, "price", nil},
		{"zero price", PlaceOrderRequest{Side: "buy", Price: dec("0"), Quantity: dec("1"), UserID: "u1"}, "price", nil},
		{"negative quantity", PlaceOrderRequest{Side: "buy", Price: dec("5"), Quantity: dec("-1"), UserID: "u1"}, "quantity", nil},
		{"blank user", PlaceOrderRequest{Side: "buy", Price: dec("5"), Quantity: dec("1"), UserID: "  "}, "userId", nil},
		{"sell without producer", PlaceOrderRequest{Side: "sell", Price: dec("5"), Quantity: dec("1"), UserID: "u1"}, "producerId", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tt.req.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.args, args)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Nil(t, args)
		})
	}
}

func TestCreateConsumerRequest_Validate(t *testing.T) {
	ok := CreateConsumerRequest{
		ID: "consumer9", Beta: dec("0.5"), Theta: dec("12"),
		DemandMin: dec("1"), DemandMax: dec("20"), InitialBalance: dec("1000"),
	}
	args, err := ok.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{"consumer9", "0.5", "12", "1", "20", "1000"}, args)

	missing := ok
	missing.Theta = nil
	_, err = missing.Validate()
	assert.EqualError(t, err, "theta: theta is required")

	inverted := ok
	inverted.DemandMin = dec("30")
	_, err = inverted.Validate()
	assert.EqualError(t, err, "demandMin: demandMin must not exceed demandMax")

	negative := ok
	negative.InitialBalance = dec("-1")
	_, err = negative.Validate()
	assert.EqualError(t, err, "initialBalance: initialBalance must not be negative")
}

func TestTransferOwnershipRequest_Validate(t *testing.T) {
	_, err := TransferOwnershipRequest{ProducerID: "p1", CurrentOwnerID: "u1"}.Validate()
	assert.EqualError(t, err, "newOwnerId: newOwnerId is required")
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = parseLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, maxRecentTrades, n)

	for _, raw := range []string{"0", "-3", "ten"} {
		_, err := parseLimit(raw)
		assert.Error(t, err, raw)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		submit    bool
		status    int
		kind      string
		retryable bool
	}{
		{"validation", invalid("price", "price is required"), true, http.StatusBadRequest, KindInvalidRequest, false},
		{"identity", &ledger.Error{Kind: ledger.KindIdentityNotFound, Msg: "identity missing"}, false, http.StatusInternalServerError, "IdentityNotFound", false},
		{"connection", &ledger.Error{Kind: ledger.KindConnection, Msg: "unreachable"}, true, http.StatusServiceUnavailable, "ConnectionError", true},
		{"rejected", &ledger.Error{Kind: ledger.KindRejected, Msg: "no such producer"}, true, http.StatusInternalServerError, "LedgerRejected", false},
		{"read timeout", &ledger.Error{Kind: ledger.KindTimeout, Msg: "query timed out"}, false, http.StatusGatewayTimeout, "LedgerTimeout", true},
		{"submit timeout", &ledger.Error{Kind: ledger.KindTimeout, Msg: "outcome unknown"}, true, http.StatusGatewayTimeout, "LedgerTimeout", false},
		{"commit status lost", &ledger.Error{Kind: ledger.KindTimeout, Msg: "commit status unavailable; transaction outcome unknown"}, true, http.StatusGatewayTimeout, "LedgerTimeout", false},
		{"wrapped", fmt.Errorf("statistics: %w", &ledger.Error{Kind: ledger.KindConnection}), false, http.StatusServiceUnavailable, "ConnectionError", true},
		{"unclassified", errors.New("decode GetMarketState response: bad"), false, http.StatusInternalServerError, KindInternal, false},
		{"cancelled request", context.Canceled, false, http.StatusInternalServerError, KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err, tt.submit)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body.Error)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, storage.OutcomeCommitted, outcome(nil))
	assert.Equal(t, storage.OutcomeRejected, outcome(&ledger.Error{Kind: ledger.KindRejected}))
	assert.Equal(t, storage.OutcomeUnknown, outcome(&ledger.Error{Kind: ledger.KindTimeout}))
	assert.Equal(t, storage.OutcomeFailed, outcome(&ledger.Error{Kind: ledger.KindConnection}))
	assert.Equal(t, storage.OutcomeFailed, outcome(errors.New("boom")))
}
