// Package ledger manages per-call sessions against the energy market
// contract. Every logical operation acquires its own identity-bound
// connection, invokes the contract, and releases the connection before
// returning.
package ledger

import (
	"context"

	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

// Contract transaction names.
const (
	TxInitLedger                = "InitLedger"
	TxClearLedger               = "ClearLedger"
	TxPlaceOrder                = "PlaceOrder"
	TxMatchOrders               = "MatchOrders"
	TxInitMarket                = "InitMarket"
	TxUpdateMarket              = "UpdateMarket"
	TxRunMarketUntilConvergence = "RunMarketUntilConvergence"
	TxCreateConsumer            = "CreateConsumer"
	TxCreateProducer            = "CreateProducer"
	TxTransferProducerOwnership = "TransferProducerOwnership"

	TxGetBalance         = "GetBalance"
	TxGetOrderBook       = "GetOrderBook"
	TxGetTradeHistory    = "GetTradeHistory"
	TxGetRecentTrades    = "GetRecentTrades"
	TxGetMarketState     = "GetMarketState"
	TxGetUserBalance     = "GetUserBalance"
	TxGetUserTrades      = "GetUserTrades"
	TxGetProducerDetails = "GetProducerDetails"
)

// Contract is a bound chaincode. Submit orders and commits a mutating
// transaction; Evaluate runs a read-only query against one peer.
type Contract interface {
	Submit(ctx context.Context, tx string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error)
}

// Handle is exclusively owned by one session. Close must be called exactly
// once.
type Handle interface {
	Contract() Contract
	Close() error
}

// Connector opens a fresh Handle for the given identity.
type Connector interface {
	Connect(ctx context.Context, id *wallet.Identity) (Handle, error)
}
