package api

import (
	"github.com/shopspring/decimal"
)

// API request and response types. Numeric request fields accept JSON
// numbers or numeric strings; a nil pointer means the field was absent.

// ==============================
// Requests
// ==============================

type PlaceOrderRequest struct {
	Side       string           `json:"side"` // "buy" or "sell"
	Price      *decimal.Decimal `json:"price"`
	Quantity   *decimal.Decimal `json:"quantity"`
	UserID     string           `json:"userId"`
	ProducerID string           `json:"producerId"` // required for sell orders
}

type CreateConsumerRequest struct {
	ID             string           `json:"id"`
	Beta           *decimal.Decimal `json:"beta"`
	Theta          *decimal.Decimal `json:"theta"`
	DemandMin      *decimal.Decimal `json:"demandMin"`
	DemandMax      *decimal.Decimal `json:"demandMax"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

type CreateProducerRequest struct {
	ID            string           `json:"id"`
	A             *decimal.Decimal `json:"a"` // quadratic cost coefficient
	B             *decimal.Decimal `json:"b"` // linear cost coefficient
	ProductionMin *decimal.Decimal `json:"productionMin"`
	ProductionMax *decimal.Decimal `json:"productionMax"`
	OwnerID       string           `json:"ownerId"`
}

type TransferOwnershipRequest struct {
	ProducerID     string `json:"producerId"`
	CurrentOwnerID string `json:"currentOwnerId"`
	NewOwnerID     string `json:"newOwnerId"`
}

type RunMarketRequest struct {
	MaxIterations *decimal.Decimal `json:"maxIterations"`
}

// ==============================
// Responses
// ==============================

// AckResponse acknowledges a committed submit.
type AckResponse struct {
	Status  string `json:"status"` // always "ok"
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"` // error kind, e.g. "LedgerTimeout"
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable"`
}

type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"` // connected websocket clients
}
