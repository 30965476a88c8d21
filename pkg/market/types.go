// Package market derives price, volume and distribution views from ledger
// state. Every function is pure: callers pass the ledger reads and the
// current time, nothing is cached between calls.
package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Buy  OrderType = "buy"
	Sell OrderType = "sell"
)

// Order is a resting order as stored by the contract.
type Order struct {
	UserID     string    `json:"userId"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	OrderType  OrderType `json:"orderType"`
	Timestamp  string    `json:"timestamp"`
	ProducerID string    `json:"producerId,omitempty"` // sell orders only
}

// OrderBook holds bids sorted by price descending and asks ascending.
type OrderBook struct {
	Buy  []Order `json:"buy"`
	Sell []Order `json:"sell"`
}

// UnmarshalJSON keeps both sides non-nil so an empty book encodes as [].
func (b *OrderBook) UnmarshalJSON(data []byte) error {
	type raw OrderBook
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*b = OrderBook(r)
	if b.Buy == nil {
		b.Buy = []Order{}
	}
	if b.Sell == nil {
		b.Sell = []Order{}
	}
	return nil
}

// Trade is an entry of the append-only trade log.
type Trade struct {
	BuyerID       string          `json:"buyerId"`
	SellerID      string          `json:"sellerId"`
	ProducerID    string          `json:"producerId"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	TotalValue    decimal.Decimal `json:"totalValue"` // zero when the contract omitted it
	Timestamp     string          `json:"timestamp"`  // RFC3339
	BlockHeight   uint64          `json:"blockHeight"`
	TransactionID string          `json:"transactionId"`
}

// Value is the trade's total value, falling back to price*quantity.
func (t Trade) Value() decimal.Decimal {
	if !t.TotalValue.IsZero() {
		return t.TotalValue
	}
	return t.Price.Mul(t.Quantity)
}

type Producer struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"ownerId"`
	A             float64 `json:"a"` // quadratic cost coefficient
	B             float64 `json:"b"` // linear cost coefficient
	ProductionMin float64 `json:"productionMin"`
	ProductionMax float64 `json:"productionMax"`
	Production    float64 `json:"production"`
	Lambda        float64 `json:"lambda"` // marginal cost
	Cost          float64 `json:"cost"`
}

type Consumer struct {
	ID          string    `json:"id"`
	Beta        float64   `json:"beta"`
	Theta       float64   `json:"theta"`
	DemandMin   float64   `json:"demandMin"`
	DemandMax   float64   `json:"demandMax"`
	Demands     []float64 `json:"demands,omitempty"`
	TotalDemand float64   `json:"totalDemand"`
	Balance     float64   `json:"balance"`
	ProducerIDs []string  `json:"producerIds"`
}

type MarketState struct {
	Producers       []Producer `json:"producers"`
	Consumers       []Consumer `json:"consumers"`
	TotalGeneration float64    `json:"totalGeneration"`
	TotalDemand     float64    `json:"totalDemand"`
	SocialWelfare   float64    `json:"socialWelfare"`
	IterationCount  int        `json:"iterationCount"`
	Converged       bool       `json:"converged"`
}

// PriceSummary is the current-price view. CurrentPrice is null when the
// trade log is empty, in which case Message explains why.
type PriceSummary struct {
	CurrentPrice  *float64 `json:"currentPrice"`
	PriceChange   *float64 `json:"priceChange,omitempty"`
	LastTradeTime string   `json:"lastTradeTime,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// Window is the aggregate of trades inside the trailing 24h.
type Window struct {
	Volume       decimal.Decimal
	TradeCount   int
	AveragePrice decimal.Decimal
}

type MarketStatistics struct {
	TotalGenerationCapacity float64  `json:"totalGenerationCapacity"`
	TotalDemand             float64  `json:"totalDemand"`
	SocialWelfare           float64  `json:"socialWelfare"`
	Volume24h               float64  `json:"volume24h"`
	TradeCount24h           int      `json:"tradeCount24h"`
	AveragePrice24h         float64  `json:"averagePrice24h"`
	CurrentPrice            *float64 `json:"currentPrice"`
	PriceChange24h          float64  `json:"priceChange24h"`
	TotalBuyVolume          float64  `json:"totalBuyVolume"`
	TotalSellVolume         float64  `json:"totalSellVolume"`
	ProducerCount           int      `json:"producerCount"`
	ConsumerCount           int      `json:"consumerCount"`
}

// Distribution is one slice of a producer or consumer chart.
type Distribution struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Secondary float64 `json:"secondary"`
}

type Distributions struct {
	Producers []Distribution `json:"producers"`
	Consumers []Distribution `json:"consumers"`
}

// TradeView is a trade formatted for display.
type TradeView struct {
	BuyerID    string  `json:"buyerId"`
	SellerID   string  `json:"sellerId"`
	ProducerID string  `json:"producerId,omitempty"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	TotalValue float64 `json:"totalValue"`
	Timestamp  string  `json:"timestamp"`
}
