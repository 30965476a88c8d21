package api

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/energy-gateway/pkg/market"
)

// ValidationError rejects a request before any ledger call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, field+" is required")
	}
	return nil
}

func requiredNumber(field string, v *decimal.Decimal) error {
	if v == nil {
		return invalid(field, field+" is required")
	}
	return nil
}

func positive(field string, v *decimal.Decimal) error {
	if err := requiredNumber(field, v); err != nil {
		return err
	}
	if !v.IsPositive() {
		return invalid(field, field+" must be greater than zero")
	}
	return nil
}

func ordered(loField string, lo *decimal.Decimal, hiField string, hi *decimal.Decimal) error {
	if lo.GreaterThan(*hi) {
		return invalid(loField, loField+" must not exceed "+hiField)
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the order and returns the PlaceOrder arguments.
func (r PlaceOrderRequest) Validate() ([]string, error) {
	side := market.OrderType(strings.ToLower(strings.TrimSpace(r.Side)))
	if r.Side == "" {
		return nil, invalid("side", "side is required")
	}
	if side != market.Buy && side != market.Sell {
		return nil, invalid("side", `side must be "buy" or "sell"`)
	}
	if err := firstError(
		positive("price", r.Price),
		positive("quantity", r.Quantity),
		required("userId", r.UserID),
	); err != nil {
		return nil, err
	}
	if side == market.Sell && strings.TrimSpace(r.ProducerID) == "" {
		return nil, invalid("producerId", "Producer ID is required for sell orders")
	}
	return []string{string(side), r.Price.String(), r.Quantity.String(), r.UserID, r.ProducerID}, nil
}

func (r CreateConsumerRequest) Validate() ([]string, error) {
	if err := firstError(
		required("id", r.ID),
		requiredNumber("beta", r.Beta),
		requiredNumber("theta", r.Theta),
		requiredNumber("demandMin", r.DemandMin),
		requiredNumber("demandMax", r.DemandMax),
		requiredNumber("initialBalance", r.InitialBalance),
	); err != nil {
		return nil, err
	}
	if err := ordered("demandMin", r.DemandMin, "demandMax", r.DemandMax); err != nil {
		return nil, err
	}
	if r.InitialBalance.IsNegative() {
		return nil, invalid("initialBalance", "initialBalance must not be negative")
	}
	return []string{
		r.ID,
		r.Beta.String(),
		r.Theta.String(),
		r.DemandMin.String(),
		r.DemandMax.String(),
		r.InitialBalance.String(),
	}, nil
}

func (r CreateProducerRequest) Validate() ([]string, error) {
	if err := firstError(
		required("id", r.ID),
		requiredNumber("a", r.A),
		requiredNumber("b", r.B),
		requiredNumber("productionMin", r.ProductionMin),
		requiredNumber("productionMax", r.ProductionMax),
		required("ownerId", r.OwnerID),
	); err != nil {
		return nil, err
	}
	if err := ordered("productionMin", r.ProductionMin, "productionMax", r.ProductionMax); err != nil {
		return nil, err
	}
	return []string{
		r.ID,
		r.A.String(),
		r.B.String(),
		r.ProductionMin.String(),
		r.ProductionMax.String(),
		r.OwnerID,
	}, nil
}

func (r TransferOwnershipRequest) Validate() ([]string, error) {
	if err := firstError(
		required("producerId", r.ProducerID),
		required("currentOwnerId", r.CurrentOwnerID),
		required("newOwnerId", r.NewOwnerID),
	); err != nil {
		return nil, err
	}
	return []string{r.ProducerID, r.CurrentOwnerID, r.NewOwnerID}, nil
}

func (r RunMarketRequest) Validate() ([]string, error) {
	if err := positive("maxIterations", r.MaxIterations); err != nil {
		return nil, err
	}
	if !r.MaxIterations.IsInteger() {
		return nil, invalid("maxIterations", "maxIterations must be a whole number")
	}
	return []string{r.MaxIterations.String()}, nil
}
