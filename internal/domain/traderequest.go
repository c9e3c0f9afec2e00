package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeRequest is an ephemeral trade execution request. It is not entity
// state: the executor records the outcome on the request itself (status,
// error message, resulting position id) and persists it as an order record.
type TradeRequest struct {
	ID           string
	Symbol       string
	Signal       OrderSide
	Price        float64
	Quantity     float64
	Leverage     float64
	StrategyName string
	Confidence   float64
	Timestamp    time.Time
	Status       ExecutionStatus
	ErrorMessage string
	PositionID   string
}

// NewTradeRequest builds a pending request with a fresh id.
func NewTradeRequest(symbol string, signal OrderSide, price, quantity, leverage float64) *TradeRequest {
	return &TradeRequest{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Signal:     signal,
		Price:      price,
		Quantity:   quantity,
		Leverage:   leverage,
		Confidence: 100,
		Timestamp:  time.Now().UTC(),
		Status:     ExecPending,
	}
}

// Fail marks the request failed with a caller-visible reason.
func (r *TradeRequest) Fail(reason string) {
	r.Status = ExecFailed
	r.ErrorMessage = reason
}
