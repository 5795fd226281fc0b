package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a prediction-market order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks an order through submission and on-chain settlement.
//
// StatusUnknown is deliberate and distinct from StatusFailed: a
// confirmation timeout means the signed transaction may still land, so
// callers poll instead of resubmitting.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
)

// Order is a persisted record of a trade placed through the gateway.
// ClientOrderID is the caller's idempotency key, unique per user.
type Order struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	ClientOrderID string          `json:"client_order_id"`
	MarketID      string          `json:"market_id"`
	TokenID       string          `json:"token_id"`
	Side          OrderSide       `json:"side"`
	Size          decimal.Decimal `json:"size"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	Status        OrderStatus     `json:"status"`
	TxSignature   *string         `json:"tx_signature,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the order has reached a final state.
// UNKNOWN is not terminal: it resolves by polling confirmation.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusFailed
}
