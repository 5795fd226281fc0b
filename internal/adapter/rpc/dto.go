package rpc

import (
	"encoding/json"

	"prediction-trade-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// --- auth.* ---

// RedeemCodeParams are the params for auth.redeem_code.
type RedeemCodeParams struct {
	Code       string `json:"code"`
	ExternalID string `json:"external_id"`
}

// RedeemCodeResult is returned once; the secret is not recoverable later.
type RedeemCodeResult struct {
	UserID string `json:"user_id"`
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

// SessionParams are the params for auth.session.
type SessionParams struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

// SessionResult carries a short-lived bearer token.
type SessionResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// --- wallet.* ---

// WalletInfoResult describes the caller's active wallet.
type WalletInfoResult struct {
	PublicKey string `json:"public_key"`
	Kind      string `json:"kind"`
}

// ImportParams are the params for wallet.import. The bundle stays raw
// JSON here so the strict wire-format parser sees exactly what the
// client sent; its password is never sent at import.
type ImportParams struct {
	Bundle json.RawMessage `json:"bundle"`
}

// ExportParams are the params for wallet.export.
type ExportParams struct {
	Password string `json:"password"`
}

// BalanceResult is the wallet collateral balance.
type BalanceResult struct {
	Balance decimal.Decimal `json:"balance"`
}

// HoldingsResult lists the wallet's token positions.
type HoldingsResult struct {
	Holdings []domain.Holding `json:"holdings"`
}

// --- order.* / position.* / swap.* ---

// PlaceOrderParams are the params for order.place.
type PlaceOrderParams struct {
	ClientOrderID string          `json:"client_order_id"`
	MarketID      string          `json:"market_id"`
	TokenID       string          `json:"token_id"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	Password      string          `json:"password,omitempty"`
}

// OrderResult is the order record returned to the caller.
type OrderResult struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	MarketID      string  `json:"market_id"`
	TokenID       string  `json:"token_id"`
	Side          string  `json:"side"`
	Size          string  `json:"size"`
	LimitPrice    string  `json:"limit_price"`
	Status        string  `json:"status"`
	TxSignature   *string `json:"tx_signature,omitempty"`
}

// OrderListParams are the params for order.list.
type OrderListParams struct {
	Limit int `json:"limit,omitempty"`
}

// RedeemParams are the params for position.redeem.
type RedeemParams struct {
	MarketID string `json:"market_id"`
	Password string `json:"password,omitempty"`
}

// SwapParams are the params for swap.execute.
type SwapParams struct {
	FromTokenID string          `json:"from_token_id"`
	ToTokenID   string          `json:"to_token_id"`
	Amount      decimal.Decimal `json:"amount"`
	Password    string          `json:"password,omitempty"`
}

// SignatureResult carries the settlement signature of a submitted
// transaction.
type SignatureResult struct {
	TxSignature string `json:"tx_signature"`
}

// --- market.* ---

// MarketListParams are the params for market.list.
type MarketListParams struct {
	Query  string `json:"query,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// QuoteParams are the params for market.quote.
type QuoteParams struct {
	TokenID string `json:"token_id"`
}

func toOrderResult(order *domain.Order) OrderResult {
	return OrderResult{
		OrderID:       order.ID.String(),
		ClientOrderID: order.ClientOrderID,
		MarketID:      order.MarketID,
		TokenID:       order.TokenID,
		Side:          string(order.Side),
		Size:          order.Size.String(),
		LimitPrice:    order.LimitPrice.String(),
		Status:        string(order.Status),
		TxSignature:   order.TxSignature,
	}
}
