package rpc

import (
	"encoding/json"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// TradingHandler handles the market.*, order.*, position.* and swap.*
// methods.
type TradingHandler struct {
	tradingSvc ports.TradingService
}

// NewTradingHandler creates a new TradingHandler.
func NewTradingHandler(tradingSvc ports.TradingService) *TradingHandler {
	return &TradingHandler{tradingSvc: tradingSvc}
}

// ListMarkets handles market.list.
func (h *TradingHandler) ListMarkets(c *gin.Context, params json.RawMessage) (any, error) {
	var p MarketListParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	markets, err := h.tradingSvc.ListMarkets(c.Request.Context(), ports.MarketListParams{
		Query:  p.Query,
		Active: p.Active,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"markets": markets}, nil
}

// GetQuote handles market.quote.
func (h *TradingHandler) GetQuote(c *gin.Context, params json.RawMessage) (any, error) {
	var p QuoteParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	quote, err := h.tradingSvc.GetQuote(c.Request.Context(), p.TokenID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, apperror.ErrMarketNotFound(p.TokenID)
	}
	return quote, nil
}

// PlaceOrder handles order.place.
func (h *TradingHandler) PlaceOrder(c *gin.Context, params json.RawMessage) (any, error) {
	var p PlaceOrderParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	order, err := h.tradingSvc.PlaceOrder(c.Request.Context(), ports.PlaceOrderRequest{
		UserID:        callerID(c),
		ClientOrderID: p.ClientOrderID,
		MarketID:      p.MarketID,
		TokenID:       p.TokenID,
		Side:          domain.OrderSide(p.Side),
		Size:          p.Size,
		LimitPrice:    p.LimitPrice,
		Password:      p.Password,
	})
	if err != nil {
		return nil, err
	}
	return toOrderResult(order), nil
}

// ListOrders handles order.list.
func (h *TradingHandler) ListOrders(c *gin.Context, params json.RawMessage) (any, error) {
	var p OrderListParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	orders, err := h.tradingSvc.ListOrders(c.Request.Context(), callerID(c), p.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]OrderResult, 0, len(orders))
	for i := range orders {
		results = append(results, toOrderResult(&orders[i]))
	}
	return gin.H{"orders": results}, nil
}

// RedeemPositions handles position.redeem.
func (h *TradingHandler) RedeemPositions(c *gin.Context, params json.RawMessage) (any, error) {
	var p RedeemParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	sig, err := h.tradingSvc.RedeemPositions(c.Request.Context(), ports.RedeemRequest{
		UserID:   callerID(c),
		MarketID: p.MarketID,
		Password: p.Password,
	})
	if err != nil {
		return nil, err
	}
	return SignatureResult{TxSignature: sig}, nil
}

// Swap handles swap.execute.
func (h *TradingHandler) Swap(c *gin.Context, params json.RawMessage) (any, error) {
	var p SwapParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	sig, err := h.tradingSvc.Swap(c.Request.Context(), ports.SwapRequest{
		UserID:      callerID(c),
		FromTokenID: p.FromTokenID,
		ToTokenID:   p.ToTokenID,
		Amount:      p.Amount,
		Password:    p.Password,
	})
	if err != nil {
		return nil, err
	}
	return SignatureResult{TxSignature: sig}, nil
}
