package rpc

import (
	"encoding/json"

	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/keybundle"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles the wallet.* methods.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Generate handles wallet.generate.
func (h *WalletHandler) Generate(c *gin.Context, _ json.RawMessage) (any, error) {
	info, err := h.walletSvc.Generate(c.Request.Context(), callerID(c))
	if err != nil {
		return nil, err
	}
	return WalletInfoResult{PublicKey: info.PublicKey, Kind: string(info.Kind)}, nil
}

// Import handles wallet.import. The bundle is persisted exactly as
// received after a format check; no password travels with an import.
// Parsing is strict: exactly the five known fields, anything extra or
// missing fails verification.
func (h *WalletHandler) Import(c *gin.Context, params json.RawMessage) (any, error) {
	var p ImportParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	bundle, err := keybundle.ParseJSON(p.Bundle)
	if err != nil {
		return nil, err
	}

	info, err := h.walletSvc.Import(c.Request.Context(), callerID(c), bundle)
	if err != nil {
		return nil, err
	}
	return WalletInfoResult{PublicKey: info.PublicKey, Kind: string(info.Kind)}, nil
}

// Export handles wallet.export.
func (h *WalletHandler) Export(c *gin.Context, params json.RawMessage) (any, error) {
	var p ExportParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	bundle, err := h.walletSvc.Export(c.Request.Context(), callerID(c), p.Password)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// Info handles wallet.info.
func (h *WalletHandler) Info(c *gin.Context, _ json.RawMessage) (any, error) {
	info, err := h.walletSvc.Resolve(c.Request.Context(), callerID(c))
	if err != nil {
		return nil, err
	}
	return WalletInfoResult{PublicKey: info.PublicKey, Kind: string(info.Kind)}, nil
}

// Balance handles wallet.balance.
func (h *WalletHandler) Balance(c *gin.Context, _ json.RawMessage) (any, error) {
	balance, err := h.walletSvc.Balance(c.Request.Context(), callerID(c))
	if err != nil {
		return nil, err
	}
	return BalanceResult{Balance: balance}, nil
}

// Holdings handles wallet.holdings.
func (h *WalletHandler) Holdings(c *gin.Context, _ json.RawMessage) (any, error) {
	holdings, err := h.walletSvc.Holdings(c.Request.Context(), callerID(c))
	if err != nil {
		return nil, err
	}
	return HoldingsResult{Holdings: holdings}, nil
}
