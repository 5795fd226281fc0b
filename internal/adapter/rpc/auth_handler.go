package rpc

import (
	"encoding/json"

	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles the public auth.* methods.
type AuthHandler struct {
	credSvc ports.CredentialService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(credSvc ports.CredentialService) *AuthHandler {
	return &AuthHandler{credSvc: credSvc}
}

// RedeemCode handles auth.redeem_code: consumes a single-use access code
// and returns fresh API credentials. The secret appears here once.
func (h *AuthHandler) RedeemCode(c *gin.Context, params json.RawMessage) (any, error) {
	var p RedeemCodeParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}

	result, err := h.credSvc.RedeemAccessCode(c.Request.Context(), ports.RedeemCodeRequest{
		Code:       p.Code,
		ExternalID: p.ExternalID,
	})
	if err != nil {
		return nil, err
	}

	return RedeemCodeResult{
		UserID: result.UserID.String(),
		KeyID:  result.KeyID,
		Secret: result.Secret,
	}, nil
}

// Session handles auth.session: exchanges API credentials for a
// short-lived bearer token.
func (h *AuthHandler) Session(c *gin.Context, params json.RawMessage) (any, error) {
	var p SessionParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.KeyID == "" || p.Secret == "" {
		return nil, apperror.Validation("key_id and secret are required")
	}

	token, expiry, err := h.credSvc.IssueSession(c.Request.Context(), p.KeyID, p.Secret)
	if err != nil {
		return nil, err
	}

	return SessionResult{
		Token:     token,
		ExpiresAt: expiry.Unix(),
	}, nil
}
