package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/internal/core/ports/mocks"
	"prediction-trade-gateway/pkg/apperror"
	"prediction-trade-gateway/pkg/keybundle"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type routerMocks struct {
	cred    *mocks.MockCredentialService
	wallet  *mocks.MockWalletService
	trading *mocks.MockTradingService
	token   *mocks.MockTokenService
}

func setupTestRouter(t *testing.T) (*gin.Engine, routerMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := routerMocks{
		cred:    mocks.NewMockCredentialService(ctrl),
		wallet:  mocks.NewMockWalletService(ctrl),
		trading: mocks.NewMockTradingService(ctrl),
		token:   mocks.NewMockTokenService(ctrl),
	}
	router := SetupRouter(RouterDeps{
		CredentialSvc: m.cred,
		WalletSvc:     m.wallet,
		TradingSvc:    m.trading,
		TokenSvc:      m.token,
		Logger:        zerolog.Nop(),
	})
	return router, m
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			ErrorCode string `json:"error_code"`
		} `json:"data"`
	} `json:"error"`
}

func rpcCall(t *testing.T, router *gin.Engine, method string, params any, headers map[string]string) (*httptest.ResponseRecorder, rpcEnvelope) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	router.ServeHTTP(w, httpReq)

	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

// authedHeaders wires a one-call Authenticate expectation and returns the
// matching request headers.
func authedHeaders(m routerMocks, userID uuid.UUID) map[string]string {
	m.cred.EXPECT().
		Authenticate(gomock.Any(), "key-1", "secret-1").
		Return(&domain.User{ID: userID}, &domain.APIKey{KeyID: "key-1"}, nil)
	return map[string]string{HeaderKeyID: "key-1", HeaderSecret: "secret-1"}
}

func TestRPC_ParseError(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("{not json")))
	router.ServeHTTP(w, req)

	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, -32700, env.Error.Code)
}

func TestRPC_InvalidRequest(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte(`{"jsonrpc":"1.0","method":"wallet.info"}`)))
	router.ServeHTTP(w, req)

	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, -32600, env.Error.Code)
}

func TestRPC_MethodNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	_, env := rpcCall(t, router, "wallet.destroy", nil, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, -32601, env.Error.Code)
}

func TestRPC_AuthRequired(t *testing.T) {
	router, _ := setupTestRouter(t)

	w, env := rpcCall(t, router, "wallet.generate", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, "envelope errors ride on 200")
	require.NotNil(t, env.Error)
	assert.Equal(t, "SEC_001", env.Error.Data.ErrorCode)
}

func TestRPC_BadCredentialsRejectedBeforeDispatch(t *testing.T) {
	router, m := setupTestRouter(t)

	m.cred.EXPECT().
		Authenticate(gomock.Any(), "key-x", "wrong").
		Return(nil, nil, apperror.ErrInvalidAPIKey())

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"wallet.generate"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set(HeaderKeyID, "key-x")
	req.Header.Set(HeaderSecret, "wrong")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRPC_PartialCredentialsRejected(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"wallet.generate"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set(HeaderKeyID, "key-only")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRedeemCode(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.cred.EXPECT().
		RedeemAccessCode(gomock.Any(), ports.RedeemCodeRequest{Code: "alpha-1", ExternalID: "agent-7"}).
		Return(&ports.RedeemCodeResponse{UserID: userID, KeyID: "kid", Secret: "shh"}, nil)

	_, env := rpcCall(t, router, "auth.redeem_code", RedeemCodeParams{Code: "alpha-1", ExternalID: "agent-7"}, nil)
	require.Nil(t, env.Error)

	var result RedeemCodeResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, userID.String(), result.UserID)
	assert.Equal(t, "kid", result.KeyID)
	assert.Equal(t, "shh", result.Secret)
}

func TestAuthSession(t *testing.T) {
	router, m := setupTestRouter(t)

	expiry := time.Now().Add(time.Hour)
	m.cred.EXPECT().
		IssueSession(gomock.Any(), "key-1", "secret-1").
		Return("jwt-token", expiry, nil)

	_, env := rpcCall(t, router, "auth.session", SessionParams{KeyID: "key-1", Secret: "secret-1"}, nil)
	require.Nil(t, env.Error)

	var result SessionResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "jwt-token", result.Token)
	assert.Equal(t, expiry.Unix(), result.ExpiresAt)
}

func TestAuthSession_MissingParams(t *testing.T) {
	router, _ := setupTestRouter(t)

	_, env := rpcCall(t, router, "auth.session", SessionParams{}, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VAL_001", env.Error.Data.ErrorCode)
}

func TestWalletGenerate(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.wallet.EXPECT().
		Generate(gomock.Any(), userID).
		Return(&domain.WalletInfo{PublicKey: "pub-1", Kind: domain.WalletKindGenerated}, nil)

	_, env := rpcCall(t, router, "wallet.generate", nil, authedHeaders(m, userID))
	require.Nil(t, env.Error)

	var result WalletInfoResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "pub-1", result.PublicKey)
	assert.Equal(t, "generated", result.Kind)
}

func TestWalletImport(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bundle, err := keybundle.Encrypt(priv, "correct horse battery")
	require.NoError(t, err)

	m.wallet.EXPECT().
		Import(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ any, _ uuid.UUID, b *keybundle.Bundle) (*domain.WalletInfo, error) {
			assert.Equal(t, bundle.PublicKey, b.PublicKey)
			assert.Equal(t, bundle.EncryptedKey, b.EncryptedKey)
			return &domain.WalletInfo{PublicKey: b.PublicKey, Kind: domain.WalletKindImported}, nil
		})

	_, env := rpcCall(t, router, "wallet.import", map[string]any{"bundle": bundle}, authedHeaders(m, userID))
	require.Nil(t, env.Error)

	var result WalletInfoResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "imported", result.Kind)
}

func TestWalletImport_InvalidParams(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	_, env := rpcCall(t, router, "wallet.import", map[string]any{"bundle": 5}, authedHeaders(m, userID))
	require.NotNil(t, env.Error)
	assert.Equal(t, "CRY_001", env.Error.Data.ErrorCode)
}

func TestWalletImport_RejectsUnknownBundleField(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bundle, err := keybundle.Encrypt(priv, "correct horse battery")
	require.NoError(t, err)

	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	fields["passwordHint"] = "first pet"

	// The wallet service has no Import expectation: a bundle with an
	// extra field must die in format verification, not get persisted.
	_, env := rpcCall(t, router, "wallet.import", map[string]any{"bundle": fields}, authedHeaders(m, userID))
	require.NotNil(t, env.Error)
	assert.Equal(t, "CRY_001", env.Error.Data.ErrorCode)
}

func TestWalletInfo_ViaBearerToken(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.token.EXPECT().
		Validate("session-jwt").
		Return(&ports.TokenClaims{UserID: userID, KeyID: "key-1"}, nil)
	m.wallet.EXPECT().
		Resolve(gomock.Any(), userID).
		Return(&domain.WalletInfo{PublicKey: "pub-2", Kind: domain.WalletKindImported}, nil)

	_, env := rpcCall(t, router, "wallet.info", nil, map[string]string{"Authorization": "Bearer session-jwt"})
	require.Nil(t, env.Error)

	var result WalletInfoResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "imported", result.Kind)
}

func TestWalletInfo_BadToken(t *testing.T) {
	router, m := setupTestRouter(t)

	m.token.EXPECT().Validate("garbage").Return(nil, errors.New("bad token"))

	w, _ := rpcCall(t, router, "wallet.info", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderPlace(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	sig := "sig-1"
	m.trading.EXPECT().
		PlaceOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req ports.PlaceOrderRequest) (*domain.Order, error) {
			assert.Equal(t, userID, req.UserID)
			assert.Equal(t, "client-1", req.ClientOrderID)
			assert.Equal(t, domain.OrderSideBuy, req.Side)
			assert.True(t, decimal.RequireFromString("0.55").Equal(req.LimitPrice))
			return &domain.Order{
				ID:            uuid.New(),
				UserID:        userID,
				ClientOrderID: req.ClientOrderID,
				MarketID:      req.MarketID,
				TokenID:       req.TokenID,
				Side:          req.Side,
				Size:          req.Size,
				LimitPrice:    req.LimitPrice,
				Status:        domain.OrderStatusConfirmed,
				TxSignature:   &sig,
			}, nil
		})

	params := PlaceOrderParams{
		ClientOrderID: "client-1",
		MarketID:      "market-1",
		TokenID:       "token-yes",
		Side:          "BUY",
		Size:          decimal.NewFromInt(10),
		LimitPrice:    decimal.RequireFromString("0.55"),
	}
	_, env := rpcCall(t, router, "order.place", params, authedHeaders(m, userID))
	require.Nil(t, env.Error)

	var result OrderResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "CONFIRMED", result.Status)
	require.NotNil(t, result.TxSignature)
	assert.Equal(t, "sig-1", *result.TxSignature)
}

func TestOrderPlace_ServiceError(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.trading.EXPECT().
		PlaceOrder(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrDuplicateOrder())

	_, env := rpcCall(t, router, "order.place", PlaceOrderParams{ClientOrderID: "dup"}, authedHeaders(m, userID))
	require.NotNil(t, env.Error)
	assert.Equal(t, "MKT_003", env.Error.Data.ErrorCode)
}

func TestMarketQuote_NotFound(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.trading.EXPECT().GetQuote(gomock.Any(), "no-such").Return(nil, nil)

	_, env := rpcCall(t, router, "market.quote", QuoteParams{TokenID: "no-such"}, authedHeaders(m, userID))
	require.NotNil(t, env.Error)
	assert.Equal(t, "MKT_001", env.Error.Data.ErrorCode)
}

func TestPositionRedeem(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.trading.EXPECT().
		RedeemPositions(gomock.Any(), ports.RedeemRequest{UserID: userID, MarketID: "market-1", Password: "pw-123456789012"}).
		Return("sig-redeem", nil)

	params := RedeemParams{MarketID: "market-1", Password: "pw-123456789012"}
	_, env := rpcCall(t, router, "position.redeem", params, authedHeaders(m, userID))
	require.Nil(t, env.Error)

	var result SignatureResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "sig-redeem", result.TxSignature)
}

type healthCheckerFunc struct {
	name string
	err  error
}

func (h healthCheckerFunc) Ping(context.Context) error { return h.err }
func (h healthCheckerFunc) Name() string               { return h.name }

func TestHealthCheck(t *testing.T) {
	healthy := healthCheckerFunc{name: "postgres", err: nil}
	sick := healthCheckerFunc{name: "redis", err: errors.New("connection refused")}

	router := SetupRouter(RouterDeps{
		HealthCheckers: []ports.HealthChecker{healthy, sick},
		Logger:         zerolog.Nop(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

func TestOrderList(t *testing.T) {
	router, m := setupTestRouter(t)

	userID := uuid.New()
	m.trading.EXPECT().
		ListOrders(gomock.Any(), userID, 5).
		Return([]domain.Order{
			{ID: uuid.New(), UserID: userID, ClientOrderID: "c-1", Status: domain.OrderStatusConfirmed},
		}, nil)

	_, env := rpcCall(t, router, "order.list", OrderListParams{Limit: 5}, authedHeaders(m, userID))
	require.Nil(t, env.Error)

	var result struct {
		Orders []OrderResult `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "c-1", result.Orders[0].ClientOrderID)
}
