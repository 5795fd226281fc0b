// Package rpc exposes the gateway's tool-calling surface: a single
// JSON-RPC 2.0 endpoint dispatching to wallet, trading and auth methods.
package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	redisStore "prediction-trade-gateway/internal/adapter/storage/redis"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"
	"prediction-trade-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	CredentialSvc  ports.CredentialService
	WalletSvc      ports.WalletService
	TradingSvc     ports.TradingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// tool is one dispatchable method.
type tool struct {
	fn        toolFunc
	needsAuth bool
	group     string // rate limit bucket
}

// toolFunc executes a method against already-parsed params.
type toolFunc func(c *gin.Context, params json.RawMessage) (any, error)

// paramError marks a params-level JSON failure so the dispatcher can
// answer with the JSON-RPC invalid-params code instead of an app error.
type paramError struct {
	err error
}

func (e *paramError) Error() string { return e.err.Error() }

// bind unmarshals params into dst. Absent params bind to zero values so
// methods without required params accept a missing params field.
func bind(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &paramError{err: err}
	}
	return nil
}

// SetupRouter initialises the Gin engine with the RPC endpoint, health
// check and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(Recovery(deps.Logger))
	r.Use(RequestLogger(deps.Logger))
	r.Use(MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	authHandler := NewAuthHandler(deps.CredentialSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)
	tradingHandler := NewTradingHandler(deps.TradingSvc)

	registry := map[string]tool{
		"auth.redeem_code": {fn: authHandler.RedeemCode, group: "auth"},
		"auth.session":     {fn: authHandler.Session, group: "auth"},

		"wallet.generate": {fn: walletHandler.Generate, needsAuth: true, group: "wallet"},
		"wallet.import":   {fn: walletHandler.Import, needsAuth: true, group: "wallet"},
		"wallet.export":   {fn: walletHandler.Export, needsAuth: true, group: "wallet"},
		"wallet.info":     {fn: walletHandler.Info, needsAuth: true, group: "read"},
		"wallet.balance":  {fn: walletHandler.Balance, needsAuth: true, group: "read"},
		"wallet.holdings": {fn: walletHandler.Holdings, needsAuth: true, group: "read"},

		"market.list":  {fn: tradingHandler.ListMarkets, needsAuth: true, group: "read"},
		"market.quote": {fn: tradingHandler.GetQuote, needsAuth: true, group: "read"},

		"order.place":     {fn: tradingHandler.PlaceOrder, needsAuth: true, group: "signing"},
		"order.list":      {fn: tradingHandler.ListOrders, needsAuth: true, group: "read"},
		"position.redeem": {fn: tradingHandler.RedeemPositions, needsAuth: true, group: "signing"},
		"swap.execute":    {fn: tradingHandler.Swap, needsAuth: true, group: "signing"},
	}

	limiter := newRateLimiter(deps.RateLimitStore, DefaultRateLimitRules(), deps.Logger)
	auth := Auth(deps.CredentialSvc, deps.TokenSvc, deps.Logger)
	r.POST("/rpc", auth, dispatch(registry, limiter, deps.Logger))

	return r
}

// dispatch routes a JSON-RPC request to its registered tool. Envelope
// replies use HTTP 200 except rate limiting, which keeps 429 so clients
// honor Retry-After.
func dispatch(registry map[string]tool, limiter *rateLimiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusOK, response.ProtocolError(nil, response.CodeParseError, "cannot read request body"))
			return
		}

		var req response.Request
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusOK, response.ProtocolError(nil, response.CodeParseError, "parse error"))
			return
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			c.JSON(http.StatusOK, response.ProtocolError(req.ID, response.CodeInvalidRequest, "invalid request"))
			return
		}

		t, ok := registry[req.Method]
		if !ok {
			c.JSON(http.StatusOK, response.ProtocolError(req.ID, response.CodeMethodNotFound, "method not found: "+req.Method))
			return
		}

		if t.needsAuth {
			if _, authed := c.Get(CtxUserID); !authed {
				c.JSON(http.StatusOK, response.Error(req.ID, apperror.ErrInvalidAPIKey()))
				return
			}
		}

		if !limiter.allow(c, t.group) {
			c.JSON(http.StatusTooManyRequests, response.Error(req.ID, apperror.ErrRateLimitExceeded()))
			return
		}

		result, err := t.fn(c, req.Params)
		if err != nil {
			var pe *paramError
			if errors.As(err, &pe) {
				c.JSON(http.StatusOK, response.ProtocolError(req.ID, response.CodeInvalidParams, pe.Error()))
				return
			}
			log.Warn().Err(err).Str("rpc_method", req.Method).Msg("rpc call failed")
			c.JSON(http.StatusOK, response.Error(req.ID, err))
			return
		}

		c.JSON(http.StatusOK, response.Result(req.ID, result))
	}
}

// HealthCheck handles GET /health, verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
