package rpc

import (
	"net/http"
	"strings"
	"time"

	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"
	"prediction-trade-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for API key authentication
	HeaderKeyID  = "X-API-Key"
	HeaderSecret = "X-API-Secret"

	// Context keys
	CtxUserID = "user_id"
	CtxKeyID  = "key_id"
)

// Auth authenticates the request from either an API key pair or a bearer
// session token. Requests without credentials pass through anonymously;
// per-method authorization happens in the dispatcher so the public auth
// methods stay reachable.
func Auth(credSvc ports.CredentialService, tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.HTTPError(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			claims, err := tokenSvc.Validate(authHeader[7:])
			if err != nil {
				response.HTTPError(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxKeyID, claims.KeyID)
			c.Next()
			return
		}

		keyID := c.GetHeader(HeaderKeyID)
		secret := c.GetHeader(HeaderSecret)
		if keyID == "" && secret == "" {
			// Anonymous; only public methods will dispatch.
			c.Next()
			return
		}
		if keyID == "" || secret == "" {
			response.HTTPError(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		user, key, err := credSvc.Authenticate(c.Request.Context(), keyID, secret)
		if err != nil {
			response.HTTPError(c, err)
			c.Abort()
			return
		}

		c.Set(CtxUserID, user.ID)
		c.Set(CtxKeyID, key.KeyID)
		c.Next()
	}
}

// callerID returns the authenticated user id set by Auth. The dispatcher
// guarantees it is present for methods that require authentication.
func callerID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(CtxUserID)
	id, _ := v.(uuid.UUID)
	return id
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize limits request body size to prevent memory exhaustion.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
