package rpc

import (
	"fmt"
	"strconv"
	"time"

	redisStore "prediction-trade-gateway/internal/adapter/storage/redis"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for a method group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-group limits. Signing methods get
// the tightest bucket: each call burns a key decryption and a settlement
// round trip.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"auth":    {Limit: 10, Window: time.Minute},
		"read":    {Limit: 120, Window: time.Minute},
		"wallet":  {Limit: 30, Window: time.Minute},
		"signing": {Limit: 20, Window: time.Minute},
	}
}

// rateLimiter gates one method group. Methods share a bucket per caller.
type rateLimiter struct {
	store *redisStore.RateLimitStore
	rules map[string]RateLimitRule
	log   zerolog.Logger
}

func newRateLimiter(store *redisStore.RateLimitStore, rules map[string]RateLimitRule, log zerolog.Logger) *rateLimiter {
	return &rateLimiter{store: store, rules: rules, log: log}
}

// allow checks the caller's bucket for the method group and sets the rate
// limit headers. A store failure degrades to allowing the request.
func (rl *rateLimiter) allow(c *gin.Context, group string) bool {
	if rl == nil || rl.store == nil {
		return true
	}
	rule, ok := rl.rules[group]
	if !ok {
		return true
	}

	key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)
	result, err := rl.store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
	if err != nil {
		rl.log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
		return true
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

	if !result.Allowed {
		retryAfter := result.ResetAt - time.Now().Unix()
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		return false
	}
	return true
}

// extractIdentifier determines the rate limit key source.
func extractIdentifier(c *gin.Context) string {
	if keyID, exists := c.Get(CtxKeyID); exists {
		return fmt.Sprintf("%v", keyID)
	}
	if ak := c.GetHeader(HeaderKeyID); ak != "" {
		return ak
	}
	return c.ClientIP()
}
