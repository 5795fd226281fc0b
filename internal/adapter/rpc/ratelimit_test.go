package rpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	redisStore "prediction-trade-gateway/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterContext(t *testing.T, keyID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/rpc", nil)
	if keyID != "" {
		c.Set(CtxKeyID, keyID)
	}
	return c, w
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := redisStore.NewRateLimitStore(client)

	rl := newRateLimiter(store, map[string]RateLimitRule{
		"signing": {Limit: 2, Window: time.Minute},
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		c, _ := newLimiterContext(t, "key-1")
		assert.True(t, rl.allow(c, "signing"), "request %d should pass", i+1)
	}

	c, w := newLimiterContext(t, "key-1")
	require.False(t, rl.allow(c, "signing"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_SeparateCallers(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := redisStore.NewRateLimitStore(client)

	rl := newRateLimiter(store, map[string]RateLimitRule{
		"signing": {Limit: 1, Window: time.Minute},
	}, zerolog.Nop())

	c, _ := newLimiterContext(t, "key-a")
	require.True(t, rl.allow(c, "signing"))

	c, _ = newLimiterContext(t, "key-b")
	assert.True(t, rl.allow(c, "signing"), "buckets are per caller")
}

func TestRateLimiter_UnknownGroupPasses(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := redisStore.NewRateLimitStore(client)

	rl := newRateLimiter(store, DefaultRateLimitRules(), zerolog.Nop())

	c, _ := newLimiterContext(t, "key-1")
	assert.True(t, rl.allow(c, "no-such-group"))
}

func TestRateLimiter_NilStorePasses(t *testing.T) {
	rl := newRateLimiter(nil, DefaultRateLimitRules(), zerolog.Nop())

	c, _ := newLimiterContext(t, "key-1")
	assert.True(t, rl.allow(c, "signing"))
}
