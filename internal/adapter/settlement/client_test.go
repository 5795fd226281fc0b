package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"prediction-trade-gateway/config"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.SettlementConfig{
		BaseURL:        srv.URL,
		DataURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
		ConfirmTimeout: 100 * time.Millisecond,
		ConfirmPoll:    10 * time.Millisecond,
	}
	return NewClient(cfg, zerolog.Nop()), srv
}

func TestClient_BuildOrderTx(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/transactions/order", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"unsigned_tx": "dW5zaWduZWQ="})
	}))

	tx, err := client.BuildOrderTx(context.Background(), ports.BuildOrderTxRequest{
		PublicKey:  "signer-pubkey",
		MarketID:   "market-1",
		TokenID:    "token-yes",
		Side:       "BUY",
		Size:       decimal.NewFromInt(10),
		LimitPrice: decimal.RequireFromString("0.55"),
	})
	require.NoError(t, err)
	assert.Equal(t, "dW5zaWduZWQ=", tx)
	assert.Equal(t, "signer-pubkey", gotBody["public_key"])
	assert.Equal(t, "BUY", gotBody["side"])
	assert.Equal(t, "0.55", gotBody["limit_price"])
}

func TestClient_Submit(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transactions/submit", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["transaction"])
		assert.NotEmpty(t, body["signature"])
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": "sig-abc"})
	}))

	sig, err := client.Submit(context.Background(), ports.SubmitRequest{
		Transaction: "dHg=",
		Signature:   "c2ln",
		PublicKey:   "pubkey",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig-abc", sig)
}

func TestClient_WaitForConfirmation_Confirmed(t *testing.T) {
	var polls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transactions/sig-1/status", r.URL.Path)
		status := "pending"
		if atomic.AddInt32(&polls, 1) >= 3 {
			status = "confirmed"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))

	err := client.WaitForConfirmation(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestClient_WaitForConfirmation_Timeout(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))

	err := client.WaitForConfirmation(context.Background(), "sig-2")
	require.Error(t, err)
	assert.Equal(t, "EXT_003", apperror.Code(err), "elapsed window is a timeout, not a failure")
}

func TestClient_WaitForConfirmation_Failed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
	}))

	err := client.WaitForConfirmation(context.Background(), "sig-3")
	require.Error(t, err)
	assert.NotEqual(t, "EXT_003", apperror.Code(err))
}

func TestClient_WaitForConfirmation_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.WaitForConfirmation(ctx, "sig-4")
	require.Error(t, err)
	assert.Equal(t, "EXT_003", apperror.Code(err))
}

func TestClient_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.Submit(context.Background(), ports.SubmitRequest{Transaction: "dHg="})
	require.Error(t, err)
	assert.Equal(t, "EXT_002", apperror.Code(err))
}

func TestClient_ServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.Balance(context.Background(), "pubkey")
	require.Error(t, err)
	assert.Equal(t, "EXT_001", apperror.Code(err))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	cfg := config.SettlementConfig{
		BaseURL:        srv.URL,
		DataURL:        srv.URL,
		RequestTimeout: time.Second,
		ConfirmTimeout: time.Second,
		ConfirmPoll:    time.Second,
	}
	client := NewClient(cfg, zerolog.Nop())

	_, err := client.Balance(context.Background(), "pubkey")
	require.Error(t, err)
	assert.Equal(t, "EXT_001", apperror.Code(err))
}

func TestClient_Balance(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallets/pub-1/balance", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"balance": "123.45"})
	}))

	bal, err := client.Balance(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123.45").Equal(bal))
}

func TestClient_Holdings(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallets/pub-2/holdings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"holdings": []map[string]any{
				{"token_id": "token-yes", "symbol": "YES", "amount": "42", "decimals": 6},
			},
		})
	}))

	holdings, err := client.Holdings(context.Background(), "pub-2")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "token-yes", holdings[0].TokenID)
	assert.Equal(t, "42", holdings[0].Amount)
}

func TestClient_ListMarkets(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/markets", r.URL.Path)
		assert.Equal(t, "rain", r.URL.Query().Get("query"))
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"markets": []map[string]any{
				{"id": "market-1", "question": "Will it rain?", "active": true},
			},
		})
	}))

	active := true
	markets, err := client.ListMarkets(context.Background(), ports.MarketListParams{
		Query:  "rain",
		Active: &active,
		Limit:  25,
	})
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "market-1", markets[0].ID)
}

func TestClient_GetQuote(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/quotes/token-yes", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token_id": "token-yes", "bid": "0.52", "ask": "0.56", "mid": "0.54",
		})
	}))

	quote, err := client.GetQuote(context.Background(), "token-yes")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, decimal.RequireFromString("0.54").Equal(quote.Mid))
}

func TestClient_GetQuote_Unknown(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	quote, err := client.GetQuote(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, quote)
}
