// Package settlement is the HTTP client for the external settlement and
// market data services. Key material never crosses this boundary: the
// client only carries public keys, unsigned payloads and signatures.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"prediction-trade-gateway/config"
	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.SettlementClient and ports.MarketDataClient.
type Client struct {
	baseURL        string
	dataURL        string
	httpClient     HTTPClient
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	log            zerolog.Logger
}

// NewClient creates a settlement client from configuration.
func NewClient(cfg config.SettlementConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		dataURL:        cfg.DataURL,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		confirmTimeout: cfg.ConfirmTimeout,
		confirmPoll:    cfg.ConfirmPoll,
		log:            log,
	}
}

// NewClientWithHTTP creates a settlement client with a custom HTTP
// client, used by tests.
func NewClientWithHTTP(cfg config.SettlementConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	c := NewClient(cfg, log)
	c.httpClient = httpClient
	return c
}

type buildTxResponse struct {
	UnsignedTx string `json:"unsigned_tx"`
}

type submitResponse struct {
	Signature string `json:"signature"`
}

type statusResponse struct {
	Status string `json:"status"` // pending, confirmed, failed
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type holdingsResponse struct {
	Holdings []domain.Holding `json:"holdings"`
}

// BuildOrderTx asks the settlement service for an unsigned order
// transaction for the given signer.
func (c *Client) BuildOrderTx(ctx context.Context, req ports.BuildOrderTxRequest) (string, error) {
	body := map[string]any{
		"public_key":  req.PublicKey,
		"market_id":   req.MarketID,
		"token_id":    req.TokenID,
		"side":        req.Side,
		"size":        req.Size,
		"limit_price": req.LimitPrice,
	}
	var out buildTxResponse
	if err := c.post(ctx, c.baseURL+"/v1/transactions/order", body, &out); err != nil {
		return "", err
	}
	return out.UnsignedTx, nil
}

// BuildRedeemTx asks for an unsigned redemption transaction.
func (c *Client) BuildRedeemTx(ctx context.Context, publicKey, marketID string) (string, error) {
	body := map[string]any{
		"public_key": publicKey,
		"market_id":  marketID,
	}
	var out buildTxResponse
	if err := c.post(ctx, c.baseURL+"/v1/transactions/redeem", body, &out); err != nil {
		return "", err
	}
	return out.UnsignedTx, nil
}

// BuildSwapTx asks for an unsigned swap transaction.
func (c *Client) BuildSwapTx(ctx context.Context, req ports.BuildSwapTxRequest) (string, error) {
	body := map[string]any{
		"public_key":    req.PublicKey,
		"from_token_id": req.FromTokenID,
		"to_token_id":   req.ToTokenID,
		"amount":        req.Amount,
	}
	var out buildTxResponse
	if err := c.post(ctx, c.baseURL+"/v1/transactions/swap", body, &out); err != nil {
		return "", err
	}
	return out.UnsignedTx, nil
}

// Submit sends the signed transaction and returns its signature id.
func (c *Client) Submit(ctx context.Context, req ports.SubmitRequest) (string, error) {
	body := map[string]any{
		"transaction": req.Transaction,
		"signature":   req.Signature,
		"public_key":  req.PublicKey,
	}
	var out submitResponse
	if err := c.post(ctx, c.baseURL+"/v1/transactions/submit", body, &out); err != nil {
		return "", err
	}
	return out.Signature, nil
}

// WaitForConfirmation polls transaction status until it confirms, fails,
// or the confirmation window elapses. Elapsing is reported as a timeout,
// never a failure: the transaction may still land.
func (c *Client) WaitForConfirmation(ctx context.Context, signature string) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		var out statusResponse
		err := c.get(ctx, c.baseURL+"/v1/transactions/"+url.PathEscape(signature)+"/status", &out)
		if err != nil {
			c.log.Warn().Err(err).Str("signature", signature).Msg("confirmation poll failed")
		} else {
			switch out.Status {
			case "confirmed":
				return nil
			case "failed":
				return fmt.Errorf("transaction %s failed on settlement", signature)
			}
		}

		if time.Now().After(deadline) {
			return apperror.ErrConfirmationTimeout(signature)
		}
		select {
		case <-ctx.Done():
			return apperror.ErrConfirmationTimeout(signature)
		case <-ticker.C:
		}
	}
}

// Balance returns the wallet's collateral balance.
func (c *Client) Balance(ctx context.Context, publicKey string) (decimal.Decimal, error) {
	var out balanceResponse
	if err := c.get(ctx, c.baseURL+"/v1/wallets/"+url.PathEscape(publicKey)+"/balance", &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// Holdings returns the wallet's token positions.
func (c *Client) Holdings(ctx context.Context, publicKey string) ([]domain.Holding, error) {
	var out holdingsResponse
	if err := c.get(ctx, c.baseURL+"/v1/wallets/"+url.PathEscape(publicKey)+"/holdings", &out); err != nil {
		return nil, err
	}
	return out.Holdings, nil
}

// ListMarkets queries the market data service.
func (c *Client) ListMarkets(ctx context.Context, params ports.MarketListParams) ([]ports.Market, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Active != nil {
		q.Set("active", strconv.FormatBool(*params.Active))
	}
	q.Set("limit", strconv.Itoa(params.Limit))
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	var out struct {
		Markets []ports.Market `json:"markets"`
	}
	if err := c.get(ctx, c.dataURL+"/v1/markets?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Markets, nil
}

// GetQuote fetches the top of book for one outcome token. Returns
// (nil, nil) when the token is unknown upstream.
func (c *Client) GetQuote(ctx context.Context, tokenID string) (*ports.Quote, error) {
	var out ports.Quote
	err := c.get(ctx, c.dataURL+"/v1/quotes/"+url.PathEscape(tokenID), &out)
	if err != nil {
		if apperror.Code(err) == "MKT_001" {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.ErrSettlementUnavailable(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperror.ErrSettlementUnavailable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperror.ErrMarketNotFound(req.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperror.ErrSettlementRateLimited()
	case resp.StatusCode >= 400:
		return apperror.ErrSettlementUnavailable(fmt.Errorf("settlement returned %d: %s", resp.StatusCode, data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return apperror.ErrSettlementUnavailable(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
