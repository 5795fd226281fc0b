package ports

import (
	"context"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/pkg/keybundle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncryptionService wraps secrets at rest with AES-256-GCM under the
// custody master key. Used for server-generated wallet keys only; imported
// keys stay under their owner's password.
type EncryptionService interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// HashService handles API secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT session token operations.
type TokenService interface {
	Generate(userID uuid.UUID, keyID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	KeyID  string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AccessCodeStore manages single-use onboarding codes. Redemption is
// atomic so a code redeemed by two racing callers succeeds exactly once.
type AccessCodeStore interface {
	// Redeem consumes the code. Returns false if the code does not exist
	// or was already used.
	Redeem(ctx context.Context, code string) (bool, error)
	// Seed provisions a code with a time-to-live. Zero ttl means no expiry.
	Seed(ctx context.Context, code string, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// CredentialService defines authentication business logic: onboarding via
// access codes, API key verification, and session issuance.
type CredentialService interface {
	RedeemAccessCode(ctx context.Context, req RedeemCodeRequest) (*RedeemCodeResponse, error)
	// Authenticate verifies a key id / secret pair and returns the owning
	// user. Expired and deactivated keys fail closed.
	Authenticate(ctx context.Context, keyID, secret string) (*domain.User, *domain.APIKey, error)
	// IssueSession exchanges valid credentials for a JWT.
	IssueSession(ctx context.Context, keyID, secret string) (string, time.Time, error)
}

// RedeemCodeRequest holds input for access code redemption.
type RedeemCodeRequest struct {
	Code       string
	ExternalID string
}

// RedeemCodeResponse holds the onboarding result shown once.
type RedeemCodeResponse struct {
	UserID uuid.UUID
	KeyID  string
	Secret string // Plaintext, shown only at redemption
}

// WalletService defines wallet custody business logic.
type WalletService interface {
	// Generate creates a server-side wallet for the user. Fails if one
	// already exists.
	Generate(ctx context.Context, userID uuid.UUID) (*domain.WalletInfo, error)
	// Import registers a password-encrypted key bundle. Verification is
	// format-only and the bundle is persisted as received: the password
	// never travels with an import and its correctness is proven at sign
	// time, the first moment the server is allowed to open the bundle.
	Import(ctx context.Context, userID uuid.UUID, bundle *keybundle.Bundle) (*domain.WalletInfo, error)
	// Resolve returns the user's active wallet (imported shadows generated).
	Resolve(ctx context.Context, userID uuid.UUID) (*domain.WalletInfo, error)
	// Export re-encrypts the active wallet's key under the given password
	// and returns a portable bundle.
	Export(ctx context.Context, userID uuid.UUID, password string) (*keybundle.Bundle, error)
	// SignAndSubmit decrypts the signing key, signs the base64-encoded
	// transaction, submits it and waits for confirmation within a bounded
	// window, returning the settlement signature. The password is required
	// when the active wallet is imported and ignored otherwise. When
	// confirmation times out the signature is returned together with the
	// timeout error: the transaction status is unknown, not failed, and
	// callers should poll rather than resubmit.
	SignAndSubmit(ctx context.Context, userID uuid.UUID, unsignedTx string, password string) (string, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
}

// TradingService defines market data and order business logic.
type TradingService interface {
	ListMarkets(ctx context.Context, params MarketListParams) ([]Market, error)
	GetQuote(ctx context.Context, tokenID string) (*Quote, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
	// ListOrders returns the user's most recent orders.
	ListOrders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error)
	RedeemPositions(ctx context.Context, req RedeemRequest) (string, error)
	Swap(ctx context.Context, req SwapRequest) (string, error)
}

// PlaceOrderRequest holds validated input for order placement.
type PlaceOrderRequest struct {
	UserID        uuid.UUID
	ClientOrderID string
	MarketID      string
	TokenID       string
	Side          domain.OrderSide
	Size          decimal.Decimal
	LimitPrice    decimal.Decimal
	Password      string // required for imported wallets
}

// RedeemRequest holds input for redeeming winning positions in a
// resolved market.
type RedeemRequest struct {
	UserID   uuid.UUID
	MarketID string
	Password string
}

// SwapRequest holds input for swapping between outcome tokens and the
// collateral token.
type SwapRequest struct {
	UserID      uuid.UUID
	FromTokenID string
	ToTokenID   string
	Amount      decimal.Decimal
	Password    string
}

// --- External Clients ---

// Market is a tradeable prediction market as reported upstream.
type Market struct {
	ID       string          `json:"id"`
	Question string          `json:"question"`
	Outcomes []string        `json:"outcomes"`
	TokenIDs []string        `json:"token_ids"`
	Active   bool            `json:"active"`
	Closed   bool            `json:"closed"`
	Volume   decimal.Decimal `json:"volume"`
	EndDate  *time.Time      `json:"end_date,omitempty"`
}

// Quote is the current top of book for one outcome token.
type Quote struct {
	TokenID string          `json:"token_id"`
	Bid     decimal.Decimal `json:"bid"`
	Ask     decimal.Decimal `json:"ask"`
	Mid     decimal.Decimal `json:"mid"`
}

// MarketListParams holds filter + pagination for market listing.
type MarketListParams struct {
	Query  string
	Active *bool
	Limit  int
	Offset int
}

// SettlementClient talks to the settlement service that builds, submits
// and confirms transactions. All key material stays on our side; the
// client only ever sees public keys, unsigned payloads and signatures.
type SettlementClient interface {
	BuildOrderTx(ctx context.Context, req BuildOrderTxRequest) (string, error)
	BuildRedeemTx(ctx context.Context, publicKey, marketID string) (string, error)
	BuildSwapTx(ctx context.Context, req BuildSwapTxRequest) (string, error)
	// Submit sends the signed transaction and returns its signature id.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// WaitForConfirmation polls until the transaction confirms, fails, or
	// the configured confirmation window elapses.
	WaitForConfirmation(ctx context.Context, signature string) error
	Balance(ctx context.Context, publicKey string) (decimal.Decimal, error)
	Holdings(ctx context.Context, publicKey string) ([]domain.Holding, error)
}

// BuildOrderTxRequest holds input for building an unsigned order transaction.
type BuildOrderTxRequest struct {
	PublicKey  string
	MarketID   string
	TokenID    string
	Side       domain.OrderSide
	Size       decimal.Decimal
	LimitPrice decimal.Decimal
}

// BuildSwapTxRequest holds input for building an unsigned swap transaction.
type BuildSwapTxRequest struct {
	PublicKey   string
	FromTokenID string
	ToTokenID   string
	Amount      decimal.Decimal
}

// SubmitRequest carries a signed transaction to the settlement service.
// Transaction and Signature are base64; PublicKey is the base58 signer.
type SubmitRequest struct {
	Transaction string
	Signature   string
	PublicKey   string
}

// MarketDataClient serves read-only market discovery and pricing.
type MarketDataClient interface {
	ListMarkets(ctx context.Context, params MarketListParams) ([]Market, error)
	GetQuote(ctx context.Context, tokenID string) (*Quote, error)
}
