package ports

import (
	"context"
	"time"

	"prediction-trade-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users and their wallets.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	// GetByWalletAddress matches either the generated or the imported
	// address column. Returns (nil, nil) when no user owns the address.
	GetByWalletAddress(ctx context.Context, address string) (*domain.User, error)
	SetGeneratedWallet(ctx context.Context, userID uuid.UUID, address, encryptedKey string) error
	SetImportedWallet(ctx context.Context, userID uuid.UUID, wallet ImportedWallet) error
}

// ImportedWallet carries the stored form of a BYOW bundle. All fields are
// persisted verbatim so the bundle can be returned byte-equivalent on export.
type ImportedWallet struct {
	Address      string
	EncryptedKey string
	Salt         string
	IV           string
	Version      string
	ImportedAt   time.Time
}

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error)
	Touch(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// GetByClientOrderID is the idempotency lookup, scoped per user.
	// Returns (nil, nil) when the client order id has not been seen.
	GetByClientOrderID(ctx context.Context, userID uuid.UUID, clientOrderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, txSignature *string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error)
}

// DBTransactor abstracts database transaction lifecycle management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
