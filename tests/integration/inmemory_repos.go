package integration

import (
	"context"
	"sync"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ExternalID == u.ExternalID {
			return apperror.Validation("external_id already registered")
		}
	}
	copied := *u
	r.users[u.ID] = &copied
	return nil
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *inMemoryUserRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryUserRepo) GetByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByAddressLocked(address), nil
}

func (r *inMemoryUserRepo) findByAddressLocked(address string) *domain.User {
	for _, u := range r.users {
		if u.GeneratedAddress != nil && *u.GeneratedAddress == address {
			copied := *u
			return &copied
		}
		if u.ImportedAddress != nil && *u.ImportedAddress == address {
			copied := *u
			return &copied
		}
	}
	return nil
}

func (r *inMemoryUserRepo) SetGeneratedWallet(ctx context.Context, userID uuid.UUID, address, encryptedKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperror.ErrInvalidToken()
	}
	if u.GeneratedAddress != nil {
		return apperror.ErrWalletExists()
	}
	if other := r.findByAddressLocked(address); other != nil {
		return apperror.ErrWalletAlreadyRegistered()
	}
	u.GeneratedAddress = &address
	u.GeneratedKeyEnc = &encryptedKey
	return nil
}

func (r *inMemoryUserRepo) SetImportedWallet(ctx context.Context, userID uuid.UUID, wallet ports.ImportedWallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperror.ErrInvalidToken()
	}
	if u.ImportedAddress != nil {
		return apperror.ErrWalletAlreadyRegistered()
	}
	if other := r.findByAddressLocked(wallet.Address); other != nil && other.ID != userID {
		return apperror.ErrWalletAlreadyRegistered()
	}
	u.ImportedAddress = &wallet.Address
	u.ImportedEncryptedKey = &wallet.EncryptedKey
	u.ImportedSalt = &wallet.Salt
	u.ImportedIV = &wallet.IV
	u.ImportedVersion = &wallet.Version
	u.ImportedAt = &wallet.ImportedAt
	return nil
}

// --- In-Memory API Key Repo ---

type inMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.APIKey
}

func newInMemoryAPIKeyRepo() *inMemoryAPIKeyRepo {
	return &inMemoryAPIKeyRepo{keys: make(map[uuid.UUID]*domain.APIKey)}
}

func (r *inMemoryAPIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *key
	r.keys[key.ID] = &copied
	return nil
}

func (r *inMemoryAPIKeyRepo) GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.KeyID == keyID {
			copied := *k
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAPIKeyRepo) Touch(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.LastUsedAt = &usedAt
	}
	return nil
}

func (r *inMemoryAPIKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.Active = false
	}
	return nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.UserID == order.UserID && o.ClientOrderID == order.ClientOrderID {
			return apperror.ErrDuplicateOrder()
		}
	}
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (r *inMemoryOrderRepo) GetByClientOrderID(ctx context.Context, userID uuid.UUID, clientOrderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.UserID == userID && o.ClientOrderID == clientOrderID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, txSignature *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperror.ErrDatabaseError(nil)
	}
	o.Status = status
	if txSignature != nil {
		o.TxSignature = txSignature
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			result = append(result, *o)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
