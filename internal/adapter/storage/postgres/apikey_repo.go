package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a new API key into the database.
func (r *APIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, user_id, key_id, secret_hash, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		k.ID, k.UserID, k.KeyID, k.SecretHash, k.Active, k.ExpiresAt, k.CreatedAt,
	)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("insert api key: %w", err))
	}
	return nil
}

// GetByKeyID fetches an API key by its public identifier.
func (r *APIKeyRepo) GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error) {
	query := `SELECT id, user_id, key_id, secret_hash, active, expires_at, created_at, last_used_at
		FROM api_keys WHERE key_id = $1`

	k := &domain.APIKey{}
	err := r.pool.QueryRow(ctx, query, keyID).Scan(
		&k.ID, &k.UserID, &k.KeyID, &k.SecretHash, &k.Active,
		&k.ExpiresAt, &k.CreatedAt, &k.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get api key by key_id: %w", err))
	}
	return k, nil
}

// Touch records when the key last authenticated a request.
func (r *APIKeyRepo) Touch(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, usedAt)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("touch api key: %w", err))
	}
	return nil
}

// Deactivate permanently disables the key.
func (r *APIKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET active = FALSE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("deactivate api key: %w", err))
	}
	return nil
}
