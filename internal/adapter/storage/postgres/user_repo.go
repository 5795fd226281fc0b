package postgres

import (
	"context"
	"errors"
	"fmt"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, external_id, generated_address, generated_key_enc,
	imported_address, imported_encrypted_key, imported_salt, imported_iv,
	imported_version, imported_at, created_at`

// UserRepo implements ports.UserRepository.
//
// The users table carries unique indexes on external_id,
// generated_address and imported_address. The address indexes are the
// race-safe backstop for the one-address-one-user rule: two concurrent
// imports of the same wallet both pass the application check, but only
// one survives the insert.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a new user into the database.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, external_id, created_at) VALUES ($1, $2, $3)`

	_, err := r.pool.Exec(ctx, query, u.ID, u.ExternalID, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Validation("external_id already registered")
		}
		return apperror.ErrDatabaseError(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

// GetByID fetches a user by its UUID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id), "get user by id")
}

// GetByExternalID fetches a user by the caller-supplied identifier.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, externalID), "get user by external_id")
}

// GetByWalletAddress fetches the user owning the address in either
// wallet column. Returns (nil, nil) when no user owns it.
func (r *UserRepo) GetByWalletAddress(ctx context.Context, address string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE generated_address = $1 OR imported_address = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, address), "get user by wallet address")
}

// SetGeneratedWallet stores the server-generated wallet, guarded so an
// existing generated wallet is never overwritten.
func (r *UserRepo) SetGeneratedWallet(ctx context.Context, userID uuid.UUID, address, encryptedKey string) error {
	query := `UPDATE users SET generated_address = $2, generated_key_enc = $3
		WHERE id = $1 AND generated_address IS NULL`

	tag, err := r.pool.Exec(ctx, query, userID, address, encryptedKey)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrWalletAlreadyRegistered()
		}
		return apperror.ErrDatabaseError(fmt.Errorf("set generated wallet: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrWalletExists()
	}
	return nil
}

// SetImportedWallet stores the BYOW bundle fields, guarded so an
// existing imported wallet is never overwritten.
func (r *UserRepo) SetImportedWallet(ctx context.Context, userID uuid.UUID, w ports.ImportedWallet) error {
	query := `UPDATE users SET imported_address = $2, imported_encrypted_key = $3,
		imported_salt = $4, imported_iv = $5, imported_version = $6, imported_at = $7
		WHERE id = $1 AND imported_address IS NULL`

	tag, err := r.pool.Exec(ctx, query,
		userID, w.Address, w.EncryptedKey, w.Salt, w.IV, w.Version, w.ImportedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrWalletAlreadyRegistered()
		}
		return apperror.ErrDatabaseError(fmt.Errorf("set imported wallet: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrWalletAlreadyRegistered()
	}
	return nil
}

func (r *UserRepo) scanUser(row pgx.Row, op string) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.GeneratedAddress, &u.GeneratedKeyEnc,
		&u.ImportedAddress, &u.ImportedEncryptedKey, &u.ImportedSalt, &u.ImportedIV,
		&u.ImportedVersion, &u.ImportedAt, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("%s: %w", op, err))
	}
	return u, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-index
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
