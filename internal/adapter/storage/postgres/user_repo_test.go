package postgres

import (
	"context"
	"testing"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestUser() *domain.User {
	return &domain.User{
		ID:         uuid.New(),
		ExternalID: "trader-42",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func userColumnNames() []string {
	return []string{
		"id", "external_id", "generated_address", "generated_key_enc",
		"imported_address", "imported_encrypted_key", "imported_salt", "imported_iv",
		"imported_version", "imported_at", "created_at",
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames()).AddRow(
		u.ID, u.ExternalID, u.GeneratedAddress, u.GeneratedKeyEnc,
		u.ImportedAddress, u.ImportedEncryptedKey, u.ImportedSalt, u.ImportedIV,
		u.ImportedVersion, u.ImportedAt, u.CreatedAt,
	)
}

func TestUserRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, u.ExternalID, u.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DuplicateExternalID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, u.ExternalID, u.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), u)
	assert.Equal(t, "VAL_001", apperror.Code(err))
}

func TestUserRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()
	u.GeneratedAddress = strPtr("GenAddr111")
	u.GeneratedKeyEnc = strPtr("wrapped")

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ExternalID, got.ExternalID)
	assert.Equal(t, "GenAddr111", *got.GeneratedAddress)
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userColumnNames()))

	got, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got, "missing user returns nil, not an error")
}

func TestUserRepo_GetByWalletAddress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()
	u.ImportedAddress = strPtr("ImpAddr222")

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ImpAddr222").
		WillReturnRows(userRow(u))

	got, err := repo.GetByWalletAddress(context.Background(), "ImpAddr222")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserRepo_SetGeneratedWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE users SET generated_address").
		WithArgs(id, "Addr111", "wrapped").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.SetGeneratedWallet(context.Background(), id, "Addr111", "wrapped")
	assert.NoError(t, err)
}

func TestUserRepo_SetGeneratedWallet_AlreadySet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()

	// Zero rows: the IS NULL guard found an existing wallet.
	mock.ExpectExec("UPDATE users SET generated_address").
		WithArgs(id, "Addr111", "wrapped").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetGeneratedWallet(context.Background(), id, "Addr111", "wrapped")
	assert.Equal(t, "WAL_006", apperror.Code(err))
}

func TestUserRepo_SetImportedWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()
	w := ports.ImportedWallet{
		Address:      "ImpAddr222",
		EncryptedKey: "aabb:ccdd",
		Salt:         "salt-hex",
		IV:           "iv-hex",
		Version:      "1.0",
		ImportedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("UPDATE users SET imported_address").
		WithArgs(id, w.Address, w.EncryptedKey, w.Salt, w.IV, w.Version, w.ImportedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.SetImportedWallet(context.Background(), id, w)
	assert.NoError(t, err)
}

func TestUserRepo_SetImportedWallet_UniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()
	w := ports.ImportedWallet{Address: "ImpAddr222", EncryptedKey: "aabb:ccdd", Salt: "s", IV: "i", Version: "1.0", ImportedAt: time.Now()}

	// A concurrent import won the race; the unique index fires.
	mock.ExpectExec("UPDATE users SET imported_address").
		WithArgs(id, w.Address, w.EncryptedKey, w.Salt, w.IV, w.Version, w.ImportedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.SetImportedWallet(context.Background(), id, w)
	assert.Equal(t, "WAL_002", apperror.Code(err))
}
