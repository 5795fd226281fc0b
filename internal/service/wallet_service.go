package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"
	"prediction-trade-gateway/pkg/keybundle"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletServiceImpl implements ports.WalletService. Raw private keys
// exist only inside a single method call here; every path that obtains
// one wipes it before returning.
type WalletServiceImpl struct {
	userRepo   ports.UserRepository
	encSvc     ports.EncryptionService
	settlement ports.SettlementClient
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	userRepo ports.UserRepository,
	encSvc ports.EncryptionService,
	settlement ports.SettlementClient,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		userRepo:   userRepo,
		encSvc:     encSvc,
		settlement: settlement,
		log:        log,
	}
}

// Generate creates a server-side ed25519 wallet for the user. The key is
// wrapped by the custody master key before it touches the database.
func (s *WalletServiceImpl) Generate(ctx context.Context, userID uuid.UUID) (*domain.WalletInfo, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasGeneratedWallet() {
		return nil, apperror.ErrWalletExists()
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generating keypair: %w", err))
	}
	defer keybundle.Zero(priv)

	encryptedKey, err := s.encSvc.Encrypt(priv)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("wrapping key: %w", err))
	}

	address := base58.Encode(pub)
	if err := s.userRepo.SetGeneratedWallet(ctx, userID, address, encryptedKey); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID.String()).Str("address", address).Msg("wallet generated")
	return &domain.WalletInfo{PublicKey: address, Kind: domain.WalletKindGenerated}, nil
}

// Import registers a password-encrypted key bundle as the user's wallet.
// Verification is format-only: the bundle is stored exactly as received
// and is never decrypted at import time. The password stays with its
// owner and is proven on the first signing request. A user with an
// imported wallet cannot import again; rotation would silently orphan
// funds custodied under the prior address.
func (s *WalletServiceImpl) Import(ctx context.Context, userID uuid.UUID, bundle *keybundle.Bundle) (*domain.WalletInfo, error) {
	if err := keybundle.Verify(bundle); err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasImportedWallet() {
		return nil, apperror.ErrWalletAlreadyRegistered()
	}

	// One address, one user. The database backstops this check with
	// unique indexes for concurrent imports.
	owner, err := s.userRepo.GetByWalletAddress(ctx, bundle.PublicKey)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, apperror.ErrWalletAlreadyRegistered()
	}

	wallet := ports.ImportedWallet{
		Address:      bundle.PublicKey,
		EncryptedKey: bundle.EncryptedKey,
		Salt:         bundle.Salt,
		IV:           bundle.IV,
		Version:      bundle.Version,
		ImportedAt:   time.Now(),
	}
	if err := s.userRepo.SetImportedWallet(ctx, userID, wallet); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID.String()).Str("address", bundle.PublicKey).Msg("wallet imported")
	return &domain.WalletInfo{PublicKey: bundle.PublicKey, Kind: domain.WalletKindImported}, nil
}

// Resolve returns the user's active wallet.
func (s *WalletServiceImpl) Resolve(ctx context.Context, userID uuid.UUID) (*domain.WalletInfo, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallet := user.ActiveWallet()
	if wallet == nil {
		return nil, apperror.ErrNoWalletFound()
	}
	return wallet, nil
}

// Export re-encrypts the active wallet's key under the given password and
// returns a fresh portable bundle (new salt and IV every time). For an
// imported wallet the password must be the one the bundle was sealed with.
func (s *WalletServiceImpl) Export(ctx context.Context, userID uuid.UUID, password string) (*keybundle.Bundle, error) {
	if password == "" {
		return nil, apperror.ErrPasswordRequired()
	}
	if len(password) < keybundle.MinPasswordLen {
		return nil, apperror.ErrWeakPassword()
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	priv, err := s.signingKey(user, password)
	if err != nil {
		return nil, err
	}
	defer keybundle.Zero(priv)

	return keybundle.Encrypt(priv, password)
}

// SignAndSubmit decrypts the active wallet's key, signs the base64
// transaction payload, submits it to the settlement service and waits
// for confirmation within the settlement client's bounded window. The
// returned string is the settlement signature id.
//
// The raw key is wiped as soon as the signature exists, before any
// network call. Retries re-enter the full decrypt pass; no decrypted key
// is ever cached, and concurrent requests for the same wallet each carry
// their own key buffer. A confirmation timeout returns the signature
// together with the timeout error: the transaction may still land, so
// callers poll instead of resubmitting.
func (s *WalletServiceImpl) SignAndSubmit(ctx context.Context, userID uuid.UUID, unsignedTx string, password string) (string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return "", err
	}
	wallet := user.ActiveWallet()
	if wallet == nil {
		return "", apperror.ErrNoWalletFound()
	}

	payload, err := base64.StdEncoding.DecodeString(unsignedTx)
	if err != nil {
		return "", apperror.Validation("unsigned transaction is not valid base64")
	}

	sigB64, err := s.sign(user, password, payload)
	if err != nil {
		return "", err
	}

	signature, err := s.settlement.Submit(ctx, ports.SubmitRequest{
		Transaction: unsignedTx,
		Signature:   sigB64,
		PublicKey:   wallet.PublicKey,
	})
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("wallet_kind", string(wallet.Kind)).
		Str("signature", signature).
		Msg("transaction signed and submitted")

	if err := s.settlement.WaitForConfirmation(ctx, signature); err != nil {
		return signature, err
	}
	return signature, nil
}

// sign decrypts the active wallet's key, signs payload and wipes the key
// before returning, so the plaintext never outlives this frame.
func (s *WalletServiceImpl) sign(user *domain.User, password string, payload []byte) (string, error) {
	priv, err := s.signingKey(user, password)
	if err != nil {
		return "", err
	}
	defer keybundle.Zero(priv)

	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload)), nil
}

// Balance returns the active wallet's collateral balance. The address
// must decode to a 32-byte ed25519 key before it reaches the upstream
// query; a corrupted record fails here with InvalidAddress, not with an
// opaque settlement error.
func (s *WalletServiceImpl) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.Resolve(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := keybundle.DecodePublicKey(wallet.PublicKey); err != nil {
		return decimal.Zero, err
	}
	return s.settlement.Balance(ctx, wallet.PublicKey)
}

// Holdings returns the active wallet's token positions. Address
// validation mirrors Balance.
func (s *WalletServiceImpl) Holdings(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	wallet, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := keybundle.DecodePublicKey(wallet.PublicKey); err != nil {
		return nil, err
	}
	return s.settlement.Holdings(ctx, wallet.PublicKey)
}

// signingKey recovers the raw private key for the user's active wallet.
// The caller owns the result and must Zero it.
//
// Imported wallets need the owner's password on every call; the server
// holds no other way to open the bundle. Generated wallets unwrap with
// the custody master key and ignore the password.
func (s *WalletServiceImpl) signingKey(user *domain.User, password string) (ed25519.PrivateKey, error) {
	wallet := user.ActiveWallet()
	if wallet == nil {
		return nil, apperror.ErrNoWalletFound()
	}

	if wallet.Kind == domain.WalletKindImported {
		if password == "" {
			return nil, apperror.ErrPasswordRequired()
		}
		bundle := &keybundle.Bundle{
			EncryptedKey: *user.ImportedEncryptedKey,
			Salt:         *user.ImportedSalt,
			IV:           *user.ImportedIV,
			PublicKey:    *user.ImportedAddress,
			Version:      *user.ImportedVersion,
		}
		return keybundle.Decrypt(bundle, password)
	}

	raw, err := s.encSvc.Decrypt(*user.GeneratedKeyEnc)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unwrapping key: %w", err))
	}
	if len(raw) != ed25519.PrivateKeySize {
		keybundle.Zero(raw)
		return nil, apperror.InternalError(fmt.Errorf("unwrapped key has size %d", len(raw)))
	}
	return ed25519.PrivateKey(raw), nil
}

func (s *WalletServiceImpl) getUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrInvalidToken()
	}
	return user, nil
}
