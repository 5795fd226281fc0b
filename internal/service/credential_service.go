package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CredentialServiceImpl implements ports.CredentialService.
type CredentialServiceImpl struct {
	userRepo  ports.UserRepository
	keyRepo   ports.APIKeyRepository
	codeStore ports.AccessCodeStore
	hashSvc   ports.HashService
	tokenSvc  ports.TokenService
	log       zerolog.Logger
}

// NewCredentialService creates a new CredentialServiceImpl.
func NewCredentialService(
	userRepo ports.UserRepository,
	keyRepo ports.APIKeyRepository,
	codeStore ports.AccessCodeStore,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *CredentialServiceImpl {
	return &CredentialServiceImpl{
		userRepo:  userRepo,
		keyRepo:   keyRepo,
		codeStore: codeStore,
		hashSvc:   hashSvc,
		tokenSvc:  tokenSvc,
		log:       log,
	}
}

// RedeemAccessCode consumes a single-use onboarding code, creates the
// user and issues an API key pair. The plaintext secret is shown only in
// the response; we store an Argon2id hash.
func (s *CredentialServiceImpl) RedeemAccessCode(ctx context.Context, req ports.RedeemCodeRequest) (*ports.RedeemCodeResponse, error) {
	if req.Code == "" || req.ExternalID == "" {
		return nil, apperror.Validation("code and external_id are required")
	}

	existing, err := s.userRepo.GetByExternalID(ctx, req.ExternalID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check external id: %w", err))
	}
	if existing != nil {
		return nil, apperror.Validation("external_id already registered")
	}

	// Redeem before creating anything. The store is atomic, so a code
	// can only ever pay for one user even under concurrent requests.
	ok, err := s.codeStore.Redeem(ctx, req.Code)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("redeem code: %w", err))
	}
	if !ok {
		return nil, apperror.ErrInvalidAccessCode()
	}

	keyID, err := generateRandomHex(16) // 32 hex chars
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate key id: %w", err))
	}
	secret, err := generateRandomHex(32) // 64 hex chars
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}
	secretHash, err := s.hashSvc.Hash(secret)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash secret: %w", err))
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:         uuid.New(),
		ExternalID: req.ExternalID,
		CreatedAt:  now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	key := &domain.APIKey{
		ID:         uuid.New(),
		UserID:     user.ID,
		KeyID:      keyID,
		SecretHash: secretHash,
		Active:     true,
		CreatedAt:  now,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("key_id", keyID).Msg("access code redeemed")
	return &ports.RedeemCodeResponse{
		UserID: user.ID,
		KeyID:  keyID,
		Secret: secret,
	}, nil
}

// Authenticate verifies a key id / secret pair. Every failure mode maps
// to the same invalid-credentials error except an expired key, which is
// reported distinctly so callers know to rotate.
func (s *CredentialServiceImpl) Authenticate(ctx context.Context, keyID, secret string) (*domain.User, *domain.APIKey, error) {
	key, err := s.keyRepo.GetByKeyID(ctx, keyID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lookup key: %w", err))
	}
	if key == nil || !key.Active {
		return nil, nil, apperror.ErrInvalidAPIKey()
	}
	now := time.Now()
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return nil, nil, apperror.ErrAPIKeyExpired()
	}

	ok, err := s.hashSvc.Verify(secret, key.SecretHash)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("verify secret: %w", err))
	}
	if !ok {
		return nil, nil, apperror.ErrInvalidAPIKey()
	}

	user, err := s.userRepo.GetByID(ctx, key.UserID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lookup user: %w", err))
	}
	if user == nil {
		return nil, nil, apperror.ErrInvalidAPIKey()
	}

	// Best effort; losing a last-used timestamp never fails a request.
	if err := s.keyRepo.Touch(ctx, key.ID, now); err != nil {
		s.log.Warn().Err(err).Str("key_id", keyID).Msg("touch api key failed")
	}

	return user, key, nil
}

// IssueSession exchanges valid credentials for a JWT.
func (s *CredentialServiceImpl) IssueSession(ctx context.Context, keyID, secret string) (string, time.Time, error) {
	user, key, err := s.Authenticate(ctx, keyID, secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokenSvc.Generate(user.ID, key.KeyID)
}

// generateRandomHex returns n random bytes hex-encoded.
func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
