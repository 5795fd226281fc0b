package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to protocol-level responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAPIKey() *AppError {
	return New("SEC_001", "Invalid API key", http.StatusUnauthorized)
}

func ErrAPIKeyExpired() *AppError {
	return New("SEC_002", "API key is expired or deactivated", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_003", "Invalid or expired session token", http.StatusUnauthorized)
}

func ErrInvalidAccessCode() *AppError {
	return New("SEC_004", "Invalid or already redeemed access code", http.StatusForbidden)
}

// ---- Wallet custody state (WAL) ----

func ErrNoWalletFound() *AppError {
	return New("WAL_001", "No wallet found for user", http.StatusNotFound)
}

func ErrWalletAlreadyRegistered() *AppError {
	return New("WAL_002", "Wallet address is already registered", http.StatusConflict)
}

func ErrPasswordRequired() *AppError {
	return New("WAL_003", "Password required to sign with an imported wallet", http.StatusBadRequest)
}

func ErrInvalidAddress() *AppError {
	return New("WAL_004", "Invalid wallet address", http.StatusBadRequest)
}

func ErrWeakPassword() *AppError {
	return New("WAL_005", "Password must be at least 12 characters", http.StatusBadRequest)
}

func ErrWalletExists() *AppError {
	return New("WAL_006", "User already has a generated wallet", http.StatusConflict)
}

// ---- Cryptographic failures (CRY) ----
// All CRY errors are final: retrying with the same inputs fails identically.

func ErrMalformedBundle(detail string) *AppError {
	return New("CRY_001", fmt.Sprintf("Malformed wallet bundle: %s", detail), http.StatusBadRequest)
}

// ErrAuthenticationFailure deliberately does not distinguish a wrong
// password from corrupted ciphertext: either would hand callers a
// password-verification oracle.
func ErrAuthenticationFailure() *AppError {
	return New("CRY_002", "Incorrect password or corrupted wallet data", http.StatusUnauthorized)
}

func ErrMalformedKey() *AppError {
	return New("CRY_003", "Decrypted key material is not a valid signing key", http.StatusUnprocessableEntity)
}

func ErrKeyMismatch() *AppError {
	return New("CRY_004", "Recovered public key does not match the declared public key", http.StatusUnprocessableEntity)
}

func ErrConfiguration(err error) *AppError {
	return Wrap("CRY_005", "Custody master key missing or malformed", http.StatusInternalServerError, err)
}

// ---- Trading / markets (MKT) ----

func ErrMarketNotFound(id string) *AppError {
	return New("MKT_001", fmt.Sprintf("Market %s not found", id), http.StatusNotFound)
}

func ErrInvalidOrder(detail string) *AppError {
	return New("MKT_002", fmt.Sprintf("Invalid order: %s", detail), http.StatusBadRequest)
}

func ErrDuplicateOrder() *AppError {
	return New("MKT_003", "Duplicate client order id", http.StatusConflict)
}

// ---- External settlement service (EXT) ----
// EXT errors are transient and retriable by the caller with backoff; they
// must never be folded into the CRY family.

func ErrSettlementUnavailable(err error) *AppError {
	return Wrap("EXT_001", "Settlement service unavailable", http.StatusBadGateway, err)
}

func ErrSettlementRateLimited() *AppError {
	return New("EXT_002", "Settlement service rate limited the request", http.StatusServiceUnavailable)
}

// ErrConfirmationTimeout means the transaction status is unknown, not
// failed: the submitted transaction may still land. Callers should poll
// rather than resubmit.
func ErrConfirmationTimeout(signature string) *AppError {
	return New("EXT_003", fmt.Sprintf("Confirmation timed out for transaction %s; status unknown", signature), http.StatusGatewayTimeout)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a generic bad-input error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// Code extracts the application error code from err, or "" when err is
// not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
