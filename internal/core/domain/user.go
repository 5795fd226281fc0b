package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity anchor for custody. ExternalID is the
// caller-supplied identifier, unique and immutable once set.
//
// A user holds at most one generated wallet and at most one imported
// wallet. When both exist the imported wallet shadows the generated one
// for signing and balance queries. A wallet address maps to exactly one
// user across both columns; the database enforces this with unique
// indexes so concurrent imports cannot race past the application check.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`

	// Server-generated wallet. The private key is wrapped by the custody
	// master key; the server may decrypt it unaided for automated signing.
	GeneratedAddress *string `json:"generated_address,omitempty"`
	GeneratedKeyEnc  *string `json:"-"`

	// Imported (BYOW) wallet. Only the password-encrypted bundle fields
	// are stored; the server cannot decrypt without a per-request password.
	ImportedAddress      *string    `json:"imported_address,omitempty"`
	ImportedEncryptedKey *string    `json:"-"`
	ImportedSalt         *string    `json:"-"`
	ImportedIV           *string    `json:"-"`
	ImportedVersion      *string    `json:"-"`
	ImportedAt           *time.Time `json:"imported_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasGeneratedWallet reports whether a server-generated wallet exists.
func (u *User) HasGeneratedWallet() bool {
	return u.GeneratedAddress != nil && *u.GeneratedAddress != ""
}

// HasImportedWallet reports whether an imported wallet exists.
func (u *User) HasImportedWallet() bool {
	return u.ImportedAddress != nil && *u.ImportedAddress != ""
}

// ActiveWallet returns the wallet that signs for this user: the imported
// wallet when present, else the generated one, else nil. This precedence
// decides which key signs when both wallets exist.
func (u *User) ActiveWallet() *WalletInfo {
	if u.HasImportedWallet() {
		return &WalletInfo{PublicKey: *u.ImportedAddress, Kind: WalletKindImported}
	}
	if u.HasGeneratedWallet() {
		return &WalletInfo{PublicKey: *u.GeneratedAddress, Kind: WalletKindGenerated}
	}
	return nil
}
