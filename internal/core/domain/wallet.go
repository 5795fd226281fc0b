package domain

// WalletKind distinguishes how the gateway came to custody a key.
type WalletKind string

const (
	// WalletKindGenerated keys were created server-side and are wrapped by
	// the custody master key.
	WalletKindGenerated WalletKind = "generated"
	// WalletKindImported keys arrived as a password-encrypted bundle; the
	// server needs a fresh password on every signing request.
	WalletKindImported WalletKind = "imported"
)

// WalletInfo is the public view of a user's signing wallet.
type WalletInfo struct {
	PublicKey string     `json:"public_key"`
	Kind      WalletKind `json:"kind"`
}

// Holding is one token position belonging to a wallet, as reported by the
// settlement service. Read-only; balance queries never touch key material.
type Holding struct {
	TokenID  string `json:"token_id"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}
