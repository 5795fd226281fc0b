// Package keybundle implements the portable password-encrypted wallet
// bundle shared between the gateway and bring-your-own-wallet clients.
//
// A bundle is produced client-side at key export time and decrypted
// server-side only while signing a transaction. The server never stores a
// password or a plaintext key: the raw key exists in process memory for
// the duration of one signing pass and is wiped afterwards.
package keybundle

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"prediction-trade-gateway/pkg/apperror"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"
)

// Version is the only bundle format version this build understands.
const Version = "1.0"

// MinPasswordLen is the password floor, enforced before any derivation.
// It is a cheap user-facing check, not a security boundary.
const MinPasswordLen = 12

const (
	kdfIterations = 100_000
	saltLen       = 32 // 256-bit salt
	ivLen         = 16 // 128-bit IV, fixed by the bundle wire format
	keyLen        = 32 // AES-256
	tagLen        = 16 // GCM authentication tag
)

// Bundle is the wire representation of an encrypted signing key.
// EncryptedKey carries "<hex ciphertext>:<hex auth tag>"; salt and iv are
// hex; publicKey is the base58 ed25519 public key the ciphertext must
// decrypt back to.
type Bundle struct {
	EncryptedKey string `json:"encryptedKey"`
	Salt         string `json:"salt"`
	IV           string `json:"iv"`
	PublicKey    string `json:"publicKey"`
	Version      string `json:"version"`
}

// Encrypt seals a raw ed25519 private key under a password-derived key and
// returns the portable bundle. The plaintext inside the ciphertext is the
// key's canonical base58 text encoding, not raw bytes.
func Encrypt(privateKey ed25519.PrivateKey, password string) (*Bundle, error) {
	if len(password) < MinPasswordLen {
		return nil, apperror.ErrWeakPassword()
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, apperror.ErrMalformedKey()
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	key := deriveKey(password, salt)
	defer Zero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext := []byte(base58.Encode(privateKey))
	defer Zero(plaintext)

	sealed := aead.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	pub := privateKey.Public().(ed25519.PublicKey)

	return &Bundle{
		EncryptedKey: hex.EncodeToString(ct) + ":" + hex.EncodeToString(tag),
		Salt:         hex.EncodeToString(salt),
		IV:           hex.EncodeToString(iv),
		PublicKey:    base58.Encode(pub),
		Version:      Version,
	}, nil
}

// Decrypt recovers the signing key from a bundle. The caller owns the
// returned key and must Zero it as soon as the signing operation is done.
//
// Failure kinds, in evaluation order: MalformedBundle (structure),
// AuthenticationFailure (tag check — deliberately ambiguous between wrong
// password and corrupted data), MalformedKey (decrypted text is not a
// valid key), KeyMismatch (recovered public key differs from declared).
// All are final: the same inputs fail the same way on every retry.
func Decrypt(b *Bundle, password string) (ed25519.PrivateKey, error) {
	ct, tag, err := splitEncryptedKey(b.EncryptedKey)
	if err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(b.Salt)
	if err != nil || len(salt) != saltLen {
		return nil, apperror.ErrMalformedBundle("salt is not valid hex of expected length")
	}
	iv, err := hex.DecodeString(b.IV)
	if err != nil || len(iv) != ivLen {
		return nil, apperror.ErrMalformedBundle("iv is not valid hex of expected length")
	}

	key := deriveKey(password, salt)
	defer Zero(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, apperror.ErrAuthenticationFailure()
	}
	defer Zero(plaintext)

	decoded, err := base58.Decode(string(plaintext))
	if err != nil || len(decoded) != ed25519.PrivateKeySize {
		Zero(decoded)
		return nil, apperror.ErrMalformedKey()
	}
	privateKey := ed25519.PrivateKey(decoded)

	declared, err := base58.Decode(b.PublicKey)
	if err != nil {
		Zero(privateKey)
		return nil, apperror.ErrMalformedBundle("declared public key is not valid base58")
	}
	recovered := privateKey.Public().(ed25519.PublicKey)
	if !bytes.Equal(recovered, declared) {
		Zero(privateKey)
		return nil, apperror.ErrKeyMismatch()
	}

	return privateKey, nil
}

// Verify checks a bundle's format without touching the password: version,
// field presence, declared public key length, salt/iv hex, and the
// two-part ciphertext shape. It never attempts decryption and therefore
// cannot tell whether the password is correct — only that the bundle is
// well-formed enough to store.
func Verify(b *Bundle) error {
	if b.Version != Version {
		return apperror.ErrMalformedBundle(fmt.Sprintf("unsupported version %q", b.Version))
	}
	if b.EncryptedKey == "" || b.Salt == "" || b.IV == "" || b.PublicKey == "" {
		return apperror.ErrMalformedBundle("missing required field")
	}

	pub, err := base58.Decode(b.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return apperror.ErrMalformedBundle("public key must be base58 of a 32-byte key")
	}
	if salt, err := hex.DecodeString(b.Salt); err != nil || len(salt) != saltLen {
		return apperror.ErrMalformedBundle("salt is not valid hex of expected length")
	}
	if iv, err := hex.DecodeString(b.IV); err != nil || len(iv) != ivLen {
		return apperror.ErrMalformedBundle("iv is not valid hex of expected length")
	}
	if _, _, err := splitEncryptedKey(b.EncryptedKey); err != nil {
		return err
	}
	return nil
}

// ParseJSON decodes the bundle wire format strictly: exactly the five
// known string fields, nothing extra, nothing missing.
func ParseJSON(data []byte) (*Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, apperror.ErrMalformedBundle("invalid JSON: " + err.Error())
	}
	if err := Verify(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DecodePublicKey parses a base58 wallet address into an ed25519 public
// key, rejecting anything that is not exactly 32 bytes.
func DecodePublicKey(address string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, apperror.ErrInvalidAddress()
	}
	return ed25519.PublicKey(decoded), nil
}

// Zero overwrites b with zeros. subtle.ConstantTimeCopy keeps the
// compiler from eliding the writes.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, keyLen, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	// The wire format fixes the IV at 128 bits, not GCM's default 96.
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

func splitEncryptedKey(s string) (ct, tag []byte, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, nil, apperror.ErrMalformedBundle("encryptedKey must be <ciphertext>:<tag>")
	}
	ct, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, apperror.ErrMalformedBundle("ciphertext is not valid hex")
	}
	tag, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, apperror.ErrMalformedBundle("auth tag is not valid hex")
	}
	return ct, tag, nil
}
