// Package apikey implements the lifecycle of opaque API-key capability
// tokens: generation, hashing, format validation, and the prefix/type
// scheme used by both agent-level live/test keys and tenant-scoped admin
// keys.
package apikey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

const (
	// KeyLength is the length of generated API keys in bytes.
	KeyLength = 32

	// BcryptCost is the cost factor for bcrypt hashing of key material.
	BcryptCost = 12

	// PrefixLength is how many hex characters of the plaintext key are kept
	// unhashed, displayable alongside the key's metadata (e.g. in a list
	// view) so operators can tell keys apart without ever seeing the secret.
	PrefixLength = 8
)

// Type tags an API key by its scope.
const (
	TypeLive  = "live"  // agent-level, scoped to a single fleet
	TypeTest  = "test"  // agent-level, same scope but flagged non-production
	TypeAdmin = "admin" // tenant-scoped, control-plane use only
)

// Minted is the result of generating a new key: the plaintext is shown to
// the caller exactly once and never stored.
type Minted struct {
	Plaintext string
	Prefix    string
	Hash      string
	CreatedAt time.Time
}

// Generate creates a new cryptographically random API key.
func Generate() (string, error) {
	b := make([]byte, KeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash bcrypt-hashes a plaintext key for storage.
func Hash(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(b), nil
}

// Compare reports whether a plaintext key matches a stored bcrypt hash.
func Compare(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// Prefix extracts the displayable, non-secret prefix of a plaintext key.
func Prefix(key string) string {
	if len(key) < PrefixLength {
		return key
	}
	return key[:PrefixLength]
}

// Mint generates, hashes, and prefixes a new key in one step.
func Mint() (*Minted, error) {
	plain, err := Generate()
	if err != nil {
		return nil, err
	}
	hash, err := Hash(plain)
	if err != nil {
		return nil, err
	}
	return &Minted{
		Plaintext: plain,
		Prefix:    Prefix(plain),
		Hash:      hash,
		CreatedAt: time.Now(),
	}, nil
}

// ValidateFormat checks that a plaintext key has the expected shape: 64
// hexadecimal characters (32 bytes); upper- and lower-case digits are both
// accepted.
func ValidateFormat(key string) error {
	if len(key) != KeyLength*2 {
		return fmt.Errorf("API key must be %d characters, got %d", KeyLength*2, len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("API key must be hexadecimal")
	}
	return nil
}

// Live reports whether a stored key is usable right now: not revoked, not
// expired. A live API-key hash must resolve to exactly one tenant;
// deterministic failure here is what lets the gateway reject deterministically
// on auth per the invariant that revoked/expired keys always fail.
func Live(k *ports.APIKey, now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// ConstantTimeEqual compares two strings without leaking timing information.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
