// Package cryptox holds the vault's cryptographic primitives: passphrase key
// derivation, authenticated encryption of record blobs, and the argon2id
// hashing the server uses for operator passwords.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the derived key length (AES-256 / ChaCha20).
	KeySize = 32

	// SaltSize is the length of salts produced by GenerateSalt.
	SaltSize = 32

	// MinSaltSize is the shortest salt DeriveKey accepts.
	MinSaltSize = 16

	// MinIterations is the PBKDF2 floor. Configuration can raise it, never lower it.
	MinIterations = 100_000

	// DefaultIterations follows current OWASP guidance for PBKDF2-HMAC-SHA256.
	DefaultIterations = 600_000
)

// DeriveKey turns a passphrase and salt into a KeySize-byte key using
// PBKDF2-HMAC-SHA256. The same inputs always produce the same key.
//
// It fails with common.ErrInvalidInput when the passphrase is empty, the
// salt is shorter than MinSaltSize or iterations is below MinIterations.
// The caller keeps ownership of passphrase and should wipe it afterwards.
func DeriveKey(passphrase, salt []byte, iterations int) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrInvalidInput)
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d", common.ErrInvalidInput, MinSaltSize, len(salt))
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: iterations must be at least %d, got %d", common.ErrInvalidInput, MinIterations, iterations)
	}
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New), nil
}

// GenerateSalt returns SaltSize fresh bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
