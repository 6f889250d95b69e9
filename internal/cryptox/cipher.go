package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the 96-bit nonce prepended to every blob.
	NonceSize = 12

	// TagSize is the 128-bit authentication tag appended by the AEAD.
	TagSize = 16

	// Overhead is the number of bytes a blob adds to its plaintext.
	Overhead = NonceSize + TagSize
)

// Cipher suite names as stored in vault parameters.
const (
	SuiteAESGCM           = "aes-256-gcm"
	SuiteChaCha20Poly1305 = "chacha20-poly1305"
)

// Cipher encrypts and decrypts self-contained blobs laid out as
//
//	nonce(12) || ciphertext || tag(16)
//
// Open fails closed: any modification of the blob, or a different key,
// yields common.ErrAuthenticationFailed and no plaintext.
type Cipher interface {
	Name() string
	Seal(key, plaintext []byte) ([]byte, error)
	Open(key, blob []byte) ([]byte, error)
}

type aeadCipher struct {
	name string
	new  func(key []byte) (cipher.AEAD, error)
	rand io.Reader
}

// NewAESGCM returns the default AES-256-GCM suite.
func NewAESGCM() Cipher {
	return &aeadCipher{name: SuiteAESGCM, new: newGCM, rand: rand.Reader}
}

// NewChaCha20Poly1305 returns the ChaCha20-Poly1305 (IETF, 96-bit nonce) suite.
func NewChaCha20Poly1305() Cipher {
	return &aeadCipher{name: SuiteChaCha20Poly1305, new: chacha20poly1305.New, rand: rand.Reader}
}

// CipherByName resolves a suite name; "" means the default suite.
func CipherByName(name string) (Cipher, error) {
	switch name {
	case "", SuiteAESGCM:
		return NewAESGCM(), nil
	case SuiteChaCha20Poly1305:
		return NewChaCha20Poly1305(), nil
	default:
		return nil, fmt.Errorf("%w: unknown cipher suite %q", common.ErrInvalidInput, name)
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *aeadCipher) Name() string { return c.name }

func (c *aeadCipher) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidInput, KeySize, len(key))
	}
	aead, err := c.new(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return aead, nil
}

// Seal encrypts plaintext under key with a fresh random nonce.
func (c *aeadCipher) Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(c.rand, blob); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(blob, blob[:NonceSize], plaintext, nil), nil
}

// Open authenticates and decrypts blob.
func (c *aeadCipher) Open(key, blob []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", common.ErrAuthenticationFailed, len(blob))
	}

	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, errors.Join(common.ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
