// crypto/crypto.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length; a fresh random nonce is generated
	// for every sealed object.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// Overhead is the total ciphertext expansion per sealed object.
	Overhead = NonceSize + TagSize
)

// ErrAuthFailed is returned when a ciphertext fails authentication. The
// caller decides whether that means a wrong passphrase (key objects) or a
// corrupt repository (everything else).
var ErrAuthFailed = errors.New("ciphertext authentication failed")

// Key encrypts and decrypts repository objects with AES-256-GCM.
type Key struct {
	raw  [KeySize]byte
	aead cipher.AEAD
}

// NewKey builds a Key from raw key material.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, errors.Errorf("key has %d bytes, want %d", len(raw), KeySize)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCM")
	}
	k := &Key{aead: aead}
	copy(k.raw[:], raw)
	return k, nil
}

// GenerateKey creates a new random key.
func GenerateKey() (*Key, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, errors.Wrap(err, "reading random key material")
	}
	return NewKey(raw)
}

// Bytes returns the raw key material. Used only to wrap the master key
// into key objects.
func (k *Key) Bytes() []byte {
	return k.raw[:]
}

// Seal encrypts plaintext, binding the associated data into the
// authentication tag. The layout of the result is nonce || ciphertext ||
// tag.
func (k *Key) Seal(plaintext, ad []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, errors.Wrap(err, "reading random nonce")
	}
	return k.aead.Seal(out, out[:NonceSize], plaintext, ad), nil
}

// Open decrypts a sealed object, verifying its authentication tag against
// the same associated data it was sealed with.
func (k *Key) Open(sealed, ad []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, errors.Wrapf(ErrAuthFailed,
			"sealed object has %d bytes, shorter than the %d-byte overhead",
			len(sealed), Overhead)
	}
	plaintext, err := k.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// SealedLen returns the on-disk size of a plaintext of the given length
// once sealed.
func SealedLen(plainLen int) int {
	return plainLen + Overhead
}
