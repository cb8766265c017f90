// Package crypt seals config values at rest with NaCl secretbox.
package crypt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length in bytes of a secretbox key.
const KeySize = 32

const nonceSize = 24

// ErrDecrypt is returned when a ciphertext is truncated or fails authentication.
var ErrDecrypt = errors.New("decrypt: message authentication failed")

// Box seals and opens byte strings under a single symmetric key.
// A nil *Box passes data through unchanged.
type Box struct {
	key [KeySize]byte
}

// NewBox returns a Box for the given 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// ParseKey decodes a hex-encoded key. An empty string returns a nil Box.
func ParseKey(s string) (*Box, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return NewBox(key)
}

// GenerateKey returns a new random hex-encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Seal encrypts plaintext. The random nonce is prepended to the result.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil {
		return plaintext, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open decrypts a message produced by Seal.
func (b *Box) Open(ciphertext []byte) ([]byte, error) {
	if b == nil {
		return ciphertext, nil
	}
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
