// Package envelope implements the double-envelope AEAD scheme that protects
// the wallet private key at rest. The key is sealed twice with independent
// keys and nonces; recovering it requires both layers to open, and any
// tampering with ciphertext or nonces fails the authentication tag check.
package envelope

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the ChaCha20-Poly1305 key length.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the ChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSize
)

var (
	// ErrEncrypt indicates a seal failure (bad key or nonce length).
	ErrEncrypt = errors.New("encryption error")

	// ErrDecrypt indicates an open failure: wrong key, wrong nonce, or
	// tampered ciphertext. Callers on the login path must report this as
	// an authentication failure, since in practice it is only reachable
	// by supplying the wrong password.
	ErrDecrypt = errors.New("decryption error")
)

// Seal encrypts plaintext with ChaCha20-Poly1305. The (key, nonce) pair must
// be used for exactly one Seal call ever.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrEncrypt, aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext produced by Seal.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecrypt, aead.NonceSize(), len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// GenerateNonce returns a fresh random 12-byte nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return nonce, nil
}

// DoubleSeal wraps plaintext in two AEAD layers: the inner layer with
// (key1, nonce1), the outer with (key2, nonce2).
func DoubleSeal(key1, key2, nonce1, nonce2, plaintext []byte) ([]byte, error) {
	inner, err := Seal(key1, nonce1, plaintext)
	if err != nil {
		return nil, err
	}
	return Seal(key2, nonce2, inner)
}

// DoubleOpen reverses DoubleSeal: the outer layer opens with (key2, nonce2),
// the inner with (key1, nonce1). A failure at either layer returns ErrDecrypt.
func DoubleOpen(key1, key2, nonce1, nonce2, ciphertext []byte) ([]byte, error) {
	inner, err := Open(key2, nonce2, ciphertext)
	if err != nil {
		return nil, err
	}
	return Open(key1, nonce1, inner)
}
