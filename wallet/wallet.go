// Package wallet generates and identifies the 32-byte secret keys the
// custody engine protects. Keys are derived from a BIP39 mnemonic so users
// hold a human-readable recovery phrase; the public identity is the Ed25519
// public key of the secret, rendered as a base58 address.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

// KeySize is the secret key length in bytes.
const KeySize = 32

var (
	// ErrInvalidMnemonic indicates a recovery phrase that fails the BIP39
	// checksum or word list.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrInvalidKey indicates a secret key of the wrong length.
	ErrInvalidKey = errors.New("invalid private key")
)

// Generate creates a fresh secret key from 256 bits of entropy and returns
// it with the BIP39 mnemonic that deterministically reproduces it.
func Generate() (privateKey []byte, mnemonic string, err error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build mnemonic: %w", err)
	}
	privateKey, err = FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return privateKey, mnemonic, nil
}

// FromMnemonic recovers the secret key from a BIP39 recovery phrase.
func FromMnemonic(mnemonic string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	key := make([]byte, KeySize)
	copy(key, seed[:KeySize])
	return key, nil
}

// PublicIdentity derives the Ed25519 public key for a secret key.
func PublicIdentity(privateKey []byte) (ed25519.PublicKey, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKey, KeySize, len(privateKey))
	}
	priv := ed25519.NewKeyFromSeed(privateKey)
	return priv.Public().(ed25519.PublicKey), nil
}

// Address renders a public identity as a base58 address string.
func Address(publicKey ed25519.PublicKey) string {
	return base58.Encode(publicKey)
}
