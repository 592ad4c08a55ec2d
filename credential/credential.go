// Package credential implements password hashing, verification, and key
// derivation for the custody engine. Both concerns run through Argon2id so
// the cost of offline password guessing is tied to the cost of key recovery.
//
// Hashes are stored in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<base64-salt>$<base64-digest>
//
// The format is self-describing: verification reads the parameters out of the
// string, so cost changes never invalidate existing records.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters
const (
	argonTime    = 3
	argonMemory  = 65536 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32

	// SaltSize is the length of key-derivation salts.
	SaltSize = 16

	// KeySize is the length of derived symmetric keys.
	KeySize = 32
)

// ErrKeyGeneration indicates an RNG or KDF failure. It is unexpected and
// should be treated as fatal by callers, never surfaced to end users.
var ErrKeyGeneration = errors.New("key generation error")

// HashPassword hashes a password with a fresh random salt and returns the
// PHC-format hash string.
func HashPassword(password string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}

	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifyPassword checks a password against a stored PHC hash string. It
// returns false on mismatch or on any malformed input; it never fails loudly,
// so a corrupted record is indistinguishable from a wrong password.
func VerifyPassword(password, hash string) bool {
	salt, digest, time, memory, threads, err := parsePHC(hash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

// DeriveKey derives a 32-byte symmetric key from a password and salt. The
// output is deterministic for a given (password, salt) pair.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyGeneration, SaltSize, len(salt))
	}
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen), nil
}

// GenerateSalt returns a random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return salt, nil
}

// parsePHC splits a PHC-format Argon2id hash string into its components.
func parsePHC(hash string) (salt, digest []byte, time, memory uint32, threads uint8, err error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, errors.New("not an argon2id hash")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if len(digest) == 0 {
		return nil, nil, 0, 0, 0, errors.New("empty digest")
	}

	return salt, digest, time, memory, threads, nil
}
