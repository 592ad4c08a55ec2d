package envelope

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Config is the client-held EnvelopeKeyConfig: the two per-layer nonces and
// the twice-sealed private key, all hex-encoded. Its serialized form is the
// opaque blob carried by the config stores; the enclave never interprets it.
type Config struct {
	Nonce1                    string `json:"nonce1"`
	Nonce2                    string `json:"nonce2"`
	DoubleEncryptedPrivateKey string `json:"double_encrypted_private_key"`
}

// ErrInvalidConfig indicates a malformed or incomplete stored config.
var ErrInvalidConfig = errors.New("invalid envelope config")

// NewConfig hex-encodes the nonces and ciphertext into a Config.
func NewConfig(nonce1, nonce2, ciphertext []byte) Config {
	return Config{
		Nonce1:                    hex.EncodeToString(nonce1),
		Nonce2:                    hex.EncodeToString(nonce2),
		DoubleEncryptedPrivateKey: hex.EncodeToString(ciphertext),
	}
}

// Encode serializes the config to its canonical JSON form.
func (c Config) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return string(data), nil
}

// Decode parses a serialized config and validates field lengths.
func Decode(blob string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, _, _, err := c.Bytes(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Bytes decodes the hex fields back to raw nonces and ciphertext.
func (c Config) Bytes() (nonce1, nonce2, ciphertext []byte, err error) {
	if nonce1, err = hex.DecodeString(c.Nonce1); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad nonce1: %v", ErrInvalidConfig, err)
	}
	if nonce2, err = hex.DecodeString(c.Nonce2); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad nonce2: %v", ErrInvalidConfig, err)
	}
	if ciphertext, err = hex.DecodeString(c.DoubleEncryptedPrivateKey); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad ciphertext: %v", ErrInvalidConfig, err)
	}
	if len(nonce1) != NonceSize || len(nonce2) != NonceSize {
		return nil, nil, nil, fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidConfig, NonceSize)
	}
	if len(ciphertext) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty ciphertext", ErrInvalidConfig)
	}
	return nonce1, nonce2, ciphertext, nil
}
