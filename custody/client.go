package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/keyfold/keyfold/envelope"
	"github.com/keyfold/keyfold/wire"
)

// Client is the orchestrator's connection to the enclave service. Each call
// dials a fresh connection, performs one request/response exchange, and
// closes; the enclave is configured to drop connections after one exchange.
type Client struct {
	transport wire.Transport
	timeout   time.Duration
}

// NewClient creates a client for the given enclave transport. The timeout
// bounds each exchange when the caller's context carries no deadline.
func NewClient(transport wire.Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{transport: transport, timeout: timeout}
}

// SetupResult is the material returned by a successful SetupConfig call.
// The salts feed local key derivation checks; no secret is included.
type SetupResult struct {
	Salt1        string
	Salt2        string
	PasswordHash string
}

// exchange performs one framed request/response round trip.
func (c *Client) exchange(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	conn, err := c.transport.Dial()
	if err != nil {
		return nil, fmt.Errorf("failed to reach enclave: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := wire.WriteRequest(conn, req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.Type == wire.ResponseError {
		return nil, mapWireError(resp.Error)
	}
	return resp, nil
}

// mapWireError converts canonical enclave error strings to typed errors.
func mapWireError(message string) error {
	switch message {
	case wire.ErrMsgAuthenticationFailed:
		return ErrAuthenticationFailed
	case wire.ErrMsgInvalidConfig:
		return ErrInvalidConfig
	case wire.ErrMsgKeyGeneration:
		return ErrKeyGeneration
	case wire.ErrMsgStorage:
		return ErrStorage
	default:
		return fmt.Errorf("enclave error: %s", message)
	}
}

// SetupConfig provisions credential material for the user id. Calling it
// again for the same user replaces the record.
func (c *Client) SetupConfig(ctx context.Context, userID, password string) (*SetupResult, error) {
	resp, err := c.exchange(ctx, &wire.Request{
		Type:     wire.RequestSetupConfig,
		UserID:   userID,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	if resp.Type != wire.ResponseConfigSetup {
		return nil, fmt.Errorf("unexpected response type %q", resp.Type)
	}
	return &SetupResult{
		Salt1:        resp.Salt1,
		Salt2:        resp.Salt2,
		PasswordHash: resp.PasswordHash,
	}, nil
}

// VerifyAndDeriveKeys authenticates the password and returns the two derived
// envelope keys. A wrong password or unknown user returns
// ErrAuthenticationFailed. The caller owns zeroing the returned keys.
func (c *Client) VerifyAndDeriveKeys(ctx context.Context, userID, password string) (key1, key2 []byte, err error) {
	resp, err := c.exchange(ctx, &wire.Request{
		Type:     wire.RequestVerifyAndDeriveKeys,
		UserID:   userID,
		Password: password,
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.Type != wire.ResponseKeys {
		return nil, nil, fmt.Errorf("unexpected response type %q", resp.Type)
	}
	if len(resp.Key1) != envelope.KeySize || len(resp.Key2) != envelope.KeySize {
		return nil, nil, fmt.Errorf("enclave returned keys of unexpected length")
	}
	return resp.Key1, resp.Key2, nil
}

// LoadConfig fetches the envelope config stored enclave-side. It returns
// ErrConfigNotFound when the enclave holds none.
func (c *Client) LoadConfig(ctx context.Context, userID string) (envelope.Config, error) {
	resp, err := c.exchange(ctx, &wire.Request{Type: wire.RequestLoadConfig, UserID: userID})
	if err != nil {
		return envelope.Config{}, err
	}
	if resp.Type != wire.ResponseConfig {
		return envelope.Config{}, fmt.Errorf("unexpected response type %q", resp.Type)
	}
	if resp.Config == nil {
		return envelope.Config{}, ErrConfigNotFound
	}
	return envelope.Decode(*resp.Config)
}

// VerifyUserID reports whether the enclave has credential material for the
// user id.
func (c *Client) VerifyUserID(ctx context.Context, userID string) (bool, error) {
	resp, err := c.exchange(ctx, &wire.Request{Type: wire.RequestVerifyUserID, UserID: userID})
	if err != nil {
		return false, err
	}
	if resp.Type != wire.ResponseUserIDVerified {
		return false, fmt.Errorf("unexpected response type %q", resp.Type)
	}
	return resp.Verified, nil
}

// StoreEncryptedConfig uploads the envelope config for enclave-side backup.
func (c *Client) StoreEncryptedConfig(ctx context.Context, userID string, cfg envelope.Config) error {
	resp, err := c.exchange(ctx, &wire.Request{
		Type:                      wire.RequestStoreEncryptedConfig,
		UserID:                    userID,
		Nonce1:                    cfg.Nonce1,
		Nonce2:                    cfg.Nonce2,
		DoubleEncryptedPrivateKey: cfg.DoubleEncryptedPrivateKey,
	})
	if err != nil {
		return err
	}
	if resp.Type != wire.ResponseConfigStored {
		return fmt.Errorf("unexpected response type %q", resp.Type)
	}
	return nil
}
