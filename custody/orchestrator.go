// Package custody implements the client side of the key-custody engine: the
// enclave client, the per-user session table, the local envelope config
// cache, and the orchestrator that runs the sign-up and login flows. Wallet
// secrets exist in this process only inside logged-in sessions and are wiped
// on logout.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/keyfold/keyfold/envelope"
	"github.com/keyfold/keyfold/wallet"
)

// Orchestrator drives the custody flows against the enclave. It never
// persists a plaintext secret; everything durable is double-sealed.
type Orchestrator struct {
	client   *Client
	store    ConfigStore
	sessions *SessionTable
}

// NewOrchestrator wires an orchestrator from its parts.
func NewOrchestrator(client *Client, store ConfigStore) *Orchestrator {
	return &Orchestrator{
		client:   client,
		store:    store,
		sessions: NewSessionTable(),
	}
}

// Sessions exposes the session table to the fronting surface.
func (o *Orchestrator) Sessions() *SessionTable { return o.sessions }

// SignUpResult is what a new user gets back exactly once: the recovery
// phrase and the public wallet address. The phrase is never stored.
type SignUpResult struct {
	Mnemonic string
	Address  string
}

// SignUp registers a user with a fresh wallet key. Repeating sign-up for an
// existing user id replaces their credential record and orphans the old
// envelope config, so the old wallet becomes unrecoverable without its
// recovery phrase.
func (o *Orchestrator) SignUp(ctx context.Context, userID, password string) (*SignUpResult, error) {
	privateKey, mnemonic, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	defer zero(privateKey)

	return o.enroll(ctx, userID, password, privateKey, mnemonic)
}

// SignUpFromMnemonic registers a user with a wallet recovered from an
// existing BIP39 phrase instead of a fresh key.
func (o *Orchestrator) SignUpFromMnemonic(ctx context.Context, userID, password, mnemonic string) (*SignUpResult, error) {
	privateKey, err := wallet.FromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer zero(privateKey)

	return o.enroll(ctx, userID, password, privateKey, mnemonic)
}

// enroll runs the shared sign-up tail: provision credentials, derive the
// envelope keys, double-seal the private key, and persist the config both
// locally and enclave-side.
func (o *Orchestrator) enroll(ctx context.Context, userID, password string, privateKey []byte, mnemonic string) (*SignUpResult, error) {
	session := o.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()

	if _, err := o.client.SetupConfig(ctx, userID, password); err != nil {
		return nil, fmt.Errorf("credential setup failed: %w", err)
	}

	key1, key2, err := o.client.VerifyAndDeriveKeys(ctx, userID, password)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer zero(key1)
	defer zero(key2)

	nonce1, err := envelope.GenerateNonce()
	if err != nil {
		return nil, err
	}
	nonce2, err := envelope.GenerateNonce()
	if err != nil {
		return nil, err
	}

	sealed, err := envelope.DoubleSeal(key1, key2, nonce1, nonce2, privateKey)
	if err != nil {
		return nil, err
	}

	cfg := envelope.NewConfig(nonce1, nonce2, sealed)
	if err := o.store.Put(userID, cfg); err != nil {
		return nil, fmt.Errorf("failed to cache envelope config: %w", err)
	}
	if err := o.client.StoreEncryptedConfig(ctx, userID, cfg); err != nil {
		return nil, fmt.Errorf("failed to back up envelope config: %w", err)
	}

	pub, err := wallet.PublicIdentity(privateKey)
	if err != nil {
		return nil, err
	}

	session.Logout()
	log.Info().Str("user_id", userID).Msg("Sign-up complete")

	return &SignUpResult{
		Mnemonic: mnemonic,
		Address:  wallet.Address(pub),
	}, nil
}

// Login authenticates the password and unseals the wallet into the session.
// A wrong password returns (false, nil); errors are reserved for missing or
// malformed configs and transport failures, so retry logic never parses
// strings. The unseal path and the password check both gate on the same
// password, so an AEAD failure is reported as a plain rejection.
func (o *Orchestrator) Login(ctx context.Context, userID, password string) (bool, error) {
	session := o.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()

	cfg, err := o.loadConfig(ctx, userID)
	if err != nil {
		return false, err
	}

	key1, key2, err := o.client.VerifyAndDeriveKeys(ctx, userID, password)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return false, nil
		}
		return false, err
	}
	defer zero(key1)
	defer zero(key2)

	nonce1, nonce2, sealed, err := cfg.Bytes()
	if err != nil {
		return false, err
	}

	privateKey, err := envelope.DoubleOpen(key1, key2, nonce1, nonce2, sealed)
	if err != nil {
		if errors.Is(err, envelope.ErrDecrypt) {
			log.Warn().Str("user_id", userID).Msg("Envelope rejected derived keys")
			return false, nil
		}
		return false, err
	}

	pub, err := wallet.PublicIdentity(privateKey)
	if err != nil {
		zero(privateKey)
		return false, err
	}

	session.CompleteLogin(privateKey, pub)
	log.Info().Str("user_id", userID).Msg("Login complete")
	return true, nil
}

// loadConfig prefers the local cache and falls back to the enclave's copy,
// re-caching it on the way back.
func (o *Orchestrator) loadConfig(ctx context.Context, userID string) (envelope.Config, error) {
	cfg, ok, err := o.store.Get(userID)
	if err != nil {
		return envelope.Config{}, err
	}
	if ok {
		return cfg, nil
	}

	cfg, err = o.client.LoadConfig(ctx, userID)
	if err != nil {
		return envelope.Config{}, err
	}
	if err := o.store.Put(userID, cfg); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to re-cache envelope config")
	}
	return cfg, nil
}

// Logout wipes the session's secret.
func (o *Orchestrator) Logout(userID string) {
	session := o.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()
	session.Logout()
}

// Address returns the logged-in user's wallet address.
func (o *Orchestrator) Address(userID string) (string, error) {
	session := o.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()

	identity := session.Identity()
	if identity == nil {
		return "", ErrNotLoggedIn
	}
	return wallet.Address(identity), nil
}

// Registered reports whether the enclave holds credentials for the user id.
func (o *Orchestrator) Registered(ctx context.Context, userID string) (bool, error) {
	return o.client.VerifyUserID(ctx, userID)
}

// Close wipes all sessions.
func (o *Orchestrator) Close() {
	o.sessions.LogoutAll()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
