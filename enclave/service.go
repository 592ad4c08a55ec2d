package main

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/keyfold/keyfold/credential"
	"github.com/keyfold/keyfold/envelope"
	"github.com/keyfold/keyfold/wire"
)

// Service is the enclave request processor. It owns the only copy of
// credential records and answers the five wire operations; derived keys
// exist in its memory only for the duration of a response.
type Service struct {
	cfg   *Config
	store *Store
}

// NewService creates a service over an open store.
func NewService(cfg *Config, store *Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Serve accepts connections until the context is cancelled. Each connection
// is handled on its own goroutine.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Enclave service listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Accept failed")
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn serves request/response exchanges on one connection. With
// CloseAfterResponse set, the connection is dropped after the first exchange.
func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("Failed to read request")
			}
			return
		}

		resp := s.handleRequest(req)
		if err := wire.WriteResponse(conn, resp); err != nil {
			log.Warn().Err(err).Msg("Failed to write response")
			return
		}

		if s.cfg.CloseAfterResponse {
			return
		}
	}
}

// handleRequest dispatches one request. Every path returns a response; user
// facing failures carry a canonical error message and the specific cause is
// logged here only.
func (s *Service) handleRequest(req *wire.Request) *wire.Response {
	switch req.Type {
	case wire.RequestSetupConfig:
		return s.handleSetupConfig(req)
	case wire.RequestVerifyAndDeriveKeys:
		return s.handleVerifyAndDeriveKeys(req)
	case wire.RequestLoadConfig:
		return s.handleLoadConfig(req)
	case wire.RequestVerifyUserID:
		return s.handleVerifyUserID(req)
	case wire.RequestStoreEncryptedConfig:
		return s.handleStoreEncryptedConfig(req)
	default:
		log.Warn().Str("type", string(req.Type)).Msg("Unknown request type")
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}
}

// handleSetupConfig provisions fresh credential material for a user id:
// a password hash and two independent salts. A repeated setup for the same
// user id replaces the old record, which orphans any previously stored
// envelope config.
func (s *Service) handleSetupConfig(req *wire.Request) *wire.Response {
	if req.UserID == "" || req.Password == "" {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	hash, err := credential.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Password hashing failed")
		return wire.ErrorResponse(wire.ErrMsgKeyGeneration)
	}

	salt1, err := credential.GenerateSalt()
	if err != nil {
		log.Error().Err(err).Msg("Salt generation failed")
		return wire.ErrorResponse(wire.ErrMsgKeyGeneration)
	}
	salt2, err := credential.GenerateSalt()
	if err != nil {
		log.Error().Err(err).Msg("Salt generation failed")
		return wire.ErrorResponse(wire.ErrMsgKeyGeneration)
	}

	rec := &CredentialRecord{
		UserID:       req.UserID,
		PasswordHash: hash,
		Salt1:        salt1,
		Salt2:        salt2,
	}
	if err := s.store.PutCredential(rec); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to store credential record")
		return wire.ErrorResponse(wire.ErrMsgStorage)
	}

	s.audit("setup_config", req.UserID, nil)
	log.Info().Str("user_id", req.UserID).Msg("Credential setup complete")

	return &wire.Response{
		Type:         wire.ResponseConfigSetup,
		Salt1:        hex.EncodeToString(salt1),
		Salt2:        hex.EncodeToString(salt2),
		PasswordHash: hash,
	}
}

// handleVerifyAndDeriveKeys checks the password against the stored hash and,
// only on success, derives the two envelope keys from the stored salts. A
// user with no record gets InvalidConfig; a wrong password gets
// AuthenticationFailed.
func (s *Service) handleVerifyAndDeriveKeys(req *wire.Request) *wire.Response {
	if req.UserID == "" || req.Password == "" {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	rec, err := s.store.GetCredential(req.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to load credential record")
		return wire.ErrorResponse(wire.ErrMsgStorage)
	}
	if rec == nil {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}
	if !credential.VerifyPassword(req.Password, rec.PasswordHash) {
		s.audit("auth_failure", req.UserID, nil)
		return wire.ErrorResponse(wire.ErrMsgAuthenticationFailed)
	}

	key1, err := credential.DeriveKey(req.Password, rec.Salt1)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Key derivation failed")
		return wire.ErrorResponse(wire.ErrMsgKeyGeneration)
	}
	key2, err := credential.DeriveKey(req.Password, rec.Salt2)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Key derivation failed")
		return wire.ErrorResponse(wire.ErrMsgKeyGeneration)
	}

	s.audit("auth_success", req.UserID, nil)

	return &wire.Response{
		Type: wire.ResponseKeys,
		Key1: key1,
		Key2: key2,
	}
}

// handleLoadConfig returns the stored envelope config. Absence is a normal
// outcome reported with a nil config, not an error.
func (s *Service) handleLoadConfig(req *wire.Request) *wire.Response {
	if req.UserID == "" {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	config, ok, err := s.store.GetEnvelopeConfig(req.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to load envelope config")
		return wire.ErrorResponse(wire.ErrMsgStorage)
	}

	resp := &wire.Response{Type: wire.ResponseConfig}
	if ok {
		resp.Config = &config
	}
	return resp
}

// handleVerifyUserID reports whether a credential record exists. It reveals
// existence only, never credential material.
func (s *Service) handleVerifyUserID(req *wire.Request) *wire.Response {
	if req.UserID == "" {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	ok, err := s.store.HasUser(req.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to check user")
		return wire.ErrorResponse(wire.ErrMsgStorage)
	}

	return &wire.Response{Type: wire.ResponseUserIDVerified, Verified: ok}
}

// handleStoreEncryptedConfig validates the submitted envelope fields and
// upserts the serialized config. The enclave never decrypts the payload.
func (s *Service) handleStoreEncryptedConfig(req *wire.Request) *wire.Response {
	if req.UserID == "" {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	cfg := envelope.Config{
		Nonce1:                    req.Nonce1,
		Nonce2:                    req.Nonce2,
		DoubleEncryptedPrivateKey: req.DoubleEncryptedPrivateKey,
	}
	if _, _, _, err := cfg.Bytes(); err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("Rejected malformed envelope config")
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}
	blob, err := cfg.Encode()
	if err != nil {
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}

	if err := s.store.PutEnvelopeConfig(req.UserID, blob); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to store envelope config")
		return wire.ErrorResponse(wire.ErrMsgStorage)
	}

	s.audit("config_stored", req.UserID, nil)
	log.Info().Str("user_id", req.UserID).Msg("Envelope config stored")

	return &wire.Response{Type: wire.ResponseConfigStored}
}

// audit records an event without failing the caller's operation.
func (s *Service) audit(eventType, userID string, detail map[string]string) {
	if err := s.store.AppendAudit(eventType, userID, detail); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record audit event")
	}
}
