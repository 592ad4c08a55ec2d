package main

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the enclave's durable per-user record store. Credential records
// never leave it; envelope configs pass through it opaquely. A single mutex
// serializes writes so SetupConfig/StoreEncryptedConfig are atomic per user.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// CredentialRecord holds a user's password-verification material. It is
// created at sign-up and overwritten only by an explicit re-setup.
type CredentialRecord struct {
	UserID       string
	PasswordHash string
	Salt1        []byte
	Salt2        []byte
	CreatedAt    int64
}

// AuditEvent is one entry of the enclave's append-only audit log. Detail
// never contains passwords, keys, or ciphertext.
type AuditEvent struct {
	ID        string            `cbor:"-"`
	Type      string            `cbor:"-"`
	UserID    string            `cbor:"-"`
	Detail    map[string]string `cbor:"detail"`
	CreatedAt int64             `cbor:"-"`
}

// OpenStore opens (or creates) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_credentials (
		user_id TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		salt1 TEXT NOT NULL,
		salt2 TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS envelope_configs (
		user_id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PutCredential stores a credential record, replacing any prior record for
// the user id. Re-registration is destructive by design.
func (s *Store) PutCredential(rec *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO user_credentials (user_id, password_hash, salt1, salt2, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.UserID, rec.PasswordHash, hex.EncodeToString(rec.Salt1), hex.EncodeToString(rec.Salt2), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store credential record: %w", err)
	}
	return nil
}

// GetCredential returns the credential record for a user id, or nil when the
// user has never completed setup.
func (s *Store) GetCredential(userID string) (*CredentialRecord, error) {
	var rec CredentialRecord
	var salt1, salt2 string

	err := s.db.QueryRow(`
		SELECT user_id, password_hash, salt1, salt2, created_at
		FROM user_credentials
		WHERE user_id = ?
	`, userID).Scan(&rec.UserID, &rec.PasswordHash, &salt1, &salt2, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential record: %w", err)
	}

	if rec.Salt1, err = hex.DecodeString(salt1); err != nil {
		return nil, fmt.Errorf("corrupt salt1 for %s: %w", userID, err)
	}
	if rec.Salt2, err = hex.DecodeString(salt2); err != nil {
		return nil, fmt.Errorf("corrupt salt2 for %s: %w", userID, err)
	}
	return &rec, nil
}

// HasUser reports whether a credential record exists for the user id.
func (s *Store) HasUser(userID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM user_credentials WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}

// PutEnvelopeConfig upserts the opaque serialized envelope config for a user.
func (s *Store) PutEnvelopeConfig(userID, config string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO envelope_configs (user_id, config, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			config = excluded.config,
			updated_at = excluded.updated_at
	`, userID, config, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store envelope config: %w", err)
	}
	return nil
}

// GetEnvelopeConfig returns the stored envelope config, or ok=false when the
// user has none. Absence is not an error.
func (s *Store) GetEnvelopeConfig(userID string) (config string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT config FROM envelope_configs WHERE user_id = ?`, userID).Scan(&config)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load envelope config: %w", err)
	}
	return config, true, nil
}

// AppendAudit records an audit event. Failures are returned for logging but
// must never fail the operation being audited.
func (s *Store) AppendAudit(eventType, userID string, detail map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if detail == nil {
		detail = map[string]string{}
	}
	payload, err := cbor.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_events (event_id, event_type, user_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), eventType, userID, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit events for a user id.
func (s *Store) ListAudit(userID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT event_id, event_type, user_id, payload, created_at
		FROM audit_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.UserID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := cbor.Unmarshal(payload, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
