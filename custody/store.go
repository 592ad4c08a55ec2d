package custody

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keyfold/keyfold/envelope"
)

// ConfigStore is the client-side cache of envelope configs. The enclave's
// copy is authoritative; this store lets login proceed without a LoadConfig
// round trip and survives enclave restarts in development.
type ConfigStore interface {
	Put(userID string, cfg envelope.Config) error
	Get(userID string) (envelope.Config, bool, error)
	Close() error
}

// SQLiteConfigStore persists envelope configs in a local SQLite database.
type SQLiteConfigStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenConfigStore opens (or creates) the config database at path.
func OpenConfigStore(path string) (*SQLiteConfigStore, error) {
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

	schema := `
	CREATE TABLE IF NOT EXISTS envelope_configs (
		user_id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteConfigStore{db: db}, nil
}

// Put upserts the envelope config for a user id.
func (s *SQLiteConfigStore) Put(userID string, cfg envelope.Config) error {
	blob, err := cfg.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO envelope_configs (user_id, config, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			config = excluded.config,
			updated_at = excluded.updated_at
	`, userID, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store envelope config: %w", err)
	}
	return nil
}

// Get returns the cached config, or ok=false when the user has none.
func (s *SQLiteConfigStore) Get(userID string) (envelope.Config, bool, error) {
	var blob string
	err := s.db.QueryRow(`SELECT config FROM envelope_configs WHERE user_id = ?`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return envelope.Config{}, false, nil
	}
	if err != nil {
		return envelope.Config{}, false, fmt.Errorf("failed to load envelope config: %w", err)
	}

	cfg, err := envelope.Decode(blob)
	if err != nil {
		return envelope.Config{}, false, err
	}
	return cfg, true, nil
}

// Close closes the database.
func (s *SQLiteConfigStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
