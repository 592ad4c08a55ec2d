package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keyfold/keyfold/wire"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen.Kind != wire.TransportTCP {
		t.Errorf("Expected default TCP transport, got %q", cfg.Listen.Kind)
	}
	if !cfg.CloseAfterResponse {
		t.Error("Expected close_after_response default")
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen:
  kind: vsock
  port: 7777
db_path: /tmp/from-file.db
log_level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("KEYFOLD_DB_PATH", "/tmp/from-env.db")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen.Kind != wire.TransportVsock || cfg.Listen.Port != 7777 {
		t.Errorf("File values not applied: %+v", cfg.Listen)
	}
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Errorf("Env override not applied: %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug log level, got %q", cfg.LogLevel)
	}
}
