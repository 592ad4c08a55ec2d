package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/keyfold/keyfold/wire"
)

// Config holds the bot process configuration.
type Config struct {
	// Enclave addresses the enclave service.
	Enclave wire.Transport `yaml:"enclave" envPrefix:"ENCLAVE_"`

	// DBPath is the SQLite database for the local envelope config cache.
	DBPath string `yaml:"db_path" env:"DB_PATH"`

	// RequestTimeout bounds each enclave exchange, in seconds.
	RequestTimeout int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// DefaultConfig returns defaults that match the enclave's development setup.
func DefaultConfig() *Config {
	return &Config{
		Enclave: wire.Transport{
			Kind: wire.TransportTCP,
			Addr: "127.0.0.1:5000",
			CID:  16,
			Port: 5000,
		},
		DBPath:         "keyfold-bot.db",
		RequestTimeout: 30,
		LogLevel:       "info",
	}
}

// LoadConfig loads configuration from a YAML file, then applies
// KEYFOLD_BOT_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "KEYFOLD_BOT_"}); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return cfg, nil
}
