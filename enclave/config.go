package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/keyfold/keyfold/wire"
)

// Config holds the enclave service configuration.
type Config struct {
	// Listen selects the transport the service accepts connections on.
	Listen wire.Transport `yaml:"listen" envPrefix:"LISTEN_"`

	// DBPath is the SQLite database file for user records.
	DBPath string `yaml:"db_path" env:"DB_PATH"`

	// CloseAfterResponse closes each connection after one exchange instead
	// of serving requests in a loop. Matches clients that dial per request.
	CloseAfterResponse bool `yaml:"close_after_response" env:"CLOSE_AFTER_RESPONSE"`

	// LogLevel is a zerolog level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// DefaultConfig returns the default configuration: TCP loopback for
// development, vsock is selected explicitly in production.
func DefaultConfig() *Config {
	return &Config{
		Listen: wire.Transport{
			Kind: wire.TransportTCP,
			Addr: "127.0.0.1:5000",
			Port: 5000,
		},
		DBPath:             "keyfold-enclave.db",
		CloseAfterResponse: true,
		LogLevel:           "info",
	}
}

// LoadConfig loads configuration from a YAML file, then applies KEYFOLD_*
// environment overrides on top. A missing file is not an error.
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

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "KEYFOLD_"}); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return cfg, nil
}
