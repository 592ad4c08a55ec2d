// Command enclave runs the key-custody enclave service: the only process
// that holds credential records, verifies passwords, and derives envelope
// keys. It speaks the framed wire protocol over TCP (development) or vsock
// (hardware enclave) and persists records in a local SQLite database.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, keeping default")
	}

	log.Info().
		Str("version", Version).
		Str("transport", string(cfg.Listen.Kind)).
		Str("db_path", cfg.DBPath).
		Msg("Enclave service starting")

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	ln, err := cfg.Listen.Listen()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	svc := NewService(cfg, store)
	if err := svc.Serve(ctx, ln); err != nil {
		log.Fatal().Err(err).Msg("Enclave service error")
	}

	log.Info().Msg("Enclave service shutdown complete")
}
