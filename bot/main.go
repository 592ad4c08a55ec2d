// Command bot runs the client side of the custody engine with a line-based
// front end standing in for the chat platform adapter. Each input line is
// "<user-id> <message>"; replies go to stdout. Wallet secrets live only in
// the in-process session table and are wiped on logout and at exit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keyfold/keyfold/custody"
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
	}

	log.Info().
		Str("version", Version).
		Str("enclave_transport", string(cfg.Enclave.Kind)).
		Msg("Bot starting")

	store, err := custody.OpenConfigStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config store")
	}
	defer store.Close()

	client := custody.NewClient(cfg.Enclave, time.Duration(cfg.RequestTimeout)*time.Second)
	orch := custody.NewOrchestrator(client, store)
	defer orch.Close()

	frontend := NewFrontend(orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	fmt.Println("keyfold bot ready. Input: <user-id> <message>. Ctrl-D to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Bot shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			userID, text, found := strings.Cut(strings.TrimSpace(line), " ")
			if !found || userID == "" {
				fmt.Println("Input must be: <user-id> <message>")
				continue
			}
			fmt.Println(frontend.HandleMessage(ctx, userID, text))
		}
	}
}
