package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keyfold/keyfold/custody"
)

// Frontend turns per-user chat messages into orchestrator calls. It is the
// development stand-in for the chat platform adapter: one HandleMessage call
// per incoming message, one reply string back.
type Frontend struct {
	orch *custody.Orchestrator

	mu        sync.Mutex
	mnemonics map[string]string // pending recovery phrases, keyed by user id
}

// NewFrontend creates a frontend over an orchestrator.
func NewFrontend(orch *custody.Orchestrator) *Frontend {
	return &Frontend{orch: orch, mnemonics: make(map[string]string)}
}

const helpText = `Commands:
  /signup            create a wallet (you will be asked for a password)
  /recover <phrase>  restore a wallet from its recovery phrase
  /login             unlock your wallet
  /logout            lock your wallet and wipe it from memory
  /address           show your wallet address (requires login)
  /verify            check whether this account is registered
  /help              this message`

// HandleMessage processes one message from a user and returns the reply.
// Non-command text is interpreted by the session state, which is how
// password prompts work: the state decides what the next message means.
func (f *Frontend) HandleMessage(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		return f.handleCommand(ctx, userID, text)
	}
	return f.handleInput(ctx, userID, text)
}

func (f *Frontend) handleCommand(ctx context.Context, userID, text string) string {
	cmd, rest, _ := strings.Cut(text, " ")
	session := f.orch.Sessions().Get(userID)

	switch cmd {
	case "/signup":
		f.setPendingMnemonic(userID, "")
		f.setState(session, custody.StateAwaitingSignupPassword)
		return "Choose a password for your new wallet. Your next message is taken as the password."

	case "/recover":
		phrase := strings.TrimSpace(rest)
		if phrase == "" {
			return "Usage: /recover <recovery phrase>"
		}
		f.setPendingMnemonic(userID, phrase)
		f.setState(session, custody.StateAwaitingSignupPassword)
		return "Choose a password for the recovered wallet. Your next message is taken as the password."

	case "/login":
		f.setState(session, custody.StateAwaitingLoginPassword)
		return "Enter your password."

	case "/logout":
		f.orch.Logout(userID)
		return "Logged out. Your wallet key has been wiped from memory."

	case "/address":
		addr, err := f.orch.Address(userID)
		if err != nil {
			return "You are not logged in. Use /login first."
		}
		return "Your wallet address: " + addr

	case "/verify":
		registered, err := f.orch.Registered(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Verify failed")
			return "Could not reach the custody service. Try again later."
		}
		if registered {
			return "This account is registered."
		}
		return "This account is not registered. Use /signup to create a wallet."

	case "/help":
		return helpText

	default:
		return "Unknown command. " + helpText
	}
}

// handleInput consumes non-command text according to the session state.
func (f *Frontend) handleInput(ctx context.Context, userID, text string) string {
	session := f.orch.Sessions().Get(userID)
	session.Lock()
	state := session.State()
	session.Unlock()

	switch state {
	case custody.StateAwaitingSignupPassword:
		return f.completeSignup(ctx, userID, text)
	case custody.StateAwaitingLoginPassword:
		return f.completeLogin(ctx, userID, text)
	default:
		return "I did not understand that. " + helpText
	}
}

func (f *Frontend) completeSignup(ctx context.Context, userID, password string) string {
	mnemonic := f.takePendingMnemonic(userID)

	var result *custody.SignUpResult
	var err error
	if mnemonic != "" {
		result, err = f.orch.SignUpFromMnemonic(ctx, userID, password, mnemonic)
	} else {
		result, err = f.orch.SignUp(ctx, userID, password)
	}
	if err != nil {
		f.setState(f.orch.Sessions().Get(userID), custody.StateLoggedOut)
		log.Error().Err(err).Str("user_id", userID).Msg("Sign-up failed")
		return "Sign-up failed. Try again with /signup."
	}

	return fmt.Sprintf(
		"Wallet created.\nAddress: %s\n\nRecovery phrase (shown once, write it down):\n%s\n\nUse /login to unlock your wallet.",
		result.Address, result.Mnemonic)
}

func (f *Frontend) completeLogin(ctx context.Context, userID, password string) string {
	ok, err := f.orch.Login(ctx, userID, password)
	if err != nil {
		f.setState(f.orch.Sessions().Get(userID), custody.StateLoggedOut)
		if errors.Is(err, custody.ErrConfigNotFound) || errors.Is(err, custody.ErrInvalidConfig) {
			return "No wallet exists for this account. Use /signup to create one."
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Login failed")
		return "Login failed. Could not reach the custody service."
	}
	if !ok {
		f.setState(f.orch.Sessions().Get(userID), custody.StateLoggedOut)
		return "Wrong password. Use /login to try again."
	}

	addr, err := f.orch.Address(userID)
	if err != nil {
		return "Logged in."
	}
	return "Logged in. Your wallet address: " + addr
}

func (f *Frontend) setState(session *custody.Session, state custody.SessionState) {
	session.Lock()
	session.SetState(state)
	session.Unlock()
}

func (f *Frontend) setPendingMnemonic(userID, phrase string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if phrase == "" {
		delete(f.mnemonics, userID)
		return
	}
	f.mnemonics[userID] = phrase
}

func (f *Frontend) takePendingMnemonic(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	phrase := f.mnemonics[userID]
	delete(f.mnemonics, userID)
	return phrase
}
