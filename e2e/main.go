// Package main provides an end-to-end test of the custody flows against a
// running enclave service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keyfold/keyfold/custody"
	"github.com/keyfold/keyfold/wire"
)

const (
	testUserID   = "e2e-alice"
	testPassword = "correct horse battery staple"
)

func main() {
	addr := os.Getenv("KEYFOLD_ENCLAVE_ADDR")
	if addr == "" {
		addr = "127.0.0.1:5000"
	}

	fmt.Println("=== keyfold custody E2E test ===")
	fmt.Printf("Enclave: tcp %s\n\n", addr)

	tmpDir, err := os.MkdirTemp("", "keyfold-e2e-*")
	if err != nil {
		fmt.Printf("FAIL could not create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	store, err := custody.OpenConfigStore(filepath.Join(tmpDir, "configs.db"))
	if err != nil {
		fmt.Printf("FAIL could not open config store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	transport := wire.Transport{Kind: wire.TransportTCP, Addr: addr}
	orch := custody.NewOrchestrator(custody.NewClient(transport, 10*time.Second), store)
	defer orch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	passed := 0
	failed := 0

	tests := []struct {
		name string
		run  func(context.Context, *custody.Orchestrator) error
	}{
		{"sign-up", testSignUp},
		{"login with correct password", testLogin},
		{"login with wrong password rejected", testWrongPassword},
		{"logout wipes session", testLogout},
		{"registered user id verifies", testVerify},
	}
	for _, tc := range tests {
		fmt.Printf("--- %s ---\n", tc.name)
		if err := tc.run(ctx, orch); err != nil {
			fmt.Printf("  FAIL %v\n", err)
			failed++
		} else {
			fmt.Println("  ok")
			passed++
		}
	}

	fmt.Println("\n=== Summary ===")
	fmt.Printf("Passed: %d\n", passed)
	fmt.Printf("Failed: %d\n", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

var signUpAddress string

func testSignUp(ctx context.Context, orch *custody.Orchestrator) error {
	result, err := orch.SignUp(ctx, testUserID, testPassword)
	if err != nil {
		return fmt.Errorf("sign-up failed: %w", err)
	}
	if result.Mnemonic == "" || result.Address == "" {
		return fmt.Errorf("incomplete sign-up result: %+v", result)
	}
	signUpAddress = result.Address
	fmt.Printf("  wallet address: %s\n", result.Address)
	return nil
}

func testLogin(ctx context.Context, orch *custody.Orchestrator) error {
	ok, err := orch.Login(ctx, testUserID, testPassword)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !ok {
		return errors.New("correct password was rejected")
	}
	addr, err := orch.Address(testUserID)
	if err != nil {
		return fmt.Errorf("address unavailable after login: %w", err)
	}
	if addr != signUpAddress {
		return fmt.Errorf("address %s does not match sign-up address %s", addr, signUpAddress)
	}
	return nil
}

func testWrongPassword(ctx context.Context, orch *custody.Orchestrator) error {
	ok, err := orch.Login(ctx, testUserID, "not the password")
	if err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}
	if ok {
		return errors.New("wrong password was accepted")
	}
	return nil
}

func testLogout(ctx context.Context, orch *custody.Orchestrator) error {
	if ok, err := orch.Login(ctx, testUserID, testPassword); err != nil || !ok {
		return fmt.Errorf("login before logout failed: ok=%v err=%v", ok, err)
	}
	orch.Logout(testUserID)
	if _, err := orch.Address(testUserID); !errors.Is(err, custody.ErrNotLoggedIn) {
		return fmt.Errorf("expected ErrNotLoggedIn after logout, got %v", err)
	}
	return nil
}

func testVerify(ctx context.Context, orch *custody.Orchestrator) error {
	ok, err := orch.Registered(ctx, testUserID)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	if !ok {
		return errors.New("registered user did not verify")
	}
	return nil
}
