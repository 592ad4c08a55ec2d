package main

import (
	"context"
	"encoding/hex"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyfold/keyfold/credential"
	"github.com/keyfold/keyfold/custody"
	"github.com/keyfold/keyfold/envelope"
	"github.com/keyfold/keyfold/wire"
)

// testEnclave is a minimal in-process enclave speaking the wire protocol,
// enough to run the frontend flows end to end.
type testEnclave struct {
	ln net.Listener

	mu      sync.Mutex
	creds   map[string][3]string // hash, salt1 hex, salt2 hex
	configs map[string]string
}

func startTestEnclave(t *testing.T) *testEnclave {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	te := &testEnclave{ln: ln, creds: make(map[string][3]string), configs: make(map[string]string)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				req, err := wire.ReadRequest(conn)
				if err != nil {
					return
				}
				wire.WriteResponse(conn, te.handle(req))
			}()
		}
	}()
	return te
}

func (te *testEnclave) handle(req *wire.Request) *wire.Response {
	te.mu.Lock()
	defer te.mu.Unlock()

	switch req.Type {
	case wire.RequestSetupConfig:
		hash, _ := credential.HashPassword(req.Password)
		salt1, _ := credential.GenerateSalt()
		salt2, _ := credential.GenerateSalt()
		te.creds[req.UserID] = [3]string{hash, hex.EncodeToString(salt1), hex.EncodeToString(salt2)}
		return &wire.Response{Type: wire.ResponseConfigSetup, Salt1: hex.EncodeToString(salt1), Salt2: hex.EncodeToString(salt2), PasswordHash: hash}
	case wire.RequestVerifyAndDeriveKeys:
		cred, ok := te.creds[req.UserID]
		if !ok {
			return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
		}
		if !credential.VerifyPassword(req.Password, cred[0]) {
			return wire.ErrorResponse(wire.ErrMsgAuthenticationFailed)
		}
		salt1, _ := hex.DecodeString(cred[1])
		salt2, _ := hex.DecodeString(cred[2])
		key1, _ := credential.DeriveKey(req.Password, salt1)
		key2, _ := credential.DeriveKey(req.Password, salt2)
		return &wire.Response{Type: wire.ResponseKeys, Key1: key1, Key2: key2}
	case wire.RequestLoadConfig:
		resp := &wire.Response{Type: wire.ResponseConfig}
		if blob, ok := te.configs[req.UserID]; ok {
			resp.Config = &blob
		}
		return resp
	case wire.RequestVerifyUserID:
		_, ok := te.creds[req.UserID]
		return &wire.Response{Type: wire.ResponseUserIDVerified, Verified: ok}
	case wire.RequestStoreEncryptedConfig:
		cfg := envelope.Config{Nonce1: req.Nonce1, Nonce2: req.Nonce2, DoubleEncryptedPrivateKey: req.DoubleEncryptedPrivateKey}
		blob, _ := cfg.Encode()
		te.configs[req.UserID] = blob
		return &wire.Response{Type: wire.ResponseConfigStored}
	default:
		return wire.ErrorResponse(wire.ErrMsgInvalidConfig)
	}
}

func newTestFrontend(t *testing.T) *Frontend {
	t.Helper()

	te := startTestEnclave(t)
	store, err := custody.OpenConfigStore(t.TempDir() + "/bot.db")
	if err != nil {
		t.Fatalf("OpenConfigStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	transport := wire.Transport{Kind: wire.TransportTCP, Addr: te.ln.Addr().String()}
	orch := custody.NewOrchestrator(custody.NewClient(transport, 5*time.Second), store)
	t.Cleanup(orch.Close)
	return NewFrontend(orch)
}

func TestFrontend_SignupLoginFlow(t *testing.T) {
	f := newTestFrontend(t)
	ctx := context.Background()

	reply := f.HandleMessage(ctx, "alice", "/signup")
	if !strings.Contains(reply, "password") {
		t.Fatalf("Expected password prompt, got %q", reply)
	}

	reply = f.HandleMessage(ctx, "alice", "correct horse battery staple")
	if !strings.Contains(reply, "Recovery phrase") || !strings.Contains(reply, "Address:") {
		t.Fatalf("Expected wallet creation reply, got %q", reply)
	}

	reply = f.HandleMessage(ctx, "alice", "/login")
	if !strings.Contains(reply, "password") {
		t.Fatalf("Expected password prompt, got %q", reply)
	}
	reply = f.HandleMessage(ctx, "alice", "correct horse battery staple")
	if !strings.Contains(reply, "Logged in") {
		t.Fatalf("Expected login success, got %q", reply)
	}

	reply = f.HandleMessage(ctx, "alice", "/address")
	if !strings.Contains(reply, "address") {
		t.Fatalf("Expected address reply, got %q", reply)
	}

	reply = f.HandleMessage(ctx, "alice", "/logout")
	if !strings.Contains(reply, "Logged out") {
		t.Fatalf("Expected logout reply, got %q", reply)
	}
	reply = f.HandleMessage(ctx, "alice", "/address")
	if !strings.Contains(reply, "not logged in") {
		t.Fatalf("Expected not-logged-in reply, got %q", reply)
	}
}

func TestFrontend_WrongPassword(t *testing.T) {
	f := newTestFrontend(t)
	ctx := context.Background()

	f.HandleMessage(ctx, "alice", "/signup")
	f.HandleMessage(ctx, "alice", "right password")

	f.HandleMessage(ctx, "alice", "/login")
	reply := f.HandleMessage(ctx, "alice", "wrong password")
	if !strings.Contains(reply, "Wrong password") {
		t.Fatalf("Expected rejection, got %q", reply)
	}

	// The failed attempt resets the state; plain text is no longer a
	// password.
	reply = f.HandleMessage(ctx, "alice", "wrong password again")
	if !strings.Contains(reply, "did not understand") {
		t.Fatalf("Expected fallback reply, got %q", reply)
	}
}

func TestFrontend_RecoverFlow(t *testing.T) {
	f := newTestFrontend(t)
	ctx := context.Background()

	f.HandleMessage(ctx, "alice", "/signup")
	created := f.HandleMessage(ctx, "alice", "first password")

	// Pull the phrase out of the sign-up reply.
	_, after, found := strings.Cut(created, "write it down):\n")
	if !found {
		t.Fatalf("Could not find phrase in reply %q", created)
	}
	phrase := strings.TrimSpace(strings.SplitN(after, "\n\n", 2)[0])

	f.HandleMessage(ctx, "bob", "/recover "+phrase)
	reply := f.HandleMessage(ctx, "bob", "second password")
	if !strings.Contains(reply, "Address:") {
		t.Fatalf("Expected recovery to create wallet, got %q", reply)
	}

	// Same wallet, same address.
	_, aliceAddr, _ := strings.Cut(created, "Address: ")
	aliceAddr = strings.SplitN(aliceAddr, "\n", 2)[0]
	if !strings.Contains(reply, aliceAddr) {
		t.Errorf("Recovered wallet address differs from original")
	}
}

func TestFrontend_Verify(t *testing.T) {
	f := newTestFrontend(t)
	ctx := context.Background()

	reply := f.HandleMessage(ctx, "alice", "/verify")
	if !strings.Contains(reply, "not registered") {
		t.Fatalf("Expected not registered, got %q", reply)
	}

	f.HandleMessage(ctx, "alice", "/signup")
	f.HandleMessage(ctx, "alice", "pw")

	reply = f.HandleMessage(ctx, "alice", "/verify")
	if !strings.Contains(reply, "is registered") {
		t.Fatalf("Expected registered, got %q", reply)
	}
}

func TestFrontend_HelpAndUnknown(t *testing.T) {
	f := newTestFrontend(t)
	ctx := context.Background()

	if reply := f.HandleMessage(ctx, "alice", "/help"); !strings.Contains(reply, "/signup") {
		t.Errorf("Expected help text, got %q", reply)
	}
	if reply := f.HandleMessage(ctx, "alice", "/teleport"); !strings.Contains(reply, "Unknown command") {
		t.Errorf("Expected unknown command reply, got %q", reply)
	}
	if reply := f.HandleMessage(ctx, "alice", "hello there"); !strings.Contains(reply, "did not understand") {
		t.Errorf("Expected fallback reply, got %q", reply)
	}
	if reply := f.HandleMessage(ctx, "alice", "/recover"); !strings.Contains(reply, "Usage") {
		t.Errorf("Expected usage reply, got %q", reply)
	}
}
