package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_CredentialRoundTrip(t *testing.T) {
	store := openTestStore(t)

	rec := &CredentialRecord{
		UserID:       "alice",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		Salt1:        []byte("0123456789abcdef"),
		Salt2:        []byte("fedcba9876543210"),
	}
	if err := store.PutCredential(rec); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}

	got, err := store.GetCredential("alice")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected record, got nil")
	}
	if got.PasswordHash != rec.PasswordHash {
		t.Errorf("Hash mismatch: %q", got.PasswordHash)
	}
	if !bytes.Equal(got.Salt1, rec.Salt1) || !bytes.Equal(got.Salt2, rec.Salt2) {
		t.Error("Salts did not survive the round trip")
	}
	if got.CreatedAt == 0 {
		t.Error("Expected created_at to be set")
	}
}

func TestStore_GetCredential_Unknown(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetCredential("nobody")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for unknown user, got %+v", got)
	}
}

func TestStore_PutCredential_Replaces(t *testing.T) {
	store := openTestStore(t)

	first := &CredentialRecord{UserID: "alice", PasswordHash: "hash-one", Salt1: []byte("s1"), Salt2: []byte("s2")}
	if err := store.PutCredential(first); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}
	second := &CredentialRecord{UserID: "alice", PasswordHash: "hash-two", Salt1: []byte("s3"), Salt2: []byte("s4")}
	if err := store.PutCredential(second); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}

	got, err := store.GetCredential("alice")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.PasswordHash != "hash-two" {
		t.Errorf("Expected replacement hash, got %q", got.PasswordHash)
	}
}

func TestStore_HasUser(t *testing.T) {
	store := openTestStore(t)

	ok, err := store.HasUser("alice")
	if err != nil {
		t.Fatalf("HasUser failed: %v", err)
	}
	if ok {
		t.Error("Expected no user before setup")
	}

	rec := &CredentialRecord{UserID: "alice", PasswordHash: "h", Salt1: []byte("a"), Salt2: []byte("b")}
	if err := store.PutCredential(rec); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}

	ok, err = store.HasUser("alice")
	if err != nil {
		t.Fatalf("HasUser failed: %v", err)
	}
	if !ok {
		t.Error("Expected user after setup")
	}
}

func TestStore_EnvelopeConfigUpsert(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.GetEnvelopeConfig("alice")
	if err != nil {
		t.Fatalf("GetEnvelopeConfig failed: %v", err)
	}
	if ok {
		t.Error("Expected no config before storing")
	}

	if err := store.PutEnvelopeConfig("alice", `{"v":1}`); err != nil {
		t.Fatalf("PutEnvelopeConfig failed: %v", err)
	}
	if err := store.PutEnvelopeConfig("alice", `{"v":2}`); err != nil {
		t.Fatalf("PutEnvelopeConfig upsert failed: %v", err)
	}

	config, ok, err := store.GetEnvelopeConfig("alice")
	if err != nil {
		t.Fatalf("GetEnvelopeConfig failed: %v", err)
	}
	if !ok || config != `{"v":2}` {
		t.Errorf("Expected latest config, got ok=%v config=%q", ok, config)
	}
}

func TestStore_AuditRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if err := store.AppendAudit("auth_success", "alice", map[string]string{"transport": "tcp"}); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}
	if err := store.AppendAudit("auth_failure", "alice", nil); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}

	events, err := store.ListAudit("alice", 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.ID == "" || ev.UserID != "alice" || ev.CreatedAt == 0 {
			t.Errorf("Incomplete event: %+v", ev)
		}
	}

	events, err = store.ListAudit("bob", 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events for bob, got %d", len(events))
	}
}
