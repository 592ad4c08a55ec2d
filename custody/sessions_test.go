package custody

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestSessionTable_GetCreates(t *testing.T) {
	table := NewSessionTable()

	s := table.Get("alice")
	if s == nil || s.UserID != "alice" {
		t.Fatalf("Unexpected session: %+v", s)
	}
	if s.State() != StateLoggedOut {
		t.Errorf("Expected logged_out, got %v", s.State())
	}
	if table.Get("alice") != s {
		t.Error("Expected the same session on repeat Get")
	}
}

func TestSession_LoginLogoutWipesSecret(t *testing.T) {
	s := NewSessionTable().Get("alice")
	s.Lock()
	defer s.Unlock()

	secret := []byte{1, 2, 3, 4}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)

	s.CompleteLogin(secret, pub)
	if s.State() != StateLoggedIn {
		t.Fatalf("Expected logged_in, got %v", s.State())
	}
	if !bytes.Equal(s.Secret(), []byte{1, 2, 3, 4}) {
		t.Error("Secret not held while logged in")
	}

	s.Logout()
	if s.State() != StateLoggedOut {
		t.Errorf("Expected logged_out, got %v", s.State())
	}
	if s.Secret() != nil || s.Identity() != nil {
		t.Error("Secret must be gone after logout")
	}
	// The original slice must have been zeroed, not just dropped.
	if !bytes.Equal(secret, []byte{0, 0, 0, 0}) {
		t.Errorf("Secret bytes not wiped: %v", secret)
	}
}

func TestSession_SetStateLeavingLoggedInWipes(t *testing.T) {
	s := NewSessionTable().Get("alice")
	s.Lock()
	defer s.Unlock()

	secret := []byte{9, 9}
	s.CompleteLogin(secret, make(ed25519.PublicKey, ed25519.PublicKeySize))

	s.SetState(StateAwaitingLoginPassword)
	if s.Secret() != nil {
		t.Error("Secret must not survive leaving logged_in")
	}
	if secret[0] != 0 || secret[1] != 0 {
		t.Error("Secret bytes not wiped")
	}
}

func TestSession_SecretNilWhenLoggedOut(t *testing.T) {
	s := NewSessionTable().Get("alice")
	s.Lock()
	defer s.Unlock()

	if s.Secret() != nil || s.Identity() != nil {
		t.Error("Expected nil secret and identity before login")
	}
}

func TestSessionState_String(t *testing.T) {
	cases := map[SessionState]string{
		StateLoggedOut:              "logged_out",
		StateAwaitingSignupPassword: "awaiting_signup_password",
		StateAwaitingLoginPassword:  "awaiting_login_password",
		StateLoggedIn:               "logged_in",
		SessionState(42):            "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d: expected %q, got %q", state, want, got)
		}
	}
}

func TestSessionTable_LogoutAll(t *testing.T) {
	table := NewSessionTable()

	a := table.Get("alice")
	a.Lock()
	a.CompleteLogin([]byte{1}, make(ed25519.PublicKey, ed25519.PublicKeySize))
	a.Unlock()

	b := table.Get("bob")
	b.Lock()
	b.CompleteLogin([]byte{2}, make(ed25519.PublicKey, ed25519.PublicKeySize))
	b.Unlock()

	table.LogoutAll()

	for _, s := range []*Session{a, b} {
		s.Lock()
		if s.State() != StateLoggedOut {
			t.Errorf("Session %s not logged out", s.UserID)
		}
		s.Unlock()
	}
}
