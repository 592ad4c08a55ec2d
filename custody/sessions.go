package custody

import (
	"crypto/ed25519"
	"sync"
)

// SessionState is the explicit per-user conversation state. Transitions are
// driven by the orchestrator; there is no implicit state encoded in string
// comparisons.
type SessionState int

const (
	// StateLoggedOut is the initial state; no secret is held.
	StateLoggedOut SessionState = iota

	// StateAwaitingSignupPassword means the user started sign-up and the
	// next message is treated as their new password.
	StateAwaitingSignupPassword

	// StateAwaitingLoginPassword means the user started login and the next
	// message is treated as their password attempt.
	StateAwaitingLoginPassword

	// StateLoggedIn means the wallet secret is unsealed in session memory.
	StateLoggedIn
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAwaitingSignupPassword:
		return "awaiting_signup_password"
	case StateAwaitingLoginPassword:
		return "awaiting_login_password"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// Session holds one user's conversation state and, while logged in, their
// unsealed wallet secret. The mutex serializes the whole login/logout flow
// so concurrent attempts for the same user cannot interleave.
type Session struct {
	UserID string

	mu       sync.Mutex
	state    SessionState
	secret   []byte
	identity ed25519.PublicKey
}

// Lock takes the session's flow lock. Orchestrator operations hold it for
// the duration of a sign-up or login exchange.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the flow lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// State returns the current state. Callers that need the state to stay put
// must hold the session lock.
func (s *Session) State() SessionState { return s.state }

// SetState moves the session to a non-secret-bearing state. Leaving
// StateLoggedIn through SetState wipes the held secret.
func (s *Session) SetState(state SessionState) {
	if state != StateLoggedIn && s.state == StateLoggedIn {
		s.wipe()
	}
	s.state = state
}

// CompleteLogin installs the unsealed secret and public identity and moves
// to StateLoggedIn. The session takes ownership of the secret slice.
func (s *Session) CompleteLogin(secret []byte, identity ed25519.PublicKey) {
	s.wipe()
	s.secret = secret
	s.identity = identity
	s.state = StateLoggedIn
}

// Logout wipes the secret and returns to StateLoggedOut.
func (s *Session) Logout() {
	s.wipe()
	s.state = StateLoggedOut
}

// Secret returns the unsealed wallet secret, or nil when not logged in. The
// slice is owned by the session; callers must not retain it past Unlock.
func (s *Session) Secret() []byte {
	if s.state != StateLoggedIn {
		return nil
	}
	return s.secret
}

// Identity returns the public identity, or nil when not logged in.
func (s *Session) Identity() ed25519.PublicKey {
	if s.state != StateLoggedIn {
		return nil
	}
	return s.identity
}

func (s *Session) wipe() {
	for i := range s.secret {
		s.secret[i] = 0
	}
	s.secret = nil
	s.identity = nil
}

// SessionTable maps user ids to sessions. Sessions are created on first use
// and live for the process lifetime.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]*Session)}
}

// Get returns the session for a user id, creating it in StateLoggedOut.
func (t *SessionTable) Get(userID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[userID]
	if !ok {
		s = &Session{UserID: userID, state: StateLoggedOut}
		t.sessions[userID] = s
	}
	return s
}

// LogoutAll wipes every session. Used at shutdown.
func (t *SessionTable) LogoutAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sessions {
		s.Lock()
		s.Logout()
		s.Unlock()
	}
}
