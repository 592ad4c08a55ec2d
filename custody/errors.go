package custody

import "errors"

var (
	// ErrAuthenticationFailed indicates a wrong password, detected either
	// at hash verification or at the AEAD tag check.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidConfig indicates a malformed request or stored envelope
	// config rejected by the enclave.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrKeyGeneration indicates the enclave failed to hash or derive.
	ErrKeyGeneration = errors.New("key generation error")

	// ErrStorage indicates an enclave-side persistence failure.
	ErrStorage = errors.New("storage error")

	// ErrConfigNotFound indicates no envelope config exists anywhere for
	// the user; sign-up never completed.
	ErrConfigNotFound = errors.New("envelope config not found")

	// ErrNotLoggedIn indicates an operation that needs an unlocked wallet
	// was attempted on a logged-out session.
	ErrNotLoggedIn = errors.New("not logged in")
)
