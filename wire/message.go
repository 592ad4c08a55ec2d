// Package wire defines the request/response protocol between the custody
// orchestrator and the enclave service: a closed set of JSON messages framed
// with a 4-byte big-endian length prefix, carried over a pluggable byte-stream
// transport (TCP for development, vsock for hardware enclaves).
package wire

// RequestType discriminates the request union.
type RequestType string

const (
	RequestSetupConfig          RequestType = "setup_config"
	RequestVerifyAndDeriveKeys  RequestType = "verify_and_derive_keys"
	RequestLoadConfig           RequestType = "load_config"
	RequestVerifyUserID         RequestType = "verify_user_id"
	RequestStoreEncryptedConfig RequestType = "store_encrypted_config"
)

// ResponseType discriminates the response union.
type ResponseType string

const (
	ResponseConfigSetup    ResponseType = "config_setup"
	ResponseKeys           ResponseType = "keys"
	ResponseConfig         ResponseType = "config"
	ResponseConfigStored   ResponseType = "config_stored"
	ResponseUserIDVerified ResponseType = "user_id_verified"
	ResponseError          ResponseType = "error"
)

// Canonical error messages carried in Error responses. The client maps these
// back to typed errors, so retry logic never parses free text.
const (
	ErrMsgAuthenticationFailed = "authentication failed"
	ErrMsgInvalidConfig        = "invalid configuration"
	ErrMsgKeyGeneration        = "key generation error"
	ErrMsgStorage              = "storage error"
)

// Request is the wire format for enclave requests. Unused fields are omitted
// per request type.
type Request struct {
	Type     RequestType `json:"type"`
	UserID   string      `json:"user_id,omitempty"`
	Password string      `json:"password,omitempty"`

	// store_encrypted_config fields, hex-encoded
	Nonce1                    string `json:"nonce1,omitempty"`
	Nonce2                    string `json:"nonce2,omitempty"`
	DoubleEncryptedPrivateKey string `json:"double_encrypted_private_key,omitempty"`
}

// Response is the wire format for enclave responses.
type Response struct {
	Type ResponseType `json:"type"`

	// config_setup fields; salts are hex-encoded, the hash is a PHC string
	Salt1        string `json:"salt1,omitempty"`
	Salt2        string `json:"salt2,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`

	// keys fields, 32 bytes each
	Key1 []byte `json:"key1,omitempty"`
	Key2 []byte `json:"key2,omitempty"`

	// config field: the serialized EnvelopeKeyConfig, nil when absent
	Config *string `json:"config,omitempty"`

	// user_id_verified field
	Verified bool `json:"verified,omitempty"`

	// error field
	Error string `json:"error,omitempty"`
}

// ErrorResponse builds an Error response with the given message.
func ErrorResponse(message string) *Response {
	return &Response{Type: ResponseError, Error: message}
}
