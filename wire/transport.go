package wire

import (
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// TransportKind selects the byte-stream binding.
type TransportKind string

const (
	// TransportTCP is a loopback/network socket, used in development.
	TransportTCP TransportKind = "tcp"

	// TransportVsock is a VM socket to a hardware enclave.
	TransportVsock TransportKind = "vsock"
)

// Transport selects and addresses a byte-stream binding. The choice is made
// by configuration at startup and never affects message semantics.
type Transport struct {
	Kind TransportKind `yaml:"kind" env:"KIND"`

	// Addr is the host:port for TCP.
	Addr string `yaml:"addr" env:"ADDR"`

	// CID and Port address the vsock peer. CID is ignored when listening.
	CID  uint32 `yaml:"cid" env:"CID"`
	Port uint32 `yaml:"port" env:"PORT"`
}

// Listen opens a listener for the configured transport.
func (t Transport) Listen() (net.Listener, error) {
	switch t.Kind {
	case TransportTCP:
		ln, err := net.Listen("tcp", t.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on tcp %s: %w", t.Addr, err)
		}
		return ln, nil
	case TransportVsock:
		ln, err := vsock.Listen(t.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on vsock port %d: %w", t.Port, err)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

// Dial connects to the configured peer.
func (t Transport) Dial() (net.Conn, error) {
	switch t.Kind {
	case TransportTCP:
		conn, err := net.Dial("tcp", t.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to dial tcp %s: %w", t.Addr, err)
		}
		return conn, nil
	case TransportVsock:
		conn, err := vsock.Dial(t.CID, t.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial vsock cid %d port %d: %w", t.CID, t.Port, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}
