// Package transport implements the byte-stream abstraction of spec section
// 4.3: one concrete adapter per wire scheme (tcp, tls, ipc, ws, wss), all
// satisfying the same Transport interface so the engine layer never branches
// on scheme.
package transport

import (
	"context"
	"errors"
)

// Role distinguishes which side of a connection a Transport represents,
// since TLS and WS handshakes are asymmetric (client Dial vs. server Accept).
type Role int

const (
	RoleConnect Role = iota
	RoleAccept
)

// ErrWouldBlock is returned by TrySyncRead/TrySyncWrite when no data is
// currently available without blocking (spec section 4.5 speculative I/O).
var ErrWouldBlock = errors.New("transport: would block")

// ErrSpeculativeUnsupported is returned by transports whose underlying
// stream has no non-blocking path (TLS record framing, WS frame boundaries).
var ErrSpeculativeUnsupported = errors.New("transport: speculative i/o unsupported")

// Transport is the uniform byte-stream surface the engine drives. Open/dial
// happens in the constructor for each concrete type; Transport itself only
// covers the steady-state I/O lifecycle.
type Transport interface {
	// Name identifies the scheme for logging and monitor events ("tcp",
	// "tls", "ipc", "ws", "wss").
	Name() string

	// IsEncrypted reports whether bytes on the wire are ciphertext.
	IsEncrypted() bool

	// RequiresHandshake reports whether Handshake must complete before
	// Read/Write are meaningful (true for tls, ws, wss).
	RequiresHandshake() bool

	// Handshake performs the transport-level handshake (TLS negotiation,
	// WS HTTP upgrade). A no-op returning nil for tcp/ipc.
	Handshake(ctx context.Context, role Role) error

	// Read blocks until at least one byte is available or the stream ends.
	Read(p []byte) (int, error)

	// TrySyncRead attempts a non-blocking read. Returns ErrWouldBlock if
	// nothing is ready, ErrSpeculativeUnsupported if this transport has no
	// non-blocking path at all (the engine must fall back to a pumped Read).
	TrySyncRead(p []byte) (int, error)

	// Write blocks until p is fully written or an error occurs.
	Write(p []byte) (int, error)

	// TrySyncWrite attempts a non-blocking write, semantics mirroring
	// TrySyncRead.
	TrySyncWrite(p []byte) (int, error)

	// WriteV performs a gather write of header immediately followed by
	// body, used when Encoder.PreferGather reports true. Transports that
	// cannot vector the write concatenate internally.
	WriteV(header, body []byte) (int, error)

	Close() error
	IsOpen() bool

	LocalAddr() string
	RemoteAddr() string
}
