package transport

import (
	"context"
	"net"
	"sync/atomic"
)

// Mem wraps an in-memory net.Pipe() half for the inproc transport (spec
// section 6.2 "inproc://NAME"): same-process delivery needs no real
// socket, but reusing the Transport interface keeps the engine's read/
// write/encode loop identical across every transport kind. No speculative
// path or handshake: the two ends are already connected by construction.
type Mem struct {
	conn   net.Conn
	closed atomic.Bool
}

// NewMem wraps one half of a net.Pipe() pair.
func NewMem(conn net.Conn) *Mem { return &Mem{conn: conn} }

func (m *Mem) Name() string            { return "inproc" }
func (m *Mem) IsEncrypted() bool       { return false }
func (m *Mem) RequiresHandshake() bool { return false }
func (m *Mem) IsOpen() bool            { return !m.closed.Load() }
func (m *Mem) LocalAddr() string       { return m.conn.LocalAddr().String() }
func (m *Mem) RemoteAddr() string      { return m.conn.RemoteAddr().String() }

func (m *Mem) Handshake(context.Context, Role) error { return nil }

func (m *Mem) Read(p []byte) (int, error)  { return m.conn.Read(p) }
func (m *Mem) Write(p []byte) (int, error) { return m.conn.Write(p) }

func (m *Mem) TrySyncRead(p []byte) (int, error)  { return 0, ErrSpeculativeUnsupported }
func (m *Mem) TrySyncWrite(p []byte) (int, error) { return 0, ErrSpeculativeUnsupported }

func (m *Mem) WriteV(header, body []byte) (int, error) {
	if len(header) == 0 {
		return m.conn.Write(body)
	}
	buf := make([]byte, 0, len(header)+len(body))
	buf = append(buf, header...)
	buf = append(buf, body...)
	return m.conn.Write(buf)
}

func (m *Mem) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.conn.Close()
}
