package transport

import (
	"context"
	"crypto/tls"
	"sync/atomic"
)

// TLS wraps a *tls.Conn. Speculative I/O is unavailable: TLS record framing
// means even a single-byte non-blocking read can block waiting for the rest
// of a partially-arrived record (spec section 4.3 "speculative path
// unavailable").
type TLS struct {
	conn   *tls.Conn
	closed atomic.Bool
}

// NewTLS wraps a dialed or accepted *tls.Conn. The handshake is not run
// here: Handshake must be called first so the engine can drive it through
// its own timeout/retry policy.
func NewTLS(conn *tls.Conn) *TLS { return &TLS{conn: conn} }

func (t *TLS) Name() string            { return "tls" }
func (t *TLS) IsEncrypted() bool       { return true }
func (t *TLS) RequiresHandshake() bool { return true }
func (t *TLS) IsOpen() bool            { return !t.closed.Load() }
func (t *TLS) LocalAddr() string       { return t.conn.LocalAddr().String() }
func (t *TLS) RemoteAddr() string      { return t.conn.RemoteAddr().String() }

func (t *TLS) Handshake(ctx context.Context, _ Role) error {
	return t.conn.HandshakeContext(ctx)
}

func (t *TLS) Read(p []byte) (int, error) { return t.conn.Read(p) }

func (t *TLS) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *TLS) TrySyncRead(p []byte) (int, error) { return 0, ErrSpeculativeUnsupported }

func (t *TLS) TrySyncWrite(p []byte) (int, error) { return 0, ErrSpeculativeUnsupported }

// WriteV concatenates rather than vectoring: crypto/tls seals one TLS
// record per Write call regardless, so a writev wouldn't save a copy here.
func (t *TLS) WriteV(header, body []byte) (int, error) {
	if len(header) == 0 {
		return t.conn.Write(body)
	}
	if len(body) == 0 {
		return t.conn.Write(header)
	}
	buf := make([]byte, 0, len(header)+len(body))
	buf = append(buf, header...)
	buf = append(buf, body...)
	return t.conn.Write(buf)
}

func (t *TLS) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// ConnectionState exposes the negotiated TLS state for monitor events and
// peer certificate inspection.
func (t *TLS) ConnectionState() tls.ConnectionState { return t.conn.ConnectionState() }
