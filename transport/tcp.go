package transport

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// TCP wraps a *net.TCPConn. It is the one transport for which speculative
// I/O (spec section 4.5) is a genuine non-blocking syscall rather than a
// best-effort Read/Write: TrySyncRead/TrySyncWrite run the raw read(2)/
// write(2) through (*net.TCPConn).SyscallConn so the attempt never blocks
// the calling goroutine even though the conn's fd is otherwise owned by the
// Go runtime's netpoller.
type TCP struct {
	conn   *net.TCPConn
	raw    syscall.RawConn
	closed atomic.Bool
}

// NewTCP wraps an already-established TCP connection (the listener/dialer
// lives in the socket package, which knows about bind/connect retry and
// monitor events; Transport only owns steady-state I/O).
func NewTCP(conn *net.TCPConn) (*TCP, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &TCP{conn: conn, raw: raw}, nil
}

func (t *TCP) Name() string             { return "tcp" }
func (t *TCP) IsEncrypted() bool        { return false }
func (t *TCP) RequiresHandshake() bool  { return false }
func (t *TCP) Handshake(context.Context, Role) error { return nil }
func (t *TCP) IsOpen() bool             { return !t.closed.Load() }
func (t *TCP) LocalAddr() string        { return t.conn.LocalAddr().String() }
func (t *TCP) RemoteAddr() string       { return t.conn.RemoteAddr().String() }

func (t *TCP) Read(p []byte) (int, error) { return t.conn.Read(p) }

func (t *TCP) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *TCP) TrySyncRead(p []byte) (int, error) {
	var n int
	var opErr error
	err := t.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if opErr != nil {
		return n, opErr
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (t *TCP) TrySyncWrite(p []byte) (int, error) {
	var n int
	var opErr error
	err := t.raw.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)
		if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	return n, opErr
}

// WriteV issues one writev(2) when both spans are non-empty, avoiding the
// copy a concatenated Write would need for large frame bodies.
func (t *TCP) WriteV(header, body []byte) (int, error) {
	if len(header) == 0 {
		return t.conn.Write(body)
	}
	if len(body) == 0 {
		return t.conn.Write(header)
	}
	buffers := net.Buffers{header, body}
	n64, err := buffers.WriteTo(t.conn)
	return int(n64), err
}

func (t *TCP) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// FD exposes the raw descriptor for workers that want to register TCP
// connections directly with a reactor.Poller rather than relying on
// blocking Read from a pumped goroutine. Returns (-1, false) once closed.
func (t *TCP) FD() (fd int, ok bool) {
	if t.closed.Load() {
		return -1, false
	}
	var out int
	err := t.raw.Control(func(fd uintptr) { out = int(fd) })
	if err != nil {
		return -1, false
	}
	return out, true
}
