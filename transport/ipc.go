package transport

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// IPC wraps a Unix domain socket connection. Per spec section 4.3, IPC
// shares TCP's read-side speculative path but disables speculative write:
// unlike TCP, partial writes on a full socket buffer are common enough on
// some platforms that the extra syscall isn't worth it, so TrySyncWrite
// always reports unsupported and the engine falls back to a pumped Write.
type IPC struct {
	conn    *net.UnixConn
	raw     syscall.RawConn
	closed  atomic.Bool
	peerPID int32 // from SO_PEERCRED/LOCAL_PEERCRED, 0 if unknown
	peerUID uint32
}

// NewIPC wraps an established Unix domain socket connection and attempts to
// read peer credentials (spec's IPC_FILTER_PID/IPC_FILTER_UID supplemented
// feature), ignoring failure since credential passing isn't available on
// every platform.
func NewIPC(conn *net.UnixConn) (*IPC, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	t := &IPC{conn: conn, raw: raw}
	if pid, uid, ok := peerCredentials(conn); ok {
		t.peerPID, t.peerUID = pid, uid
	}
	return t, nil
}

func (t *IPC) Name() string            { return "ipc" }
func (t *IPC) IsEncrypted() bool       { return false }
func (t *IPC) RequiresHandshake() bool { return false }
func (t *IPC) Handshake(context.Context, Role) error { return nil }
func (t *IPC) IsOpen() bool            { return !t.closed.Load() }
func (t *IPC) LocalAddr() string       { return t.conn.LocalAddr().String() }
func (t *IPC) RemoteAddr() string      { return t.conn.RemoteAddr().String() }

// PeerCredentials returns the connecting process's pid/uid if the platform
// supports SO_PEERCRED (Linux) or LOCAL_PEERCRED (Darwin), and whether they
// were obtained.
func (t *IPC) PeerCredentials() (pid int32, uid uint32, ok bool) {
	return t.peerPID, t.peerUID, t.peerPID != 0 || t.peerUID != 0
}

func (t *IPC) Read(p []byte) (int, error) { return t.conn.Read(p) }

func (t *IPC) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *IPC) TrySyncRead(p []byte) (int, error) {
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

func (t *IPC) TrySyncWrite(p []byte) (int, error) {
	return 0, ErrSpeculativeUnsupported
}

func (t *IPC) WriteV(header, body []byte) (int, error) {
	if len(header) == 0 {
		return t.conn.Write(body)
	}
	buf := make([]byte, 0, len(header)+len(body))
	buf = append(buf, header...)
	buf = append(buf, body...)
	return t.conn.Write(buf)
}

func (t *IPC) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}
