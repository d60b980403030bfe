package zlerr

import (
	"errors"
	"net"
	"os"
	"syscall"
)

// Classify maps a raw transport-layer error (from net, crypto/tls, or the
// syscall package) onto the Kind taxonomy of section 7. It is the seam
// engines and transports use so that the same classification logic is not
// duplicated per transport adapter.
//
// Unrecognized errors are wrapped as ConnectionAborted, the closest
// catch-all for "the transport died for a reason we didn't bucket".
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var zerr *Error
	if errors.As(err, &zerr) {
		return zerr
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return Wrap(Timeout, "deadline exceeded", err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if kind, ok := classifyErrno(errno); ok {
			return Wrap(kind, "syscall error", err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return Wrap(Timeout, "operation timed out", err)
		}
	}

	if errors.Is(err, net.ErrClosed) {
		return Wrap(NotConnected, "use of closed network connection", err)
	}

	return Wrap(ConnectionAborted, "unclassified transport error", err)
}

// classifyErrno maps the POSIX errno values relevant to transport/connect
// failures onto a Kind. Returns ok=false for errno values we do not bucket.
func classifyErrno(errno syscall.Errno) (Kind, bool) {
	switch errno {
	case syscall.EADDRINUSE:
		return AddressInUse, true
	case syscall.EADDRNOTAVAIL:
		return AddressNotAvailable, true
	case syscall.ENETUNREACH, syscall.ENETDOWN:
		return NetworkUnreachable, true
	case syscall.EHOSTUNREACH:
		return HostUnreachable, true
	case syscall.ECONNREFUSED:
		return ConnectionRefused, true
	case syscall.ECONNRESET:
		return ConnectionReset, true
	case syscall.ECONNABORTED:
		return ConnectionAborted, true
	case syscall.ENOTCONN:
		return NotConnected, true
	case syscall.ETIMEDOUT:
		return Timeout, true
	default:
		return 0, false
	}
}
