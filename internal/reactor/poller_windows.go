//go:build windows

package reactor

import (
	"errors"
	"time"
)

// Windows has no epoll/kqueue equivalent exposed at the fd level that plays
// well with Go's net package (IOCP is owned by the runtime netpoller). We
// do not duplicate it: on this platform RegisterFD is a no-op and transports
// always take the blocking-goroutine path (spec section 4.5 notes
// speculative I/O is a TCP/IPC optimization, not a correctness requirement).
// Wait degrades to a timer so the worker's mailbox is still polled.
type noopPoller struct {
	closed bool
}

var (
	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

func newPlatformPoller() Poller { return &noopPoller{} }

func (p *noopPoller) Init() error { return nil }

func (p *noopPoller) Close() error {
	p.closed = true
	return nil
}

func (p *noopPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error { return nil }

func (p *noopPoller) UnregisterFD(fd int) error { return nil }

func (p *noopPoller) ModifyFD(fd int, events IOEvents) error { return nil }

func (p *noopPoller) Wait(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	if timeoutMs < 0 || timeoutMs > 50 {
		timeoutMs = 50
	}
	time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
	return 0, nil
}
