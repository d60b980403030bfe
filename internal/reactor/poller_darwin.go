//go:build darwin

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const maxFDLimit = 100000000

var (
	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// kqueuePoller implements Poller atop kqueue, growing its registration slice
// on demand rather than the fixed-size array the Linux epoll variant uses
// (BSD fd numbering makes a 64K fixed table wasteful in the common case).
type kqueuePoller struct {
	kq       int32
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPlatformPoller() Poller { return &kqueuePoller{} }

func (p *kqueuePoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	p.fds = make([]fdInfo, 1024)
	return nil
}

func (p *kqueuePoller) Close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *kqueuePoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.growLocked(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) > 0 {
		if _, err := unix.Kevent(int(p.kq), kevs, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdInfo{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) growLocked(fd int) {
	if fd < len(p.fds) {
		return
	}
	newSize := fd*2 + 1
	if newSize > maxFDLimit {
		newSize = maxFDLimit + 1
	}
	grown := make([]fdInfo, newSize)
	copy(grown, p.fds)
	p.fds = grown
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	kevs := eventsToKevents(fd, events, unix.EV_DELETE)
	if len(kevs) > 0 {
		_, _ = unix.Kevent(int(p.kq), kevs, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	old := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	if old&^events != 0 {
		if kevs := eventsToKevents(fd, old&^events, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(int(p.kq), kevs, nil, nil)
		}
	}
	if events&^old != 0 {
		if kevs := eventsToKevents(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(int(p.kq), kevs, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1000000)}
	}
	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *kqueuePoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 {
			continue
		}
		p.fdMu.RLock()
		var info fdInfo
		if fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if events&EventRead != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevs
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
