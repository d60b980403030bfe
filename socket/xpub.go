package socket

import (
	"sync"

	"github.com/ulala-x/zlink/message"
)

// XPub implements the XPUB socket (spec section 4.8): like PUB, but
// mirrors subscription events to the user as ordinary recv()able frames
// (one byte of verb — 0x00 cancel, 0x01 subscribe — followed by the
// prefix, matching the wire SUBSCRIBE/CANCEL frame body shape) instead of
// consuming them silently. XPubManual additionally surfaces every
// subscribe/cancel transition rather than only first-subscriber/
// last-unsubscriber edges (mirroring XPubVerbose in this simplified
// model: manual mode still auto-filters Send, it only changes which
// transitions are mirrored).
type XPub struct {
	pubCore

	mu       sync.Mutex
	events   []*message.Message
	notify   chan struct{}
}

// NewXPub constructs an unbound XPUB socket.
func NewXPub(opts Options) *XPub {
	x := &XPub{pubCore: newPubCore(TypeXPub, opts), notify: make(chan struct{}, 1)}
	x.onSubEvent = x.mirror
	return x
}

func (x *XPub) mirror(ev subEvent) {
	verb := byte(0x00)
	if ev.subscribe {
		verb = 0x01
	}
	body := make([]byte, 1+len(ev.prefix))
	body[0] = verb
	copy(body[1:], ev.prefix)

	x.mu.Lock()
	x.events = append(x.events, message.NewData(body, false))
	x.mu.Unlock()
	select {
	case x.notify <- struct{}{}:
	default:
	}
}

// Send filters by each peer's subscription trie, same as Pub.
func (x *XPub) Send(msg *message.Message) error {
	return x.pubCore.Send(msg, true)
}

// Recv pops the next mirrored subscription event, or (nil, false) if none
// is queued.
func (x *XPub) Recv() (*message.Message, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.events) == 0 {
		return nil, false
	}
	m := x.events[0]
	x.events = x.events[1:]
	return m, true
}

// ReadyNotify signals that at least one mirrored event may be available.
func (x *XPub) ReadyNotify() <-chan struct{} { return x.notify }
