package socket

import (
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

// Pair implements the PAIR socket (spec section 4.8): exactly one peer.
type Pair struct {
	base
}

// NewPair constructs an unbound PAIR socket.
func NewPair(opts Options) *Pair {
	return &Pair{base: newBase(TypePair, opts)}
}

// CanAcceptPeer reports whether a new connect/accept may proceed; the
// session/listener layer must check this before completing a handshake so
// that a second PAIR peer is refused with AddressInUse (spec section 4.8),
// rather than silently displacing the first.
func (p *Pair) CanAcceptPeer() bool {
	return p.peerCount() == 0
}

// Send queues msg for delivery to the single attached peer. Returns
// StateMachine if no peer is attached, Again if the pipe is at HWM.
func (p *Pair) Send(msg *message.Message) error {
	peers := p.snapshot()
	if len(peers) == 0 {
		return zlerr.New(zlerr.StateMachine, "PAIR has no connected peer")
	}
	if !p.writeOne(peers[0], msg) {
		return zlerr.New(zlerr.Again, "PAIR pipe at high-water mark")
	}
	return nil
}

// Recv pops the next frame from the peer, or (nil, false) if none is
// queued yet.
func (p *Pair) Recv() (*message.Message, bool) {
	peers := p.snapshot()
	if len(peers) == 0 {
		return nil, false
	}
	m, ok, delim := peers[0].inbound.Read()
	if !ok || delim {
		return nil, false
	}
	return m, true
}

// ReadyNotify exposes the single peer's inbound notification channel, or a
// nil channel (which blocks forever in a select) if no peer is attached.
func (p *Pair) ReadyNotify() <-chan struct{} {
	peers := p.snapshot()
	if len(peers) == 0 {
		return nil
	}
	return peers[0].inbound.ReadNotify()
}
