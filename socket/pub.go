package socket

import "github.com/ulala-x/zlink/message"

// Pub implements the PUB socket (spec section 4.8): fan-out send, filtered
// per-peer by the subscription trie pubCore builds from each peer's
// SUBSCRIBE/CANCEL frames.
type Pub struct {
	pubCore
}

// NewPub constructs an unbound PUB socket.
func NewPub(opts Options) *Pub {
	return &Pub{pubCore: newPubCore(TypePub, opts)}
}

// Send filters by each peer's subscription trie before forwarding.
func (p *Pub) Send(msg *message.Message) error {
	return p.pubCore.Send(msg, true)
}

// Recv is never valid on PUB (send-only per spec section 4.8).
func (p *Pub) Recv() (*message.Message, bool) {
	return nil, false
}
