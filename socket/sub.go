package socket

import "github.com/ulala-x/zlink/message"

// Sub implements the SUB socket (spec section 4.8): Subscribe/Unsubscribe
// translate into SUBSCRIBE/CANCEL control frames sent to every attached
// peer, replayed automatically whenever a peer (re)attaches so a hiccup
// (PUB bounce) doesn't lose the subscription set (spec section 8 scenario
// 3 / SPEC_FULL hiccup-replay note).
type Sub struct {
	base
	subs *subTrie
}

// NewSub constructs an unbound SUB socket.
func NewSub(opts Options) *Sub {
	s := &Sub{base: newBase(TypeSub, opts), subs: newSubTrie()}
	s.onBind = s.replayOnto
	return s
}

// Subscribe adds prefix to the subscription set and announces it to every
// currently attached peer.
func (s *Sub) Subscribe(prefix []byte) {
	s.subs.Add(string(prefix))
	s.broadcast(subEvent{subscribe: true, prefix: prefix})
}

// Unsubscribe removes prefix and announces the cancellation.
func (s *Sub) Unsubscribe(prefix []byte) {
	s.subs.Remove(string(prefix))
	s.broadcast(subEvent{subscribe: false, prefix: prefix})
}

func (s *Sub) broadcast(ev subEvent) {
	for _, ep := range s.snapshot() {
		s.writeOne(ep, encodeSubEvent(ev))
	}
}

// replayOnto resends the full subscription set to a newly (re)attached
// peer, covering the hiccup-recovery path.
func (s *Sub) replayOnto(ep *endpointPipe) error {
	for _, prefix := range s.subs.Snapshot() {
		s.writeOne(ep, encodeSubEvent(subEvent{subscribe: true, prefix: []byte(prefix)}))
	}
	return nil
}

// Send is never valid on SUB (recv-only per spec section 4.8).
func (s *Sub) Send(*message.Message) error {
	return errStateMachine("send")
}

// Recv pops the next data frame from any attached peer, fair-queued
// (arbitrary interleaving across pipes per spec section 5).
func (s *Sub) Recv() (*message.Message, bool) {
	for _, ep := range s.snapshot() {
		if m, ok, delim := ep.inbound.Read(); ok && !delim {
			return m, true
		}
	}
	return nil, false
}
