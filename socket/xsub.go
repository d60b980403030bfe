package socket

import "github.com/ulala-x/zlink/message"

// XSub implements the XSUB socket (spec section 4.8): exposes the raw
// SUBSCRIBE/CANCEL wire frames to the user instead of a Subscribe/
// Unsubscribe API — the application builds the frame itself (one verb
// byte followed by the prefix) and Sends it like any other message; XSub
// forwards it to every attached peer as a control frame and tracks it
// locally so a reconnecting peer gets the set replayed.
type XSub struct {
	base
	subs *subTrie
}

// NewXSub constructs an unbound XSUB socket.
func NewXSub(opts Options) *XSub {
	x := &XSub{base: newBase(TypeXSub, opts), subs: newSubTrie()}
	x.onBind = x.replayOnto
	return x
}

// Send interprets a leading verb byte (0x01 subscribe, 0x00 cancel) the
// same way the wire SUBSCRIBE/CANCEL body is shaped; any other frame is
// forwarded to peers unfiltered as ordinary data (XSUB may also publish,
// per the original ZeroMQ xsub.cpp allowing upstream data flow).
func (x *XSub) Send(msg *message.Message) error {
	data := msg.Data()
	if len(data) >= 1 && (data[0] == 0x00 || data[0] == 0x01) {
		ev := subEvent{subscribe: data[0] == 0x01, prefix: data[1:]}
		if ev.subscribe {
			x.subs.Add(string(ev.prefix))
		} else {
			x.subs.Remove(string(ev.prefix))
		}
		for _, ep := range x.snapshot() {
			x.writeOne(ep, encodeSubEvent(ev))
		}
		return nil
	}
	for _, ep := range x.snapshot() {
		x.writeOne(ep, msg.Clone())
	}
	return nil
}

func (x *XSub) replayOnto(ep *endpointPipe) error {
	for _, prefix := range x.subs.Snapshot() {
		x.writeOne(ep, encodeSubEvent(subEvent{subscribe: true, prefix: []byte(prefix)}))
	}
	return nil
}

// Recv pops the next data frame delivered by an attached peer.
func (x *XSub) Recv() (*message.Message, bool) {
	for _, ep := range x.snapshot() {
		if m, ok, delim := ep.inbound.Read(); ok && !delim {
			return m, true
		}
	}
	return nil, false
}
