// Package message implements the zlink wire frame (spec section 3 "Message"
// and section 9 "Manual memory & zero-copy"). A Message owns exactly one
// payload variant; the variant discriminant is threaded through the wire
// codecs (internal/wire) and the engine so that writes larger than a small
// threshold can go out as a gather-write span instead of a copy.
package message

import "sync/atomic"

// Flag is a bitset of per-frame properties, mirroring the ZMP flags octet
// (spec section 4.4.2) one-to-one so the decoder can assign Flags directly
// from the wire byte.
type Flag uint8

const (
	// FlagMore indicates more frames follow in this logical message.
	FlagMore Flag = 1 << iota
	// FlagCommand marks a control frame (SUBSCRIBE/CANCEL/PING/PONG/HELLO/READY/ERROR).
	FlagCommand
	// FlagSubscribe marks a subscription command (implies FlagCommand).
	FlagSubscribe
	// FlagCancel marks a cancel command (implies FlagCommand).
	FlagCancel
	// FlagRoutingID marks a frame carrying a routing-id prefix.
	FlagRoutingID
	// FlagPing marks a heartbeat ping (implies FlagCommand).
	FlagPing
	// FlagPong marks a heartbeat pong (implies FlagCommand).
	FlagPong
	// flagShared is an internal bookkeeping bit, not part of the wire flags
	// octet: it records that Message.payload is a *shared and therefore
	// Close must decrement a refcount instead of freeing unconditionally.
	flagShared
)

// Has reports whether all bits of other are set in f.
func (f Flag) Has(other Flag) bool { return f&other == other }

// gatherWriteThreshold is the payload size (bytes) above which the engine
// prefers a vectored/gather write over copying header and body into one
// buffer (spec section 4.5 "Vectored (gather) writes", section 9).
const gatherWriteThreshold = 512

// FreeFunc releases an externally-owned buffer. hint is opaque data the
// caller attached via NewExternal, passed back unchanged.
type FreeFunc func(data []byte, hint any)

// shared is the ref-counted payload backing a Shared message (spec section 3
// invariant: "A shared message's payload is ref-counted; close decrements
// and frees at zero").
type shared struct {
	data refs
	rc   atomic.Int64
}

type refs struct {
	buf  []byte
	free FreeFunc
	hint any
}

// Message is one ZMP/raw frame. The zero value is an empty, non-more,
// non-shared data frame.
type Message struct {
	Flags Flag
	// RoutingID is set by the engine on ROUTER-bound inbound frames (spec
	// section 3: "the first frame always carries routing_id and is
	// synthesized by the engine from the peer identity").
	RoutingID []byte

	buf    []byte // Inline/Heap/External view
	sh     *shared
	extRef refs
}

// NewData builds a data-frame Message copying buf (the "Heap" payload
// variant of spec section 9; small buffers are still copied here, there is
// no separate inline arena in this implementation since Go slices already
// avoid the fixed-size-POD problem the original msg_t has).
func NewData(buf []byte, more bool) *Message {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m := &Message{buf: cp}
	if more {
		m.Flags |= FlagMore
	}
	return m
}

// NewExternal builds a zero-copy Message wrapping a caller-owned buffer.
// free is invoked exactly once, from Close, with hint passed back unchanged
// (spec section 3 "Message" table: "optional free-function hint").
func NewExternal(buf []byte, free FreeFunc, hint any, more bool) *Message {
	m := &Message{buf: buf, extRef: refs{buf: buf, free: free, hint: hint}}
	if more {
		m.Flags |= FlagMore
	}
	return m
}

// NewShared builds a Message whose payload is reference counted: cloning it
// (via Clone) increments the count, and each Close decrements it, freeing
// the backing buffer via free only when the count reaches zero (spec
// section 3 invariant on Shared payloads).
func NewShared(buf []byte, free FreeFunc, hint any, more bool) *Message {
	sh := &shared{data: refs{buf: buf, free: free, hint: hint}}
	sh.rc.Store(1)
	m := &Message{buf: buf, sh: sh}
	m.Flags |= flagShared
	if more {
		m.Flags |= FlagMore
	}
	return m
}

// NewCommand builds a zero-length-payload CONTROL frame with the given
// additional flags OR'd with FlagCommand (spec section 4.4.2): used for
// SUBSCRIBE/CANCEL/PING/PONG.
func NewCommand(flags Flag, body []byte) *Message {
	m := NewData(body, false)
	m.Flags |= FlagCommand | flags
	return m
}

// Data returns the frame payload. The returned slice must not be retained
// past the Message's Close for External/Shared payloads — callers that need
// to keep bytes around should copy.
func (m *Message) Data() []byte { return m.buf }

// Size returns len(Data()).
func (m *Message) Size() int { return len(m.buf) }

// More reports the FlagMore bit.
func (m *Message) More() bool { return m.Flags.Has(FlagMore) }

// IsShared reports whether this Message's payload is the ref-counted
// variant (as opposed to an exclusively-owned Heap/External buffer).
func (m *Message) IsShared() bool { return m.sh != nil }

// PreferGatherWrite reports whether the engine should issue a vectored
// write for this frame's body rather than copying header+body together
// (spec section 9, gatherWriteThreshold).
func (m *Message) PreferGatherWrite() bool { return len(m.buf) > gatherWriteThreshold }

// Clone returns a Message sharing the same payload for a Shared message
// (incrementing the refcount), or a deep copy otherwise (a non-shared
// message "owns its payload exclusively", spec section 3 invariant, so
// handing it to a second recipient — e.g. PUB fan-out — must not alias).
func (m *Message) Clone() *Message {
	if m.sh != nil {
		m.sh.rc.Add(1)
		cp := &Message{Flags: m.Flags, buf: m.buf, sh: m.sh}
		cp.RoutingID = append([]byte(nil), m.RoutingID...)
		return cp
	}
	cp := NewData(m.buf, m.More())
	cp.Flags = m.Flags
	cp.RoutingID = append([]byte(nil), m.RoutingID...)
	return cp
}

// Close releases the payload: for a Shared message, decrements the
// refcount and invokes free at zero; for an External message, invokes free
// unconditionally (exclusive ownership); for Heap/Inline, it's a no-op left
// to the garbage collector.
func (m *Message) Close() {
	switch {
	case m.sh != nil:
		if m.sh.rc.Add(-1) == 0 && m.sh.data.free != nil {
			m.sh.data.free(m.sh.data.buf, m.sh.data.hint)
		}
		m.sh = nil
	case m.extRef.free != nil:
		m.extRef.free(m.extRef.buf, m.extRef.hint)
		m.extRef.free = nil
	}
	m.buf = nil
}
