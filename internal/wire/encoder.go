package wire

import "github.com/ulala-x/zlink/message"

// Encoder is a state machine over one in-progress outbound ZMP frame. It
// never copies the message body into the header buffer: Spans returns two
// independent slices so the engine can either issue one async_writev call
// (spec section 4.5 "vectored writes") or write them back to back.
type Encoder struct {
	header   [HeaderSize]byte
	body     []byte
	headSent int
	bodySent int
	loaded   bool
}

// NewEncoder constructs an idle Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// LoadMessage primes the Encoder with the next frame to send. Load must not
// be called again until Done reports true for the previous frame.
func (e *Encoder) LoadMessage(m *message.Message, extraFlags Flag) {
	body := m.Data()
	wf := fromMessageFlags(m.Flags) | extraFlags
	e.header[0] = Magic
	e.header[1] = Version
	e.header[2] = byte(wf)
	e.header[3] = 0
	n := uint32(len(body))
	e.header[4] = byte(n >> 24)
	e.header[5] = byte(n >> 16)
	e.header[6] = byte(n >> 8)
	e.header[7] = byte(n)

	e.body = body
	e.headSent = 0
	e.bodySent = 0
	e.loaded = true
}

// Spans returns the remaining unsent header and body bytes. Either may be
// empty once fully sent. The engine must not mutate the returned slices.
func (e *Encoder) Spans() (header, body []byte) {
	if !e.loaded {
		return nil, nil
	}
	return e.header[e.headSent:], e.body[e.bodySent:]
}

// PreferGather reports whether a vectored write is worth issuing rather
// than copying header+body into one buffer (spec section 9 threshold).
func (e *Encoder) PreferGather() bool { return len(e.body)-e.bodySent > gatherWriteThreshold }

const gatherWriteThreshold = 512

// Advance records that n bytes of the current header+body span were
// successfully written, in header-then-body order. It returns true once
// the whole frame has been flushed, at which point LoadMessage may be
// called again.
func (e *Encoder) Advance(n int) bool {
	remaining := n
	if left := len(e.header) - e.headSent; left > 0 {
		take := remaining
		if take > left {
			take = left
		}
		e.headSent += take
		remaining -= take
	}
	if remaining > 0 {
		left := len(e.body) - e.bodySent
		take := remaining
		if take > left {
			take = left
		}
		e.bodySent += take
	}
	done := e.headSent >= len(e.header) && e.bodySent >= len(e.body)
	if done {
		e.loaded = false
	}
	return done
}

// Done reports whether the Encoder has nothing left to send.
func (e *Encoder) Done() bool { return !e.loaded }
