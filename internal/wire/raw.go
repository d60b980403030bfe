package wire

import "github.com/ulala-x/zlink/message"

// RawDecoder implements the length-prefixed codec of spec section 4.4.1,
// used exclusively by STREAM sockets (no ZMP handshake, no flags octet).
type RawDecoder struct {
	maxMsgSize int
	pending    []byte
	haveLen    bool
	length     uint32
}

// NewRawDecoder constructs a RawDecoder enforcing maxMsgSize (0 = unbounded).
func NewRawDecoder(maxMsgSize int) *RawDecoder {
	return &RawDecoder{maxMsgSize: maxMsgSize}
}

// Feed appends bytes and returns every complete raw frame. A zero-length
// frame is valid (spec section 4.4.1: "act as end-of-stream markers") and
// is returned as an empty-payload Message.
func (d *RawDecoder) Feed(data []byte) ([]*message.Message, error) {
	var out []*message.Message
	d.pending = append(d.pending, data...)

	for {
		if !d.haveLen {
			if len(d.pending) < 4 {
				return out, nil
			}
			d.length = uint32(d.pending[0])<<24 | uint32(d.pending[1])<<16 | uint32(d.pending[2])<<8 | uint32(d.pending[3])
			if d.maxMsgSize > 0 && int(d.length) > d.maxMsgSize {
				return out, &ValidationError{Code: CodeBodyTooLarge, Reason: "raw frame exceeds maxmsgsize"}
			}
			d.pending = d.pending[4:]
			d.haveLen = true
		}

		if uint32(len(d.pending)) < d.length {
			return out, nil
		}

		body := d.pending[:d.length]
		d.pending = d.pending[d.length:]
		d.haveLen = false
		out = append(out, message.NewData(body, false))
	}
}

// EncodeRaw renders one raw frame: a 4-byte big-endian length prefix
// followed by payload.
func EncodeRaw(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	n := uint32(len(payload))
	out[0] = byte(n >> 24)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
	copy(out[4:], payload)
	return out
}

// RawEncoder is the raw-codec counterpart of Encoder, giving STREAM sockets
// the same incremental-send/Spans/Advance shape so the engine layer doesn't
// need to special-case the codec during partial writes.
type RawEncoder struct {
	header   [4]byte
	body     []byte
	headSent int
	bodySent int
	loaded   bool
}

func NewRawEncoder() *RawEncoder { return &RawEncoder{} }

func (e *RawEncoder) LoadMessage(m *message.Message) {
	body := m.Data()
	n := uint32(len(body))
	e.header[0] = byte(n >> 24)
	e.header[1] = byte(n >> 16)
	e.header[2] = byte(n >> 8)
	e.header[3] = byte(n)
	e.body = body
	e.headSent = 0
	e.bodySent = 0
	e.loaded = true
}

func (e *RawEncoder) Spans() (header, body []byte) {
	if !e.loaded {
		return nil, nil
	}
	return e.header[e.headSent:], e.body[e.bodySent:]
}

func (e *RawEncoder) PreferGather() bool { return len(e.body)-e.bodySent > gatherWriteThreshold }

func (e *RawEncoder) Advance(n int) bool {
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

func (e *RawEncoder) Done() bool { return !e.loaded }
