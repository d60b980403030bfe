package wire

import (
	"sync"
	"sync/atomic"

	"github.com/ulala-x/zlink/message"
)

// pageSize is the size of one allocator page. Incoming wire bytes land
// here; a decoded message either references the page (Shared payload,
// incrementing its refcount) or is copied into its own buffer, per spec
// section 4.4 "shared buffer allocator".
const pageSize = 64 * 1024

// copyThreshold is the body size below which a decoded frame is copied out
// of its page rather than referencing it — avoids keeping a 64KiB page
// alive to serve a handful of small messages.
const copyThreshold = 4096

var pagePool = sync.Pool{New: func() any { return make([]byte, pageSize) }}

type pageRef struct {
	buf []byte
	rc  atomic.Int64
}

func newPageRef() *pageRef {
	p := &pageRef{buf: pagePool.Get().([]byte)}
	p.rc.Store(1)
	return p
}

func (p *pageRef) release() {
	if p.rc.Add(-1) == 0 {
		pagePool.Put(p.buf[:cap(p.buf)])
	}
}

// Decoder is a state machine that consumes wire bytes and emits completed
// Messages (spec section 4.4). It is not safe for concurrent use: only the
// engine goroutine driving one connection ever touches it.
type Decoder struct {
	maxMsgSize int

	page    *pageRef
	pageLen int // bytes written into page.buf so far

	pending []byte // bytes accumulated for the frame currently being parsed
	have    Header
	haveHdr bool
}

// NewDecoder constructs a Decoder enforcing maxMsgSize on frame bodies
// (spec section 4.4.1/4.4.2, zlerr.MessageTooLarge / ValidationCode 4).
// maxMsgSize<=0 means unbounded.
func NewDecoder(maxMsgSize int) *Decoder {
	return &Decoder{maxMsgSize: maxMsgSize, page: newPageRef()}
}

// Feed appends newly-read wire bytes and returns every frame that became
// complete as a result, in wire order. A *ValidationError aborts the
// stream; no partial results after the bad frame are returned.
func (d *Decoder) Feed(data []byte) ([]*message.Message, error) {
	var out []*message.Message
	d.pending = append(d.pending, data...)

	for {
		if !d.haveHdr {
			if len(d.pending) < HeaderSize {
				return out, nil
			}
			hdr, verr := parseHeader(d.pending[:HeaderSize])
			if verr != nil {
				return out, verr
			}
			if d.maxMsgSize > 0 && int(hdr.BodyLength) > d.maxMsgSize {
				return out, &ValidationError{Code: CodeBodyTooLarge, Reason: "body length exceeds maxmsgsize"}
			}
			d.have = hdr
			d.haveHdr = true
			d.pending = d.pending[HeaderSize:]
		}

		need := int(d.have.BodyLength)
		if len(d.pending) < need {
			return out, nil
		}

		body := d.pending[:need]
		d.pending = d.pending[need:]
		d.haveHdr = false

		out = append(out, d.materialize(d.have, body))
	}
}

// materialize builds the decoded Message, choosing the copy vs. shared-page
// payload variant by size (spec section 4.4 allocator amortization).
func (d *Decoder) materialize(hdr Header, body []byte) *message.Message {
	var m *message.Message
	if len(body) == 0 {
		m = message.NewData(nil, false)
	} else if len(body) < copyThreshold {
		m = message.NewData(body, false)
	} else {
		m = d.referencePage(body)
	}
	m.Flags = hdr.toMessageFlags()
	return m
}

// referencePage copies body into the decoder's rolling page (so the bytes
// survive past the next Feed call, which may reuse its scratch slice) and
// returns a Shared message pointing at that page, bumping its refcount.
func (d *Decoder) referencePage(body []byte) *message.Message {
	if d.pageLen+len(body) > len(d.page.buf) {
		d.page.release()
		d.page = newPageRef()
		d.pageLen = 0
	}
	start := d.pageLen
	copy(d.page.buf[start:], body)
	d.pageLen += len(body)
	view := d.page.buf[start:d.pageLen]

	d.page.rc.Add(1)
	page := d.page
	return message.NewShared(view, func([]byte, any) { page.release() }, nil, false)
}

func parseHeader(b []byte) (Header, *ValidationError) {
	if b[0] != Magic {
		return Header{}, &ValidationError{Code: CodeMagicMismatch, Reason: "magic byte mismatch"}
	}
	if b[1] != Version {
		return Header{}, &ValidationError{Code: CodeUnsupportedVer, Reason: "unsupported ZMP version"}
	}
	flags := Flag(b[2])
	if verr := validateFlags(flags); verr != nil {
		return Header{}, verr
	}
	if b[3] != 0 {
		return Header{}, &ValidationError{Code: CodeIllegalFlags, Reason: "reserved byte must be zero"}
	}
	length := uint32(b[4])<<24 | uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7])
	return Header{Flags: flags, BodyLength: length}, nil
}

// EncodeFrame renders m as a standalone byte slice (header+body), used by
// tests and by the HELLO/READY/ERROR handshake senders which write a whole
// control frame in one shot rather than streaming it through Encoder.
func EncodeFrame(m *message.Message, extraFlags Flag) []byte {
	e := NewEncoder()
	e.LoadMessage(m, extraFlags)
	h, b := e.Spans()
	out := make([]byte, 0, len(h)+len(b))
	out = append(out, h...)
	out = append(out, b...)
	return out
}
