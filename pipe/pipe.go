// Package pipe implements the single-producer/single-consumer frame queue
// that bridges one session to one socket (spec section 4.7). Each Pipe has
// a high-water mark (backpressure), a conflate mode (collapse to one slot),
// and a delimiter sentinel used to signal a clean close to the reader side
// without the writer reaching back across the socket/session/engine graph.
package pipe

import (
	"sync"
	"sync/atomic"

	"github.com/ulala-x/zlink/message"
)

// delimiter is a sentinel value appended to a Pipe's queue by Close to tell
// the reader "no more frames will ever arrive on this pipe" (spec section
// 4.7 "a delimiter terminator sentinel used on clean close").
var delimiter = &message.Message{}

// IsDelimiter reports whether msg is the Close sentinel. Readers must check
// this before handing a popped message to the user.
func IsDelimiter(msg *message.Message) bool { return msg == delimiter }

// ringBuffer is a growable circular buffer of message pointers, the same
// shape (index masking, power-of-two capacity, lazy doubling) as the rate
// limiter's sample ring: no locking of its own, safe only behind Pipe's
// mutex.
type ringBuffer struct {
	s    []*message.Message
	r, w uint
}

func newRingBuffer(capacity int) *ringBuffer {
	size := 8
	for size < capacity {
		size <<= 1
	}
	return &ringBuffer{s: make([]*message.Message, size)}
}

func (rb *ringBuffer) mask(v uint) uint { return v & (uint(len(rb.s)) - 1) }

func (rb *ringBuffer) Len() int { return int(rb.w - rb.r) }

func (rb *ringBuffer) Push(m *message.Message) {
	if rb.Len() == len(rb.s) {
		rb.grow()
	}
	rb.s[rb.mask(rb.w)] = m
	rb.w++
}

func (rb *ringBuffer) grow() {
	next := make([]*message.Message, len(rb.s)*2)
	n := rb.Len()
	for i := 0; i < n; i++ {
		next[i] = rb.s[rb.mask(rb.r+uint(i))]
	}
	rb.s = next
	rb.r, rb.w = 0, uint(n)
}

func (rb *ringBuffer) Pop() (*message.Message, bool) {
	if rb.Len() == 0 {
		return nil, false
	}
	m := rb.s[rb.mask(rb.r)]
	rb.s[rb.mask(rb.r)] = nil
	rb.r++
	return m, true
}

func (rb *ringBuffer) Peek() (*message.Message, bool) {
	if rb.Len() == 0 {
		return nil, false
	}
	return rb.s[rb.mask(rb.r)], true
}

// State reports where a Pipe sits relative to its high-water mark.
type State int

const (
	// Active: below HWM, writes accepted.
	Active State = iota
	// Full: at-or-above HWM, writes return ErrWouldBlock until drained.
	Full
	// Closing: Close has been called; reads continue until the delimiter
	// is popped, writes are rejected.
	Closing
	// Closed: the delimiter has been popped by the reader.
	Closed
)

// Pipe is the SPSC queue described by spec section 4.7. The zero value is
// not usable; construct with New.
type Pipe struct {
	mu       sync.Mutex
	q        *ringBuffer
	hwm      int
	lwm      int // low-water mark: writer is notified again once Len() <= lwm
	conflate bool
	state    atomic.Int32 // State, accessed without the mutex for fast reads

	// drainNotify is closed and replaced each time the queue drains below
	// lwm while a writer was blocked; Write's caller selects on it instead
	// of busy-polling (spec section 4.5 "the engine must stop reading from
	// the wire until the pipe drains").
	drainNotify chan struct{}

	// readNotify signals the consumer side that data is available; used by
	// the owning session/socket to wake a blocked Recv.
	readNotify chan struct{}

	peerRoutingID []byte
}

// New constructs a Pipe with the given high-water mark. hwm<=0 means
// unbounded (matches ZMTP/ZMQ semantics where HWM 0 disables the limit).
func New(hwm int, conflate bool) *Pipe {
	lwm := hwm / 2
	if lwm < 1 {
		lwm = 1
	}
	return &Pipe{
		q:           newRingBuffer(16),
		hwm:         hwm,
		lwm:         lwm,
		conflate:    conflate,
		drainNotify: make(chan struct{}),
		readNotify:  make(chan struct{}, 1),
	}
}

// SetPeerRoutingID records the routing-id this pipe's remote peer
// identified with during handshake (spec section 4.7), so a ROUTER socket
// can tag every frame it pops from this pipe.
func (p *Pipe) SetPeerRoutingID(id []byte) {
	p.mu.Lock()
	p.peerRoutingID = append([]byte(nil), id...)
	p.mu.Unlock()
}

// PeerRoutingID returns the routing-id set by SetPeerRoutingID, or nil.
func (p *Pipe) PeerRoutingID() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerRoutingID
}

// State returns the pipe's current State.
func (p *Pipe) State() State { return State(p.state.Load()) }

// Write enqueues msg. It returns false if the pipe is at-or-above its HWM
// (spec section 3: "writes to a pipe at-or-above HWM return backpressure")
// or already closing; callers must not call Write concurrently with
// another Write (single-producer).
func (p *Pipe) Write(msg *message.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if State(p.state.Load()) == Closing || State(p.state.Load()) == Closed {
		return false
	}

	if p.conflate {
		// Conflate mode collapses the queue to one slot (spec section 4.7),
		// useful for telemetry-style PUB where only the latest value matters.
		for {
			if _, ok := p.q.Pop(); !ok {
				break
			}
		}
		p.q.Push(msg)
		p.notifyReader()
		return true
	}

	if p.hwm > 0 && p.q.Len() >= p.hwm {
		return false
	}

	p.q.Push(msg)
	p.notifyReader()
	if p.hwm > 0 && p.q.Len() >= p.hwm {
		p.state.Store(int32(Full))
	}
	return true
}

func (p *Pipe) notifyReader() {
	select {
	case p.readNotify <- struct{}{}:
	default:
	}
}

// ReadNotify returns the channel a consumer selects on to learn "data may
// be available"; it is a hint, not a guarantee (classic level-trigger-ish
// SPSC pattern) — callers must still attempt Read/Pop and handle false.
func (p *Pipe) ReadNotify() <-chan struct{} { return p.readNotify }

// Read pops the next frame. ok is false when the queue is currently empty;
// the second bool, delim, is true when the popped item is the Close
// sentinel (spec section 4.7).
func (p *Pipe) Read() (msg *message.Message, ok bool, delim bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, has := p.q.Pop()
	if !has {
		return nil, false, false
	}
	if IsDelimiter(m) {
		p.state.Store(int32(Closed))
		return nil, true, true
	}

	if p.hwm > 0 && State(p.state.Load()) == Full && p.q.Len() <= p.lwm {
		p.state.Store(int32(Active))
		p.signalDrain()
	}
	return m, true, false
}

// Peek returns the next frame without removing it, used by multipart
// readers that must confirm a full message (all More()==true frames
// followed by one More()==false frame) is present before declaring
// "message ready" (spec section 3 invariant on multipart contiguity).
func (p *Pipe) Peek() (*message.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.q.Peek()
	if !ok || IsDelimiter(m) {
		return nil, false
	}
	return m, true
}

// Len reports the number of frames currently queued (delimiter excluded
// once popped, included while still queued).
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len()
}

func (p *Pipe) signalDrain() {
	close(p.drainNotify)
	p.drainNotify = make(chan struct{})
}

// DrainNotify returns a channel closed the next time the queue falls at or
// below the low-water mark after having been Full. A blocked writer
// (engine) selects on this instead of polling Write in a hot loop.
func (p *Pipe) DrainNotify() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drainNotify
}

// Close marks the pipe as closing and enqueues the delimiter sentinel
// (spec section 4.7). Safe to call once; a second call is a no-op.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if State(p.state.Load()) == Closing || State(p.state.Load()) == Closed {
		return
	}
	p.state.Store(int32(Closing))
	p.q.Push(delimiter)
	p.notifyReader()
}
