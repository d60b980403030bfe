package socket

import (
	"sync"

	"github.com/ulala-x/zlink/message"
)

// Stream implements the STREAM socket (spec section 4.8): no ZMP, raw
// length-prefixed frames. Every inbound delivery is (connection-id,
// payload); an empty payload signals the peer closed. Outbound sends must
// likewise begin with a connection-id frame selecting the target peer,
// mirroring Router's send-side protocol but over the raw codec.
type Stream struct {
	base

	mu     sync.Mutex
	byID   map[string]*endpointPipe
	idOf   map[*endpointPipe]string
	nextID uint64
	order  []*endpointPipe

	recvIdx      int
	recvPeer     *endpointPipe
	recvPayload  *message.Message
	recvHasNext  bool

	sendTarget     *endpointPipe
	sendAwaitingID bool
}

// NewStream constructs an unbound STREAM socket.
func NewStream(opts Options) *Stream {
	s := &Stream{
		base:           newBase(TypeStream, opts),
		byID:           make(map[string]*endpointPipe),
		idOf:           make(map[*endpointPipe]string),
		sendAwaitingID: true,
	}
	s.onBind = s.attachPeer
	s.onUnbind = s.detachPeer
	return s
}

func (s *Stream) attachPeer(ep *endpointPipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := connIDBytes(s.nextID)
	s.byID[string(id)] = ep
	s.idOf[ep] = string(id)
	s.order = append(s.order, ep)
	return nil
}

func (s *Stream) detachPeer(ep *endpointPipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idOf[ep]; ok {
		delete(s.byID, id)
		delete(s.idOf, ep)
	}
	for i, e := range s.order {
		if e == ep {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.sendTarget == ep {
		s.sendTarget = nil
		s.sendAwaitingID = true
	}
	if s.recvPeer == ep {
		s.recvPeer = nil
		s.recvHasNext = false
	}
}

func connIDBytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

// Send: the first frame of each logical send selects the target
// connection by id, the second is the raw payload written to that peer's
// outbound pipe (an empty payload half-closes the connection, per the raw
// codec's zero-length-frame EOS marker).
func (s *Stream) Send(msg *message.Message) error {
	s.mu.Lock()
	awaiting := s.sendAwaitingID
	target := s.sendTarget
	s.mu.Unlock()

	if awaiting {
		s.mu.Lock()
		s.sendTarget = s.byID[string(msg.Data())]
		s.sendAwaitingID = false
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.sendAwaitingID = true
	s.sendTarget = nil
	s.mu.Unlock()
	if target == nil {
		return nil
	}
	s.writeOne(target, msg)
	return nil
}

// Recv returns a (connection-id frame, true) followed by the matching
// (payload frame, true) on the next call, fair-queued across attached
// connections. An empty payload frame signals the peer closed.
func (s *Stream) Recv() (*message.Message, bool) {
	s.mu.Lock()
	if s.recvHasNext {
		payload := s.recvPayload
		s.recvPayload = nil
		s.recvHasNext = false
		s.mu.Unlock()
		return payload, true
	}
	peers := append([]*endpointPipe(nil), s.order...)
	n := len(peers)
	start := s.recvIdx % max1(n)
	s.mu.Unlock()
	if n == 0 {
		return nil, false
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := peers[idx]
		m, ok, delim := ep.inbound.Read()
		if !ok {
			continue
		}
		s.mu.Lock()
		s.recvIdx = idx + 1
		id := s.idOf[ep]
		if delim {
			s.recvPayload = message.NewData(nil, false)
		} else {
			s.recvPayload = m
		}
		s.recvHasNext = true
		s.mu.Unlock()
		return message.NewData([]byte(id), true), true
	}
	return nil, false
}
