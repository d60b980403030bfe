package socket

import (
	"sync"

	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

// Router implements the ROUTER socket (spec section 4.8): every inbound
// logical message is prefixed with a synthesized routing-id frame, and
// every outbound logical message must begin with a routing-id frame that
// selects the target peer.
type Router struct {
	base

	mu       sync.Mutex
	byID     map[string]*endpointPipe
	order    []*endpointPipe

	// recv-side multipart state: which peer's body we're mid-drain on, and
	// (after the synthesized routing-id frame) the already-popped first
	// body frame awaiting delivery on the next Recv call.
	recvPeer     *endpointPipe
	recvInBody   bool
	recvPending  *message.Message
	recvIdx      int

	// send-side multipart state: which peer the current logical message
	// targets, established by the leading routing-id frame.
	sendTarget       *endpointPipe
	sendAwaitingID   bool
}

// NewRouter constructs an unbound ROUTER socket.
func NewRouter(opts Options) *Router {
	r := &Router{base: newBase(TypeRouter, opts), byID: make(map[string]*endpointPipe), sendAwaitingID: true}
	r.onBind = r.attachPeer
	r.onUnbind = r.detachPeer
	return r
}

func (r *Router) attachPeer(ep *endpointPipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := string(ep.peer.RoutingID)
	if existing, ok := r.byID[id]; ok && id != "" {
		if !r.opts.RouterHandover {
			// spec section 4.8: without ROUTER_HANDOVER, a second peer
			// reusing an in-use routing-id is refused outright rather than
			// silently coexisting as an unaddressable second slot.
			return zlerr.New(zlerr.HostUnreachable, "ROUTER: routing-id already in use (ROUTER_HANDOVER not set)")
		}
		r.removeFromOrderLocked(existing)
	}
	if id != "" {
		r.byID[id] = ep
	}
	r.order = append(r.order, ep)
	return nil
}

func (r *Router) detachPeer(ep *endpointPipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := string(ep.peer.RoutingID)
	if cur, ok := r.byID[id]; ok && cur == ep {
		delete(r.byID, id)
	}
	r.removeFromOrderLocked(ep)
	if r.recvPeer == ep {
		r.recvPeer = nil
		r.recvInBody = false
		r.recvPending = nil
	}
	if r.sendTarget == ep {
		r.sendTarget = nil
		r.sendAwaitingID = true
	}
}

func (r *Router) removeFromOrderLocked(ep *endpointPipe) {
	for i, e := range r.order {
		if e == ep {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Send consumes frames of one logical message: the first call for a new
// message must carry the routing-id selecting the target peer (stripped,
// never placed on the wire), every following call up to and including a
// More()==false frame is forwarded verbatim to that peer.
func (r *Router) Send(msg *message.Message) error {
	r.mu.Lock()
	awaitingID := r.sendAwaitingID
	target := r.sendTarget
	r.mu.Unlock()

	if awaitingID {
		r.mu.Lock()
		ep := r.byID[string(msg.Data())]
		r.sendTarget = ep
		r.sendAwaitingID = false
		r.mu.Unlock()
		if ep == nil && r.opts.RouterMandatory {
			r.mu.Lock()
			r.sendAwaitingID = true
			r.mu.Unlock()
			return zlerr.New(zlerr.HostUnreachable, "ROUTER: unknown routing-id")
		}
		return nil
	}

	if !msg.More() {
		r.mu.Lock()
		r.sendAwaitingID = true
		r.sendTarget = nil
		r.mu.Unlock()
	}
	if target == nil {
		return nil // unmandatory unknown target: silently drop the body
	}
	if !r.writeOne(target, msg) {
		return zlerr.New(zlerr.Again, "ROUTER target pipe at high-water mark")
	}
	return nil
}

// Recv returns the next frame of an inbound logical message. The first
// frame of each message is a synthesized routing-id frame (More=true);
// callers keep calling Recv until a More()==false frame completes the
// message, exactly mirroring the wire shape a DEALER sees from ROUTER.
func (r *Router) Recv() (*message.Message, bool) {
	r.mu.Lock()
	if pending := r.recvPending; pending != nil {
		r.recvPending = nil
		if !pending.More() {
			r.recvInBody = false
			r.recvPeer = nil
		}
		r.mu.Unlock()
		return pending, true
	}
	if r.recvInBody && r.recvPeer != nil {
		peer := r.recvPeer
		r.mu.Unlock()
		m, ok, delim := peer.inbound.Read()
		if !ok || delim {
			return nil, false
		}
		if !m.More() {
			r.mu.Lock()
			r.recvInBody = false
			r.recvPeer = nil
			r.mu.Unlock()
		}
		return m, true
	}
	peers := append([]*endpointPipe(nil), r.order...)
	n := len(peers)
	start := r.recvIdx % max1(n)
	r.mu.Unlock()
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
		if delim {
			continue
		}
		r.mu.Lock()
		r.recvIdx = idx + 1
		r.recvPeer = ep
		r.recvInBody = true
		r.recvPending = m
		r.mu.Unlock()
		return routingIDFrame(ep.peer.RoutingID), true
	}
	return nil, false
}

func routingIDFrame(id []byte) *message.Message {
	cp := append([]byte(nil), id...)
	m := message.NewData(cp, true)
	return m
}
