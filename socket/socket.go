// Package socket implements the per-type socket behaviors of spec section
// 4.8: PAIR, PUB, SUB, XPUB, XSUB, DEALER, ROUTER and STREAM, each built on
// top of the pipe pairs a session hands over once its engine reaches READY.
package socket

import (
	"sync"

	"github.com/ulala-x/zlink/engine"
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/pipe"
	"github.com/ulala-x/zlink/zlerr"
)

// Type identifies a socket's wire personality (spec section 4.8).
type Type int

const (
	TypePair Type = iota
	TypePub
	TypeSub
	TypeXPub
	TypeXSub
	TypeDealer
	TypeRouter
	TypeStream
)

func (t Type) String() string {
	switch t {
	case TypePair:
		return "PAIR"
	case TypePub:
		return "PUB"
	case TypeSub:
		return "SUB"
	case TypeXPub:
		return "XPUB"
	case TypeXSub:
		return "XSUB"
	case TypeDealer:
		return "DEALER"
	case TypeRouter:
		return "ROUTER"
	case TypeStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Options carries the authoritative option subset of spec section 6.3.
// Fields default to their zero value meaning "use the runtime default";
// Context/endpoint wiring lives in the root zlink package.
type Options struct {
	SndHWM, RcvHWM             int
	Linger                     int // ms; -1 forever, 0 drop, >0 drain budget
	ReconnectIvl, ReconnectMax int // ms
	RoutingID                  []byte
	RouterMandatory            bool
	RouterHandover             bool
	ProbeRouter                bool
	XPubVerbose                bool
	XPubNoDrop                 bool
	XPubManual                 bool
	XPubWelcomeMsg             []byte
	Conflate                   bool
}

// endpointPipe is the bookkeeping a base socket keeps per attached peer: the
// inbound pipe (frames arriving from the wire, read by the socket) and the
// outbound pipe (frames queued for the wire, written by the socket), plus
// the negotiated peer metadata.
type endpointPipe struct {
	inbound  *pipe.Pipe
	outbound *pipe.Pipe
	peer     engine.Metadata
}

// base implements the session.Socket handoff contract and the bookkeeping
// every concrete socket type shares: a registry of attached endpointPipes
// keyed by the pipe pointer identity, guarded by one mutex. Concrete types
// embed base and add their Send/Recv policy on top.
type base struct {
	typ  Type
	opts Options

	mu    sync.Mutex
	peers map[*pipe.Pipe]*endpointPipe // keyed by outbound pipe
	// onBind/onUnbind let a subtype react to peer attach/detach without
	// overriding the session.Socket methods themselves (used by XPub to
	// emit synthetic subscription-event frames, and Sub/XSub to replay).
	// onBind returns a non-nil error to refuse the peer (ROUTER's
	// routing-id collision check); Bind then rolls the registration back.
	onBind   func(ep *endpointPipe) error
	onUnbind func(ep *endpointPipe)
}

func newBase(typ Type, opts Options) base {
	return base{typ: typ, opts: opts, peers: make(map[*pipe.Pipe]*endpointPipe)}
}

// Type reports the socket's wire personality.
func (b *base) Type() Type { return b.typ }

// Bind implements session.Socket: register a newly-ready peer. Returns a
// non-nil error if the concrete type's onBind hook refuses the peer (e.g.
// ROUTER's routing-id collision check without ROUTER_HANDOVER), in which
// case the registration is rolled back and the caller must tear the peer's
// engine down instead of treating it as attached.
func (b *base) Bind(inbound, outbound *pipe.Pipe, peer engine.Metadata) error {
	ep := &endpointPipe{inbound: inbound, outbound: outbound, peer: peer}
	if b.typ == TypeRouter || b.typ == TypeDealer {
		outbound.SetPeerRoutingID(peer.RoutingID)
	}
	b.mu.Lock()
	b.peers[outbound] = ep
	cb := b.onBind
	b.mu.Unlock()
	if cb != nil {
		if err := cb(ep); err != nil {
			b.mu.Lock()
			delete(b.peers, outbound)
			b.mu.Unlock()
			return err
		}
	}
	if b.opts.ProbeRouter {
		// PROBE_ROUTER: on connect, emit a zero-length-routing-id data
		// frame so a ROUTER peer can observe the connection before any
		// application traffic flows.
		b.writeOne(ep, message.NewData(nil, false))
	}
	return nil
}

// Unbind implements session.Socket: drop a peer whose engine failed.
func (b *base) Unbind(inbound, outbound *pipe.Pipe) {
	b.mu.Lock()
	ep, ok := b.peers[outbound]
	if ok {
		delete(b.peers, outbound)
	}
	cb := b.onUnbind
	b.mu.Unlock()
	if ok && cb != nil {
		cb(ep)
	}
}

// ReplaySubscriptions is a no-op by default; Sub and XSub override the
// behavior by setting onBind instead (see their Resubscribe helper), since
// the session interface only fires this once per (re)bind, which is the
// same moment onBind fires.
func (b *base) ReplaySubscriptions(*pipe.Pipe) {}

// snapshot returns every currently attached peer's endpointPipe. Taking a
// snapshot under the lock and iterating outside it keeps fan-out writes
// (PUB) from holding the registry mutex across a potentially blocking pipe
// write.
func (b *base) snapshot() []*endpointPipe {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*endpointPipe, 0, len(b.peers))
	for _, ep := range b.peers {
		out = append(out, ep)
	}
	return out
}

func (b *base) peerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// writeOne pushes msg onto ep's outbound pipe, returning false on
// backpressure (HWM) exactly as pipe.Write does.
func (b *base) writeOne(ep *endpointPipe, msg *message.Message) bool {
	return ep.outbound.Write(msg)
}

var errStateMachine = func(op string) error {
	return zlerr.New(zlerr.StateMachine, op+" not valid for this socket type")
}
