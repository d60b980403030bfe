// Package session implements the session object of spec section 4.6: the
// glue between one engine and the socket it feeds, including reconnect
// backoff on connection loss and subscription replay after a hiccup.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ulala-x/zlink/engine"
	"github.com/ulala-x/zlink/internal/reactor"
	"github.com/ulala-x/zlink/monitor"
	"github.com/ulala-x/zlink/pipe"
	"github.com/ulala-x/zlink/transport"
	"github.com/ulala-x/zlink/zlerr"
	"github.com/ulala-x/zlink/zlog"
)

// Socket is the subset of socket-type behavior a Session needs: handing off
// the pipe pair once an engine becomes ready, and tearing it down on
// disconnect (a "hiccup" in spec terms).
type Socket interface {
	// Bind registers a newly-ready peer. A non-nil error means the socket
	// refused the peer (e.g. ROUTER rejecting a routing-id collision
	// without ROUTER_HANDOVER); the caller tears the engine back down with
	// it instead of treating the peer as attached.
	Bind(inbound, outbound *pipe.Pipe, peer engine.Metadata) error
	Unbind(inbound, outbound *pipe.Pipe)
	// ReplaySubscriptions resends the socket's current subscription set on
	// outbound once a reconnect completes (spec section 8 scenario 3); a
	// no-op for socket types that don't subscribe.
	ReplaySubscriptions(outbound *pipe.Pipe)
}

// Dialer produces a fresh transport connection for a reconnecting session.
// Returns nil, transport.RoleConnect, err on failure (the session retries).
type Dialer func(ctx context.Context) (transport.Transport, error)

// Config bundles reconnect policy on top of the engine's own Config.
type Config struct {
	Engine          engine.Config
	HWM             int
	Conflate        bool
	ReconnectIvl    time.Duration // 0 disables reconnect entirely
	ReconnectIvlMax time.Duration // 0 means no cap / use randomized jitter
	Raw             bool          // true selects engine.NewRaw over NewZMP
	// Monitor receives lifecycle events for this session's engine (spec
	// section 6.4). Nil disables monitor emission entirely.
	Monitor *monitor.Monitor
}

// emit forwards ev to the configured Monitor, a no-op when none is set.
func (s *Session) emit(ev monitor.Event) {
	if s.cfg.Monitor != nil {
		s.cfg.Monitor.Emit(ev)
	}
}

// Session owns at most one live Engine at a time. A user-initiated
// (connect-side) session redials on disconnect per ReconnectIvl; an
// accept-side session (spawned by a listener) does not reconnect — a new
// inbound connection gets its own Session instead.
type Session struct {
	worker *reactor.Worker
	socket Socket
	cfg    Config
	dialer Dialer // nil for accept-side sessions
	log    zlog.Logger

	mu         sync.Mutex
	eng        *engine.Engine
	ep         *enginePipe
	terminated bool
	attempt    int
	cancelReconnect func()
}

// New constructs a Session bound to socket. If dialer is non-nil this is a
// connect-side session and will reconnect on failure; pass nil for
// accept-side sessions spawned per inbound connection.
func New(w *reactor.Worker, socket Socket, cfg Config, dialer Dialer, log zlog.Logger) *Session {
	if log == nil {
		log = zlog.Nop()
	}
	return &Session{worker: w, socket: socket, cfg: cfg, dialer: dialer, log: log}
}

// Plug starts the session against an already-open transport (spec section
// 4.6 "plug"): used directly by accept-side sessions. Connect-side sessions
// should call Connect instead, which dials through the configured Dialer
// and handles reconnection.
func (s *Session) Plug(ctx context.Context, tr transport.Transport, role transport.Role) {
	s.attach(ctx, tr, role)
}

// Connect dials via the configured Dialer and attaches the resulting
// engine, retrying with exponential backoff on failure (spec section 4.6
// engine_error reconnect policy) until Term is called.
func (s *Session) Connect(ctx context.Context) {
	if s.dialer == nil {
		return
	}
	s.dialReconnect(ctx)
}

func (s *Session) dialReconnect(ctx context.Context) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	tr, err := s.dialer(ctx)
	if err != nil {
		s.scheduleReconnect(ctx, zlerr.Classify(err))
		return
	}
	s.attach(ctx, tr, transport.RoleConnect)
}

func (s *Session) attach(ctx context.Context, tr transport.Transport, role transport.Role) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		_ = tr.Close()
		return
	}
	s.attempt = 0
	ep := newEnginePipe(s.hwm(), s.cfg.Conflate)
	s.ep = ep

	cfg := s.cfg.Engine
	cb := engine.Callbacks{
		Ready: func(peer engine.Metadata) { s.onEngineReady(peer) },
		Error: func(err error, handshaked bool) { s.onEngineError(ctx, err, handshaked) },
	}
	var eng *engine.Engine
	if s.cfg.Raw {
		eng = engine.NewRaw(s.worker, tr, cfg, cb, s.log)
	} else {
		eng = engine.NewZMP(s.worker, tr, cfg, cb, s.log)
	}
	s.eng = eng
	s.mu.Unlock()

	eng.Attach(ep)
	eng.Start(ctx, role)
}

func (s *Session) hwm() int {
	if s.cfg.HWM > 0 {
		return s.cfg.HWM
	}
	return 1000
}

// engine_ready (spec section 4.6): hand the pipe pair to the socket and
// replay subscriptions, covering the hiccup-recovery path (scenario 3).
//
// A peer that didn't set ROUTING_ID still needs something ROUTER/STREAM can
// key their byID table on, or every anonymous peer collides under the same
// empty-string key; assign a random one, mirroring the identity ZeroMQ's
// own ROUTER generates for anonymous DEALERs.
func (s *Session) onEngineReady(peer engine.Metadata) {
	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()
	if ep == nil {
		return
	}
	if len(peer.RoutingID) == 0 {
		peer.RoutingID = []byte(uuid.NewString())
	}
	if err := s.socket.Bind(ep.inbound, ep.outbound, peer); err != nil {
		s.mu.Lock()
		eng := s.eng
		s.mu.Unlock()
		if eng != nil {
			eng.Reject(err)
		}
		return
	}
	s.emit(monitor.Event{EventID: monitor.ConnectionReady, RoutingID: peer.RoutingID})
	s.socket.ReplaySubscriptions(ep.outbound)
}

// engine_error (spec section 4.6): drop the engine, unbind from the
// socket, and — for connect-side sessions on a non-protocol error —
// schedule a reconnect with exponential backoff.
func (s *Session) onEngineError(ctx context.Context, err error, handshaked bool) {
	s.mu.Lock()
	ep := s.ep
	s.ep = nil
	s.eng = nil
	terminated := s.terminated
	s.mu.Unlock()

	if ep != nil {
		s.socket.Unbind(ep.inbound, ep.outbound)
	}
	s.emitFailure(err, handshaked)

	if terminated || s.dialer == nil {
		return
	}
	if zlerr.Is(err, zlerr.ProtocolError) || zlerr.Is(err, zlerr.NoCompatibleProtocol) {
		return // spec: protocol errors terminate the session without retry
	}
	if s.cfg.ReconnectIvl <= 0 {
		return
	}
	s.scheduleReconnect(ctx, err)
}

// emitFailure maps an engine failure onto the monitor event table (spec
// section 6.4): a socket-type mismatch surfaces as HANDSHAKE_FAILED_PROTOCOL
// with the ZMP validation code the engine actually sent (handshake.go only
// ever sends code 2 for this case), any other pre-READY protocol violation
// as HANDSHAKE_FAILED_NO_DETAIL, and anything that happens after READY as
// DISCONNECTED with the error kind carried in Value so a subscriber can
// distinguish, e.g., a heartbeat timeout from a reset connection.
func (s *Session) emitFailure(err error, handshaked bool) {
	if !handshaked {
		if zlerr.Is(err, zlerr.NoCompatibleProtocol) {
			s.emit(monitor.Event{EventID: monitor.HandshakeFailedProtocol, Value: 2})
			return
		}
		if zlerr.Is(err, zlerr.ProtocolError) {
			s.emit(monitor.Event{EventID: monitor.HandshakeFailedNoDetail})
		}
		return
	}
	kind, _ := zlerr.KindOf(err)
	s.emit(monitor.Event{EventID: monitor.Disconnected, Value: uint64(kind)})
}

func (s *Session) scheduleReconnect(ctx context.Context, cause error) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.attempt++
	delay := s.backoff(s.attempt)
	s.log.Log(zlog.Entry{Level: zlog.Warn, Component: "session", Message: "reconnect scheduled", Err: cause,
		Fields: []zlog.Field{zlog.F("attempt", s.attempt), zlog.F("delay", delay.String())}})
	s.cancelReconnect = s.worker.ScheduleTimer(delay, func() { s.dialReconnect(ctx) })
	s.mu.Unlock()
}

// backoff implements exponential backoff capped at ReconnectIvlMax; when no
// max is configured it applies randomized jitter instead of unbounded
// growth (spec section 4.6).
func (s *Session) backoff(attempt int) time.Duration {
	base := s.cfg.ReconnectIvl
	if s.cfg.ReconnectIvlMax > 0 {
		d := base << uint(min(attempt-1, 16))
		if d > s.cfg.ReconnectIvlMax || d <= 0 {
			d = s.cfg.ReconnectIvlMax
		}
		return d
	}
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return base + jitter
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Term tears the session down (spec section 4.6 "term(linger)"): linger>0
// gives any still-queued outbound frames up to that long to flush before
// the transport is closed.
func (s *Session) Term(linger time.Duration) {
	s.mu.Lock()
	s.terminated = true
	eng := s.eng
	ep := s.ep
	if s.cancelReconnect != nil {
		s.cancelReconnect()
	}
	s.mu.Unlock()

	if eng == nil {
		return
	}
	if linger > 0 && ep != nil {
		deadline := time.Now().Add(linger)
		for ep.outbound.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	eng.Close()
}
