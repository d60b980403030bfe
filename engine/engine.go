// Package engine implements the per-connection protocol driver of spec
// section 4.5: it owns a transport, a codec and (for ZMP) the HELLO/READY/
// ERROR handshake state machine, shuttling frames between the wire and a
// session-owned pipe.
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ulala-x/zlink/internal/reactor"
	"github.com/ulala-x/zlink/internal/wire"
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/transport"
	"github.com/ulala-x/zlink/zlerr"
	"github.com/ulala-x/zlink/zlog"
)

// Stage is the ZMP handshake state machine of spec section 4.5.
type Stage int

const (
	// StageNone marks a raw engine (STREAM sockets): no handshake at all.
	StageNone Stage = iota
	StageAwaitTransportHS
	StageSendHello
	StageAwaitHello
	StageSendReady
	StageAwaitReady
	StageReady
)

// Metadata is what a HELLO/READY frame carries and what the session learns
// about its peer once the handshake completes.
type Metadata struct {
	SocketType string
	RoutingID  []byte
	Extra      map[string]string
}

// Callbacks are how the session observes this engine's lifecycle.
type Callbacks struct {
	// Ready fires once (raw engines: immediately; ZMP engines: after READY)
	// with the negotiated peer metadata.
	Ready func(peer Metadata)
	// Error fires at most once, terminally. handshaked reports whether
	// Ready had already fired — session.engine_error uses this to decide
	// whether to retry the connection (spec section 4.6).
	Error func(err error, handshaked bool)
}

// Config bundles the per-engine parameters spec section 4.5/6.3 exposes as
// socket options.
type Config struct {
	SocketType       string
	RoutingID        []byte
	MaxMsgSize       int
	HandshakeTimeout time.Duration
	HeartbeatIvl     time.Duration
	HeartbeatTimeout time.Duration
	HeartbeatTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	return c
}

// PipeEnd is the engine's side of the session-owned pipe: Write delivers a
// frame received off the wire to the socket side, Read/Peek pull the next
// frame queued for transmission.
type PipeEnd interface {
	Write(m *message.Message) bool
	Read() (m *message.Message, ok, delim bool)
	Peek() (*message.Message, bool)
	ReadNotify() <-chan struct{}
	Close()
}

// Engine drives one connection. Construct via NewZMP or NewRaw; Attach
// plugs in the pipe once the session has created it (immediately for raw
// engines, after READY for ZMP engines).
type Engine struct {
	worker *reactor.Worker
	tr     transport.Transport
	dec    decoder
	enc    encoder
	cfg    Config
	cb     Callbacks
	log    zlog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	stage    Stage
	pipe     PipeEnd
	closed   bool
	ready    bool
	peer     Metadata
	pingCtx  []byte

	cancelHandshake func()
	cancelHeartbeat func()
	cancelPingTO    func()

	writeDone chan struct{}
}

func newEngine(w *reactor.Worker, tr transport.Transport, cfg Config, cb Callbacks, log zlog.Logger, dec decoder, enc encoder) *Engine {
	if log == nil {
		log = zlog.Nop()
	}
	return &Engine{
		worker:    w,
		tr:        tr,
		dec:       dec,
		enc:       enc,
		cfg:       cfg.withDefaults(),
		cb:        cb,
		log:       log,
		writeDone: make(chan struct{}),
	}
}

// NewZMP constructs a full-handshake engine for every socket type except
// STREAM.
func NewZMP(w *reactor.Worker, tr transport.Transport, cfg Config, cb Callbacks, log zlog.Logger) *Engine {
	e := newEngine(w, tr, cfg, cb, log, wire.NewDecoder(cfg.MaxMsgSize), newZMPEncoder())
	e.stage = StageAwaitTransportHS
	return e
}

// NewRaw constructs a handshake-free engine for STREAM sockets.
func NewRaw(w *reactor.Worker, tr transport.Transport, cfg Config, cb Callbacks, log zlog.Logger) *Engine {
	e := newEngine(w, tr, cfg, cb, log, wire.NewRawDecoder(cfg.MaxMsgSize), newRawEncoder())
	e.stage = StageNone
	return e
}

// Start begins the handshake (if any) and the read pump (spec section 4.5
// step 1-3). role distinguishes which side dials the transport handshake.
func (e *Engine) Start(ctx context.Context, role transport.Role) {
	if e.cfg.HandshakeTimeout > 0 && e.stage != StageNone {
		e.cancelHandshake = e.worker.ScheduleTimer(e.cfg.HandshakeTimeout, func() {
			e.fail(zlerr.New(zlerr.Timeout, "handshake timed out"), false)
		})
	}

	go e.readLoop(ctx, role)
}

// Attach installs the session-owned pipe. Raw engines fire Ready as soon as
// Attach is called (no handshake stage); ZMP engines fire Ready once READY
// completes and keep frames in the decoder until then.
func (e *Engine) Attach(p PipeEnd) {
	e.mu.Lock()
	e.pipe = p
	raw := e.stage == StageNone
	e.mu.Unlock()

	go e.writeLoop()

	if raw {
		e.markReady(Metadata{SocketType: "STREAM"})
	}
}

func (e *Engine) readLoop(ctx context.Context, role transport.Role) {
	if e.tr.RequiresHandshake() {
		if err := e.tr.Handshake(ctx, role); err != nil {
			e.fail(zlerr.Classify(err), false)
			return
		}
	}
	e.mu.Lock()
	if e.stage == StageAwaitTransportHS {
		e.stage = StageSendHello
	}
	e.mu.Unlock()
	if e.stage != StageNone {
		if err := e.sendHello(); err != nil {
			e.fail(err, false)
			return
		}
	}

	buf := make([]byte, 64*1024)
	for {
		// Speculative I/O (spec section 4.5): try one non-blocking read
		// before falling back to the pumped, blocking Read. Transports with
		// no real non-blocking path (TLS/WS/Mem) return
		// ErrSpeculativeUnsupported and fall straight through below.
		n, err := e.tr.TrySyncRead(buf)
		if err == transport.ErrWouldBlock {
			n, err = e.tr.Read(buf)
		} else if err == transport.ErrSpeculativeUnsupported {
			n, err = e.tr.Read(buf)
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if ferr := e.onBytes(chunk); ferr != nil {
				e.fail(ferr, e.isReady())
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				e.fail(zlerr.New(zlerr.ConnectionReset, "peer closed"), e.isReady())
			} else {
				e.fail(zlerr.Classify(err), e.isReady())
			}
			return
		}
	}
}

func (e *Engine) isReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *Engine) onBytes(data []byte) error {
	msgs, err := e.dec.Feed(data)
	if err != nil {
		return zlerr.Wrap(zlerr.ProtocolError, "malformed frame", err)
	}
	for _, m := range msgs {
		if e.stage == StageNone {
			e.deliverToPipe(m)
			continue
		}
		if m.Flags.Has(message.FlagPing) || m.Flags.Has(message.FlagPong) {
			e.handleHeartbeat(m)
			continue
		}
		// SUBSCRIBE/CANCEL are CONTROL frames at the wire level but are
		// socket-layer traffic, not handshake traffic: once READY, hand
		// them to the pipe like any other frame so SUB/XSUB/PUB/XPUB can
		// see them (spec section 4.8).
		if m.Flags.Has(message.FlagCommand) && !m.Flags.Has(message.FlagSubscribe) && !m.Flags.Has(message.FlagCancel) {
			if e.isReady() {
				// HELLO/READY already processed; any further plain CONTROL
				// frame reaching here is a stray duplicate.
				continue
			}
			if err := e.handleControl(m); err != nil {
				return err
			}
			continue
		}
		e.deliverToPipe(m)
	}
	return nil
}

// deliverToPipe hands a decoded frame to the session-owned pipe, blocking
// the read pump (not dropping the frame) while the pipe is at HWM (spec
// section 3: "the engine must stop reading from the wire until the pipe
// drains"). This is what actually stalls further e.tr.Read calls, since
// readLoop calls onBytes/deliverToPipe synchronously off the same
// goroutine that reads the wire.
func (e *Engine) deliverToPipe(m *message.Message) {
	for {
		e.mu.Lock()
		p := e.pipe
		closed := e.closed
		e.mu.Unlock()
		if p == nil || closed {
			return
		}
		if p.Write(m) {
			return
		}
		select {
		case <-p.DrainNotify():
		case <-e.writeDone:
			return
		}
	}
}

func (e *Engine) markReady(peer Metadata) {
	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		return
	}
	e.ready = true
	e.peer = peer
	if e.cancelHandshake != nil {
		e.cancelHandshake()
	}
	if e.cfg.HeartbeatIvl > 0 {
		e.armHeartbeat()
	}
	e.mu.Unlock()
	if e.cb.Ready != nil {
		e.cb.Ready(peer)
	}
}

func (e *Engine) fail(err error, handshaked bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.cancelHandshake != nil {
		e.cancelHandshake()
	}
	if e.cancelHeartbeat != nil {
		e.cancelHeartbeat()
	}
	if e.cancelPingTO != nil {
		e.cancelPingTO()
	}
	p := e.pipe
	e.mu.Unlock()

	_ = e.tr.Close()
	if p != nil {
		p.Close()
	}
	close(e.writeDone)
	if e.cb.Error != nil {
		e.cb.Error(err, handshaked)
	}
}

// Close tears the engine down without reporting an error, used when the
// session initiates termination (spec section 4.6 term/linger).
func (e *Engine) Close() {
	e.fail(zlerr.New(zlerr.ContextTerminated, "engine closed"), e.isReady())
}

// Reject tears a just-readied engine back down with a caller-supplied
// error, used when the socket layer refuses a peer its engine already
// completed a handshake with (e.g. ROUTER collides on a routing-id without
// ROUTER_HANDOVER set).
func (e *Engine) Reject(err error) {
	e.fail(err, true)
}
