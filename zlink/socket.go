package zlink

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/ulala-x/zlink/engine"
	"github.com/ulala-x/zlink/internal/reactor"
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/monitor"
	"github.com/ulala-x/zlink/pipe"
	"github.com/ulala-x/zlink/session"
	"github.com/ulala-x/zlink/socket"
	"github.com/ulala-x/zlink/transport"
	"github.com/ulala-x/zlink/zlerr"
)

// impl is what every concrete socket.* type provides: the Send/Recv policy
// plus the session.Socket handoff contract (Bind/Unbind/ReplaySubscriptions)
// every one of them gets for free from socket.base.
type impl interface {
	Send(*message.Message) error
	Recv() (*message.Message, bool)
	Bind(inbound, outbound *pipe.Pipe, peer engine.Metadata) error
	Unbind(inbound, outbound *pipe.Pipe)
	ReplaySubscriptions(outbound *pipe.Pipe)
}

// Socket is the user-facing handle: bind/connect/unbind/disconnect/send/
// recv/setsockopt/getsockopt/monitor/close (spec section 4.8 common
// contract), dispatching to one of the socket.* type implementations.
type Socket struct {
	ctx    *Context
	typ    socket.Type
	worker *reactor.Worker
	impl   impl
	mon    *monitor.Monitor

	mu           sync.Mutex
	sockOpts     socket.Options
	extra        SocketOptions
	lastEndpoint string
	listeners    []io_Closer
	sessions     []*session.Session
	ctxCancel    func()
	closed       bool
}

type io_Closer interface{ Close() error }

// Flag mirrors the DONTWAIT/SNDMORE send/recv flags of spec section 4.8.
type Flag int

const (
	DontWait Flag = 1 << iota
	SndMore
)

func newImpl(typ socket.Type, opts socket.Options) impl {
	switch typ {
	case socket.TypePair:
		return socket.NewPair(opts)
	case socket.TypePub:
		return socket.NewPub(opts)
	case socket.TypeSub:
		return socket.NewSub(opts)
	case socket.TypeXPub:
		return socket.NewXPub(opts)
	case socket.TypeXSub:
		return socket.NewXSub(opts)
	case socket.TypeDealer:
		return socket.NewDealer(opts)
	case socket.TypeRouter:
		return socket.NewRouter(opts)
	case socket.TypeStream:
		return socket.NewStream(opts)
	default:
		return socket.NewPair(opts)
	}
}

// NewSocket constructs a Socket of typ on ctx, affinitized to the worker
// the context assigns it for its whole lifetime (spec section 5).
func NewSocket(ctx *Context, typ socket.Type) (*Socket, error) {
	s := &Socket{
		ctx:    ctx,
		typ:    typ,
		worker: ctx.nextWorker(),
		impl:   newImpl(typ, socket.Options{}),
		mon:    monitor.New(),
	}
	if err := ctx.register(s); err != nil {
		return nil, err
	}
	_, cancel := context.WithCancel(context.Background())
	s.ctxCancel = cancel
	return s, nil
}

func (s *Socket) engineConfig() engine.Config {
	return engine.Config{
		SocketType:       s.typ.String(),
		RoutingID:        s.sockOpts.RoutingID,
		MaxMsgSize:       s.extra.MaxMsgSize,
		HandshakeTimeout: s.extra.HandshakeIvl,
		HeartbeatIvl:     s.extra.HeartbeatIvl,
		HeartbeatTimeout: s.extra.HeartbeatTimeout,
		HeartbeatTTL:     s.extra.HeartbeatTTL,
	}
}

func (s *Socket) sessionConfig(raw bool) session.Config {
	return session.Config{
		Engine:          s.engineConfig(),
		HWM:             s.sockOpts.SndHWM,
		Conflate:        s.sockOpts.Conflate,
		ReconnectIvl:    time.Duration(s.sockOpts.ReconnectIvl) * time.Millisecond,
		ReconnectIvlMax: time.Duration(s.sockOpts.ReconnectMax) * time.Millisecond,
		Raw:             raw,
		Monitor:         s.mon,
	}
}

// Bind listens on endpoint and spawns one accept-side Session per inbound
// connection (spec section 4.8 "bind").
func (s *Socket) Bind(addr string) error {
	ep, err := parseEndpoint(addr)
	if err != nil {
		return err
	}
	if s.typ == socket.TypePair {
		if p, ok := s.impl.(*socket.Pair); ok && !p.CanAcceptPeer() {
			// still allow the listener (a second peer is refused at
			// accept time, not at bind time)
			_ = p
		}
	}

	switch ep.scheme {
	case schemeTCP:
		return s.bindTCP(ep)
	case schemeTLS:
		return s.bindTLS(ep)
	case schemeIPC:
		return s.bindIPC(ep)
	case schemeInproc:
		return s.bindInproc(ep)
	case schemeWS:
		return s.bindWS(ep, false)
	case schemeWSS:
		return s.bindWS(ep, true)
	default:
		return zlerr.New(zlerr.InvalidArgument, "unsupported scheme for bind")
	}
}

// Connect dials endpoint, installing a reconnecting connect-side Session
// (spec section 4.8 "connect", section 6.3 RECONNECT_IVL).
func (s *Socket) Connect(addr string) error {
	ep, err := parseEndpoint(addr)
	if err != nil {
		return err
	}
	if s.typ == socket.TypePair {
		if p, ok := s.impl.(*socket.Pair); ok && !p.CanAcceptPeer() {
			return zlerr.New(zlerr.AddressInUse, "PAIR already has a connected peer")
		}
	}

	dialer := s.dialerFor(ep)
	sess := session.New(s.worker, s.impl, s.sessionConfig(s.typ == socket.TypeStream), dialer, s.ctx.opts.Logger)

	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.lastEndpoint = ep.String()
	s.mu.Unlock()

	go sess.Connect(context.Background())
	return nil
}

// newAcceptSession builds a non-reconnecting Session for one accepted
// connection and plugs tr into it, registering the session for Close/LINGER
// bookkeeping (spec section 4.8 "bind" accept path).
func (s *Socket) newAcceptSession(tr transport.Transport, role transport.Role) {
	if s.typ == socket.TypePair {
		if p, ok := s.impl.(*socket.Pair); ok && !p.CanAcceptPeer() {
			_ = tr.Close()
			return
		}
	}
	sess := session.New(s.worker, s.impl, s.sessionConfig(s.typ == socket.TypeStream), nil, s.ctx.opts.Logger)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = tr.Close()
		return
	}
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()
	sess.Plug(context.Background(), tr, role)
}

func (s *Socket) dialerFor(ep endpoint) session.Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		switch ep.scheme {
		case schemeTCP:
			raddr, err := net.ResolveTCPAddr("tcp", ep.tcpAddr())
			if err != nil {
				return nil, zlerr.Classify(err)
			}
			conn, err := net.DialTCP("tcp", nil, raddr)
			if err != nil {
				return nil, zlerr.Classify(err)
			}
			return transport.NewTCP(conn)
		case schemeTLS:
			cfg := s.tlsConfig(ep)
			conn, err := tls.Dial("tcp", ep.tcpAddr(), cfg)
			if err != nil {
				return nil, zlerr.Classify(err)
			}
			return transport.NewTLS(conn), nil
		case schemeIPC:
			raddr, err := net.ResolveUnixAddr("unix", ep.host)
			if err != nil {
				return nil, zlerr.Classify(err)
			}
			conn, err := net.DialUnix("unix", nil, raddr)
			if err != nil {
				return nil, zlerr.Classify(err)
			}
			return transport.NewIPC(conn)
		case schemeWS:
			return transport.DialWS(ctx, "ws://"+ep.host+":"+ep.port+ep.path, nil)
		case schemeWSS:
			return transport.DialWSS(ctx, "wss://"+ep.host+":"+ep.port+ep.path, s.tlsConfig(ep))
		case schemeInproc:
			conn, err := inprocConnect(ep.host)
			if err != nil {
				return nil, err
			}
			return transport.NewMem(conn), nil
		default:
			return nil, zlerr.New(zlerr.InvalidArgument, "unsupported scheme for connect")
		}
	}
}

func (s *Socket) tlsConfig(ep endpoint) *tls.Config {
	cfg := &tls.Config{ServerName: s.extra.TLS.Hostname, InsecureSkipVerify: !s.extra.TLS.Verify}
	if s.extra.TLS.HasCert {
		cfg.Certificates = []tls.Certificate{s.extra.TLS.Cert}
	}
	return cfg
}

// Send writes one frame. SndMore indicates more frames of the same
// logical message follow (spec section 4.8 flags).
func (s *Socket) Send(data []byte, flags Flag) error {
	m := message.NewData(data, flags&SndMore != 0)
	return s.impl.Send(m)
}

// Recv reads the next available frame. DONTWAIT is honored implicitly:
// callers that want blocking semantics should poll ReadyNotify/Monitor
// themselves (spec section 4.8's Recv never blocks inside this package).
func (s *Socket) Recv(flags Flag) ([]byte, bool, error) {
	m, ok := s.impl.Recv()
	if !ok {
		return nil, false, zlerr.New(zlerr.Again, "no message available")
	}
	return m.Data(), m.More(), nil
}

// Monitor returns a channel of lifecycle events (spec section 6.4).
func (s *Socket) Monitor() <-chan monitor.Event { return s.mon.Subscribe(64) }

// Close implements LINGER per spec section 5: 0 drops pending sends, >0
// waits up to that many ms, -1 waits forever.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zlerr.New(zlerr.InvalidArgument, "socket already closed")
	}
	s.closed = true
	sessions := append([]*session.Session(nil), s.sessions...)
	listeners := append([]io_Closer(nil), s.listeners...)
	linger := s.sockOpts.Linger
	s.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	lingerD := time.Duration(linger) * time.Millisecond
	if linger < 0 {
		lingerD = 24 * time.Hour // "forever", bounded to keep Close from hanging this build
	}
	for _, sess := range sessions {
		sess.Term(lingerD)
	}
	s.mon.Stop()
	s.ctx.unregister(s)
	s.ctxCancel()
	return nil
}

func (s *Socket) subscribe(prefix []byte, add bool) error {
	switch t := s.impl.(type) {
	case *socket.Sub:
		if add {
			t.Subscribe(prefix)
		} else {
			t.Unsubscribe(prefix)
		}
		return nil
	default:
		return zlerr.New(zlerr.InvalidArgument, "SUBSCRIBE/UNSUBSCRIBE only valid on SUB sockets")
	}
}

func (s *Socket) listenerFD() int { return -1 }
func (s *Socket) events() int     { return 0 }
