package zlink

import (
	"context"
	"crypto/tls"
	"net"

	"golang.org/x/net/netutil"

	"github.com/ulala-x/zlink/monitor"
	"github.com/ulala-x/zlink/transport"
	"github.com/ulala-x/zlink/zlerr"
)

// limitListener bounds concurrent accepted-but-not-yet-registered
// connections on one listener to the Context's MAX_SOCKETS, so a connection
// flood can't exhaust file descriptors before Socket.register ever gets a
// chance to reject it (spec section 4.1).
func (s *Socket) limitListener(ln net.Listener) net.Listener {
	n := s.ctx.opts.MaxSockets
	if n <= 0 {
		return ln
	}
	return netutil.LimitListener(ln, n)
}

// bindTCP opens a listener and spawns one accept-side Session per inbound
// connection (spec section 4.8 "bind", section 6.2 tcp:// grammar).
func (s *Socket) bindTCP(ep endpoint) error {
	laddr, err := net.ResolveTCPAddr("tcp", ep.tcpAddr())
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	tln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	ln := s.limitListener(tln)
	s.registerListener(ln, tln.Addr().String())
	s.mon.Emit(monitor.Event{EventID: monitor.Listening, LocalAddr: tln.Addr().String()})
	go s.acceptTCPLoop(ln)
	return nil
}

func (s *Socket) acceptTCPLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			_ = conn.Close()
			s.mon.Emit(monitor.Event{EventID: monitor.AcceptFailed})
			continue
		}
		tr, err := transport.NewTCP(tcpConn)
		if err != nil {
			_ = conn.Close()
			s.mon.Emit(monitor.Event{EventID: monitor.AcceptFailed})
			continue
		}
		s.mon.Emit(monitor.Event{EventID: monitor.Accepted, RemoteAddr: tcpConn.RemoteAddr().String()})
		go s.newAcceptSession(tr, transport.RoleAccept)
	}
}

// bindTLS layers a TLS listener over a TCP accept loop (spec section 6.2
// tls:// grammar): the TLS handshake itself runs inside the engine via
// Transport.Handshake, not here.
func (s *Socket) bindTLS(ep endpoint) error {
	laddr, err := net.ResolveTCPAddr("tcp", ep.tcpAddr())
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	tln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	cfg := s.tlsServerConfig()
	ln := s.limitListener(tln)
	s.registerListener(ln, tln.Addr().String())
	s.mon.Emit(monitor.Event{EventID: monitor.Listening, LocalAddr: tln.Addr().String()})
	go s.acceptTLSLoop(ln, cfg)
	return nil
}

func (s *Socket) acceptTLSLoop(ln net.Listener, cfg *tls.Config) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tlsConn := tls.Server(conn, cfg)
		s.mon.Emit(monitor.Event{EventID: monitor.Accepted, RemoteAddr: conn.RemoteAddr().String()})
		go s.newAcceptSession(transport.NewTLS(tlsConn), transport.RoleAccept)
	}
}

func (s *Socket) tlsServerConfig() *tls.Config {
	cfg := &tls.Config{}
	if s.extra.TLS.HasCert {
		cfg.Certificates = []tls.Certificate{s.extra.TLS.Cert}
	}
	if s.extra.TLS.RequireClientCert {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

// bindIPC listens on a Unix domain socket (spec section 6.2 ipc:// grammar).
func (s *Socket) bindIPC(ep endpoint) error {
	laddr, err := net.ResolveUnixAddr("unix", ep.host)
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	uln, err := net.ListenUnix("unix", laddr)
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	ln := s.limitListener(uln)
	s.registerListener(ln, uln.Addr().String())
	s.mon.Emit(monitor.Event{EventID: monitor.Listening, LocalAddr: uln.Addr().String()})
	go s.acceptIPCLoop(ln)
	return nil
}

func (s *Socket) acceptIPCLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			_ = conn.Close()
			s.mon.Emit(monitor.Event{EventID: monitor.AcceptFailed})
			continue
		}
		tr, err := transport.NewIPC(unixConn)
		if err != nil {
			_ = conn.Close()
			s.mon.Emit(monitor.Event{EventID: monitor.AcceptFailed})
			continue
		}
		s.mon.Emit(monitor.Event{EventID: monitor.Accepted})
		go s.newAcceptSession(tr, transport.RoleAccept)
	}
}

// bindInproc registers a same-process listener name (spec section 6.2
// inproc:// grammar). Every handed-off net.Pipe() half becomes its own
// accept-side Session, same as a real network accept.
func (s *Socket) bindInproc(ep endpoint) error {
	ch, err := inprocBind(ep.host)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastEndpoint = ep.String()
	s.listeners = append(s.listeners, inprocCloser{name: ep.host})
	s.mu.Unlock()
	go func() {
		for conn := range ch {
			go s.newAcceptSession(transport.NewMem(conn), transport.RoleAccept)
		}
	}()
	return nil
}

type inprocCloser struct{ name string }

func (c inprocCloser) Close() error { inprocUnbind(c.name); return nil }

// bindWS starts an HTTP(S) server upgrading every request on ep.path to a
// WebSocket connection (spec section 6.2 ws://, wss:// grammar).
func (s *Socket) bindWS(ep endpoint, secure bool) error {
	laddr, err := net.ResolveTCPAddr("tcp", ep.tcpAddr())
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	tln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		s.mon.Emit(monitor.Event{EventID: monitor.BindFailed})
		return zlerr.Classify(err)
	}
	ln := s.limitListener(tln)
	var wl *transport.WSListener
	if secure {
		wl = transport.ListenWSS(ln, s.tlsServerConfig(), ep.path)
	} else {
		wl = transport.ListenWS(ln, ep.path, false)
	}
	s.registerListener(wl, tln.Addr().String())
	s.mon.Emit(monitor.Event{EventID: monitor.Listening, LocalAddr: tln.Addr().String()})
	go s.acceptWSLoop(wl)
	return nil
}

func (s *Socket) acceptWSLoop(wl *transport.WSListener) {
	ctx := context.Background()
	for {
		tr, err := wl.Accept(ctx)
		if err != nil {
			return
		}
		s.mon.Emit(monitor.Event{EventID: monitor.Accepted})
		go s.newAcceptSession(tr, transport.RoleAccept)
	}
}

func (s *Socket) registerListener(l io_Closer, addr string) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.lastEndpoint = addr
	s.mu.Unlock()
}
