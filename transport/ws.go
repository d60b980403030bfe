package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WS wraps a *websocket.Conn, presenting it as a byte stream: ZMP frames are
// carried as binary WebSocket messages, and Read reassembles/slices them
// across the caller's buffer boundaries since one WS message rarely lines
// up with one Read call. Speculative I/O is unavailable (frame boundaries,
// like TLS records, make non-blocking partial reads meaningless).
type WS struct {
	conn   *websocket.Conn
	secure bool

	readMu  sync.Mutex
	leftover []byte

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewWS wraps an already-upgraded connection. secure distinguishes "ws" from
// "wss" for Name()/IsEncrypted(); the handshake (HTTP upgrade) has already
// happened by the time a *websocket.Conn exists, so RequiresHandshake/
// Handshake here are a formality kept for Transport-interface uniformity.
func NewWS(conn *websocket.Conn, secure bool) *WS {
	return &WS{conn: conn, secure: secure}
}

func (w *WS) Name() string {
	if w.secure {
		return "wss"
	}
	return "ws"
}

func (w *WS) IsEncrypted() bool        { return w.secure }
func (w *WS) RequiresHandshake() bool  { return false }
func (w *WS) Handshake(context.Context, Role) error { return nil }
func (w *WS) IsOpen() bool             { return !w.closed.Load() }
func (w *WS) LocalAddr() string        { return w.conn.LocalAddr().String() }
func (w *WS) RemoteAddr() string       { return w.conn.RemoteAddr().String() }

func (w *WS) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	if len(w.leftover) == 0 {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			// Non-binary control/text frames carry no ZMP bytes; surface
			// as a zero-length read so the decoder loop just spins.
			return 0, nil
		}
		w.leftover = data
	}

	n := copy(p, w.leftover)
	w.leftover = w.leftover[n:]
	return n, nil
}

func (w *WS) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WS) TrySyncRead(p []byte) (int, error)  { return 0, ErrSpeculativeUnsupported }
func (w *WS) TrySyncWrite(p []byte) (int, error) { return 0, ErrSpeculativeUnsupported }

// WriteV concatenates header+body into one WS binary message: gorilla has
// no vectored-write entry point, and splitting across two WS messages would
// change framing semantics on the wire.
func (w *WS) WriteV(header, body []byte) (int, error) {
	buf := make([]byte, 0, len(header)+len(body))
	buf = append(buf, header...)
	buf = append(buf, body...)
	return w.Write(buf)
}

func (w *WS) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.conn.Close()
}

// DialWS connects as a WebSocket client, per spec section 6.2's ws://host:port/path
// endpoint grammar. tlsConfig non-nil selects wss.
func DialWS(ctx context.Context, endpoint string, tlsConfig *tls.Config) (*WS, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return NewWS(conn, tlsConfig != nil), nil
}

// WSListener accepts WebSocket connections on an HTTP server, handing each
// upgraded connection to acceptFn (normally session.Attach via a ZMP/raw
// engine). It mirrors net.Listener's Accept-loop shape using a channel
// bridge since gorilla/websocket is upgrade-per-request, not Accept-style.
type WSListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	accepted chan *websocket.Conn
	secure   bool
}

// ListenWS starts an HTTP(S) server on ln and upgrades every request on
// path to a WebSocket connection. tlsConfig non-nil makes this a wss
// listener (ln is expected to already be a tls.Listener in that case).
func ListenWS(ln net.Listener, path string, secure bool) *WSListener {
	l := &WSListener{
		ln:       ln,
		upgrader: websocket.Upgrader{ReadBufferSize: 64 * 1024, WriteBufferSize: 64 * 1024},
		accepted: make(chan *websocket.Conn, 16),
		secure:   secure,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.srv = &http.Server{Handler: mux}
	go func() { _ = l.srv.Serve(ln) }()
	return l
}

func (l *WSListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	l.accepted <- conn
}

// Accept blocks until the next WebSocket connection is upgraded.
func (l *WSListener) Accept(ctx context.Context) (*WS, error) {
	select {
	case conn := <-l.accepted:
		return NewWS(conn, l.secure), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WSListener) Close() error {
	return l.srv.Close()
}
