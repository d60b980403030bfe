// Package monitor implements the socket monitoring facility of spec
// section 6.4: a socket may have a Monitor attached, which receives one
// Event per transport lifecycle transition (connect, accept, handshake
// failure, heartbeat timeout, and so on).
package monitor

import "sync"

// EventID enumerates the transport lifecycle transitions a Monitor can
// observe (spec section 6.4).
type EventID uint64

const (
	Connected EventID = 1 << iota
	ConnectDelayed
	ConnectRetried
	Listening
	BindFailed
	Accepted
	AcceptFailed
	Closed
	CloseFailed
	Disconnected
	MonitorStopped
	HandshakeFailedNoDetail
	HandshakeFailedProtocol
	HandshakeFailedAuth
	ConnectionReady
)

// HandshakeSucceeded is the documented synonym for ConnectionReady
// (original_source used both names interchangeably depending on the
// bindings generation being inspected).
const HandshakeSucceeded = ConnectionReady

func (e EventID) String() string {
	switch e {
	case Connected:
		return "CONNECTED"
	case ConnectDelayed:
		return "CONNECT_DELAYED"
	case ConnectRetried:
		return "CONNECT_RETRIED"
	case Listening:
		return "LISTENING"
	case BindFailed:
		return "BIND_FAILED"
	case Accepted:
		return "ACCEPTED"
	case AcceptFailed:
		return "ACCEPT_FAILED"
	case Closed:
		return "CLOSED"
	case CloseFailed:
		return "CLOSE_FAILED"
	case Disconnected:
		return "DISCONNECTED"
	case MonitorStopped:
		return "MONITOR_STOPPED"
	case HandshakeFailedNoDetail:
		return "HANDSHAKE_FAILED_NO_DETAIL"
	case HandshakeFailedProtocol:
		return "HANDSHAKE_FAILED_PROTOCOL"
	case HandshakeFailedAuth:
		return "HANDSHAKE_FAILED_AUTH"
	case ConnectionReady:
		return "CONNECTION_READY"
	default:
		return "UNKNOWN"
	}
}

// Event is one monitor record (spec section 6.4).
type Event struct {
	EventID    EventID
	Value      uint64 // ZMP validation code for HANDSHAKE_FAILED_PROTOCOL, errno for others
	RoutingID  []byte
	LocalAddr  string
	RemoteAddr string
}

// Monitor fans socket lifecycle events out to one or more subscribers. The
// zero value is ready to use.
type Monitor struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// New constructs an empty Monitor.
func New() *Monitor { return &Monitor{} }

// Subscribe returns a channel that receives every future Event, buffered
// so a slow consumer cannot stall the emitting socket. Closed when Stop is
// called.
func (m *Monitor) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Emit delivers ev to every subscriber, dropping it for any subscriber
// whose buffer is full rather than blocking the socket's worker.
func (m *Monitor) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Stop emits MonitorStopped and closes every subscriber channel.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		select {
		case ch <- Event{EventID: MonitorStopped}:
		default:
		}
		close(ch)
	}
	m.subs = nil
}
