package zlink

import (
	"net"
	"sync"

	"github.com/ulala-x/zlink/zlerr"
)

// inprocRegistry is the process-wide directory of bound inproc endpoints
// (spec section 6.2 "inproc://NAME"): Bind registers a name, Connect dials
// it by handing the bound side one end of a net.Pipe().
var inprocRegistry = struct {
	mu        sync.Mutex
	listeners map[string]chan net.Conn
}{listeners: make(map[string]chan net.Conn)}

func inprocBind(name string) (chan net.Conn, error) {
	inprocRegistry.mu.Lock()
	defer inprocRegistry.mu.Unlock()
	if _, exists := inprocRegistry.listeners[name]; exists {
		return nil, zlerr.New(zlerr.AddressInUse, "inproc name already bound: "+name)
	}
	ch := make(chan net.Conn)
	inprocRegistry.listeners[name] = ch
	return ch, nil
}

func inprocUnbind(name string) {
	inprocRegistry.mu.Lock()
	ch, ok := inprocRegistry.listeners[name]
	if ok {
		delete(inprocRegistry.listeners, name)
	}
	inprocRegistry.mu.Unlock()
	if ok {
		close(ch)
	}
}

func inprocConnect(name string) (net.Conn, error) {
	inprocRegistry.mu.Lock()
	ch, ok := inprocRegistry.listeners[name]
	inprocRegistry.mu.Unlock()
	if !ok {
		return nil, zlerr.New(zlerr.ConnectionRefused, "no inproc listener bound: "+name)
	}
	client, server := net.Pipe()
	select {
	case ch <- server:
		return client, nil
	default:
		// Bound side isn't actively accepting right now; hand off on a
		// goroutine so Connect doesn't block past the caller's intent
		// while still guaranteeing delivery once Accept catches up.
		go func() { ch <- server }()
		return client, nil
	}
}
