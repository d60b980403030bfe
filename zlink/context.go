// Package zlink is the public-facing API of the runtime: a Context owning
// a pool of I/O worker executors (spec section 4.1/5) and a Socket facade
// over the engine/session/pipe/socket layering built underneath it.
package zlink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/stumpy"

	"github.com/ulala-x/zlink/internal/reactor"
	"github.com/ulala-x/zlink/zlerr"
	"github.com/ulala-x/zlink/zlog"
	"github.com/ulala-x/zlink/zlog/logifaceadapter"
)

// ContextOptions mirrors the IO_THREADS/MAX_SOCKETS/THREAD_NAME_PREFIX/
// MAX_MSGSZ Context options of spec section 4.1.
type ContextOptions struct {
	IOThreads        int
	MaxSockets       int
	ThreadNamePrefix string
	MaxMsgSize       int
	Logger           zlog.Logger
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.IOThreads <= 0 {
		o.IOThreads = 2
	}
	if o.MaxSockets <= 0 {
		o.MaxSockets = 1024
	}
	if o.MaxMsgSize <= 0 {
		o.MaxMsgSize = 64 * 1024 * 1024
	}
	if o.Logger == nil {
		o.Logger = logifaceadapter.New(stumpy.L.New(stumpy.L.WithStumpy()))
	}
	return o
}

// Context owns the worker pool every Socket's engines/sessions run on
// (spec section 5: "one executor per I/O worker... sockets and their
// sessions/engines are affinitized to one worker for their lifetime").
type Context struct {
	opts    ContextOptions
	workers []*reactor.Worker
	rr      atomic.Uint64

	mu         sync.Mutex
	sockets    map[*Socket]struct{}
	terminated bool
	cancel     func()
}

// NewContext starts the worker pool and returns a ready-to-use Context.
func NewContext(opts ContextOptions) (*Context, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{opts: opts, sockets: make(map[*Socket]struct{}), cancel: cancel}
	for i := 0; i < opts.IOThreads; i++ {
		w, err := reactor.NewWorker(i)
		if err != nil {
			cancel()
			return nil, zlerr.Wrap(zlerr.InvalidArgument, "starting I/O worker", err)
		}
		c.workers = append(c.workers, w)
		go func() { _ = w.Run(ctx) }()
	}
	return c, nil
}

// nextWorker assigns the next socket a worker round-robin (spec section 5
// socket-to-worker affinity is for the socket's lifetime, established once
// at construction).
func (c *Context) nextWorker() *reactor.Worker {
	idx := c.rr.Add(1) - 1
	return c.workers[idx%uint64(len(c.workers))]
}

func (c *Context) register(s *Socket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return zlerr.New(zlerr.ContextTerminated, "context is terminating")
	}
	if len(c.sockets) >= c.opts.MaxSockets {
		return zlerr.New(zlerr.InvalidArgument, "MAX_SOCKETS exceeded")
	}
	c.sockets[s] = struct{}{}
	return nil
}

func (c *Context) unregister(s *Socket) {
	c.mu.Lock()
	delete(c.sockets, s)
	c.mu.Unlock()
}

// Term closes every still-open socket with LINGER 0 and stops the worker
// pool. Subsequent API calls on sockets belonging to this Context observe
// ContextTerminated (spec section 8 invariant).
func (c *Context) Term() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	sockets := make([]*Socket, 0, len(c.sockets))
	for s := range c.sockets {
		sockets = append(sockets, s)
	}
	c.mu.Unlock()

	for _, s := range sockets {
		_ = s.Close()
	}
	c.cancel()
	for _, w := range c.workers {
		w.Shutdown()
	}
}
