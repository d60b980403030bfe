package socket

import (
	"sync"

	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

// Dealer implements the DEALER socket (spec section 4.8): round-robins
// outbound sends across ready peers and fair-queues inbound receives.
type Dealer struct {
	base

	mu      sync.Mutex
	order   []*endpointPipe
	sendIdx int
	recvIdx int
}

// NewDealer constructs an unbound DEALER socket.
func NewDealer(opts Options) *Dealer {
	d := &Dealer{base: newBase(TypeDealer, opts)}
	d.onBind = d.appendPeer
	d.onUnbind = d.removePeer
	return d
}

func (d *Dealer) appendPeer(ep *endpointPipe) error {
	d.mu.Lock()
	d.order = append(d.order, ep)
	d.mu.Unlock()
	return nil
}

func (d *Dealer) removePeer(ep *endpointPipe) {
	d.mu.Lock()
	for i, e := range d.order {
		if e == ep {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Send writes msg to the next peer in round-robin order, skipping any peer
// currently at its high-water mark.
func (d *Dealer) Send(msg *message.Message) error {
	d.mu.Lock()
	peers := append([]*endpointPipe(nil), d.order...)
	n := len(peers)
	if n == 0 {
		d.mu.Unlock()
		return zlerr.New(zlerr.StateMachine, "DEALER has no connected peer")
	}
	start := d.sendIdx % n
	d.sendIdx++
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		ep := peers[(start+i)%n]
		if d.writeOne(ep, msg) {
			return nil
		}
	}
	return zlerr.New(zlerr.Again, "all DEALER pipes at high-water mark")
}

// Recv fair-queues across attached peers, resuming from the peer after the
// one it last returned a frame from.
func (d *Dealer) Recv() (*message.Message, bool) {
	d.mu.Lock()
	peers := append([]*endpointPipe(nil), d.order...)
	n := len(peers)
	start := d.recvIdx % max1(n)
	d.mu.Unlock()
	if n == 0 {
		return nil, false
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := peers[idx]
		if m, ok, delim := ep.inbound.Read(); ok && !delim {
			d.mu.Lock()
			d.recvIdx = idx + 1
			d.mu.Unlock()
			return m, true
		}
	}
	return nil, false
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
