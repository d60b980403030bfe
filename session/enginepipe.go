package session

import (
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/pipe"
)

// enginePipe adapts a pair of one-directional pipe.Pipe queues to the
// single engine.PipeEnd surface: inbound carries wire->socket frames
// (engine.Write), outbound carries socket->wire frames (engine.Read/Peek).
type enginePipe struct {
	inbound  *pipe.Pipe
	outbound *pipe.Pipe
}

func newEnginePipe(hwm int, conflate bool) *enginePipe {
	return &enginePipe{
		inbound:  pipe.New(hwm, conflate),
		outbound: pipe.New(hwm, conflate),
	}
}

func (p *enginePipe) Write(m *message.Message) bool           { return p.inbound.Write(m) }
func (p *enginePipe) Read() (*message.Message, bool, bool)    { return p.outbound.Read() }
func (p *enginePipe) Peek() (*message.Message, bool)          { return p.outbound.Peek() }
func (p *enginePipe) ReadNotify() <-chan struct{}             { return p.outbound.ReadNotify() }
func (p *enginePipe) Close() {
	p.inbound.Close()
	p.outbound.Close()
}
