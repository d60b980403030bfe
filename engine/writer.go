package engine

import (
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/transport"
	"github.com/ulala-x/zlink/zlerr"
)

// writeControl sends one control-plane message (HELLO/READY/ERROR/PING/
// PONG) immediately, out of band from the pipe-driven data path.
func (e *Engine) writeControl(m *message.Message) error {
	return e.writeFrame(m)
}

// writeFrame loads m into the engine's encoder and flushes it to
// completion, preferring a vectored write when the body is large enough to
// be worth avoiding a copy (spec section 9 gather-write threshold).
func (e *Engine) writeFrame(m *message.Message) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.enc.LoadMessage(m)
	for !e.enc.Done() {
		header, body := e.enc.Spans()
		var n int
		var err error
		if e.enc.PreferGather() && len(header) > 0 {
			n, err = e.tr.WriteV(header, body)
		} else {
			span := header
			if len(span) == 0 {
				span = body
			}
			// Speculative I/O (spec section 4.5) applies symmetrically to
			// writes: try a non-blocking attempt before the pumped Write.
			n, err = e.tr.TrySyncWrite(span)
			if err == transport.ErrWouldBlock || err == transport.ErrSpeculativeUnsupported {
				n, err = e.tr.Write(span)
			}
		}
		if err != nil {
			return err
		}
		e.enc.Advance(n)
	}
	return nil
}

// writeLoop pulls outbound messages from the pipe as they arrive and writes
// them to the wire, until the pipe is closed (delimiter) or the engine
// fails.
func (e *Engine) writeLoop() {
	e.mu.Lock()
	p := e.pipe
	e.mu.Unlock()
	if p == nil {
		return
	}

	for {
		select {
		case <-e.writeDone:
			return
		case <-p.ReadNotify():
		}

		for {
			m, ok, delim := p.Read()
			if !ok {
				break
			}
			if delim {
				e.fail(zlerr.New(zlerr.ConnectionAborted, "local pipe closed"), e.isReady())
				return
			}
			if err := e.writeFrame(m); err != nil {
				e.fail(err, e.isReady())
				return
			}
		}
	}
}
