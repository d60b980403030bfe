package engine

import (
	"crypto/rand"
	"strconv"
	"time"

	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// armHeartbeat schedules the next PING. Called with e.mu held.
func (e *Engine) armHeartbeat() {
	e.cancelHeartbeat = e.worker.ScheduleTimer(e.cfg.HeartbeatIvl, e.sendPing)
}

// sendPing emits a PING carrying a fresh context payload and arms the
// heartbeat-timeout timer; a matching PONG must arrive before it fires
// (spec section 4.5 steady state / heartbeat liveness).
func (e *Engine) sendPing() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	ctxPayload := make([]byte, 8)
	if _, err := rand.Read(ctxPayload); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; fall back to a still-unique, still-unguessable-enough
		// value rather than skipping the heartbeat.
		ctxPayload = []byte(strconv.FormatInt(time.Now().UnixNano(), 36))[:8]
	}
	e.pingCtx = ctxPayload
	timeout := e.cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = e.cfg.HeartbeatIvl
	}
	e.cancelPingTO = e.worker.ScheduleTimer(timeout, func() {
		e.fail(zlerr.New(zlerr.Timeout, "heartbeat timeout: no PONG received"), true)
	})
	e.armHeartbeat()
	e.mu.Unlock()

	m := message.NewCommand(message.FlagCommand|message.FlagPing, ctxPayload)
	_ = e.writeControl(m)
}

// handleHeartbeat processes an inbound PING or PONG frame.
func (e *Engine) handleHeartbeat(m *message.Message) {
	if m.Flags.Has(message.FlagPing) {
		pong := message.NewCommand(message.FlagCommand|message.FlagPong, m.Data())
		_ = e.writeControl(pong)
		return
	}
	// PONG: must match the outstanding PING context, or it's stale/bogus.
	e.mu.Lock()
	match := e.pingCtx != nil && string(m.Data()) == string(e.pingCtx)
	if match {
		e.pingCtx = nil
		if e.cancelPingTO != nil {
			e.cancelPingTO()
			e.cancelPingTO = nil
		}
	}
	e.mu.Unlock()
}
