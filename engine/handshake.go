package engine

import (
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

// sendHello writes the HELLO control frame (spec section 4.5): a property
// dictionary carrying Socket-Type and, for DEALER/ROUTER, Identity.
func (e *Engine) sendHello() error {
	props := map[string]string{"Socket-Type": e.cfg.SocketType}
	if len(e.cfg.RoutingID) > 0 {
		props["Identity"] = string(e.cfg.RoutingID)
	}
	m := message.NewCommand(message.FlagCommand, encodeMetadata(props))
	e.mu.Lock()
	e.stage = StageAwaitHello
	e.mu.Unlock()
	return e.writeControl(m)
}

// sendReady writes the READY frame echoing negotiated heartbeat TTL.
func (e *Engine) sendReady() error {
	props := map[string]string{"Socket-Type": e.cfg.SocketType}
	if e.cfg.HeartbeatTTL > 0 {
		props["Heartbeat-TTL"] = formatMillis(e.cfg.HeartbeatTTL)
	}
	m := message.NewCommand(message.FlagCommand, encodeMetadata(props))
	return e.writeControl(m)
}

// sendError writes an ERROR frame carrying one validation code byte, then
// closes the transport (spec section 4.4.2 / 4.5).
func (e *Engine) sendError(code byte) {
	m := message.NewCommand(message.FlagCommand, []byte{code})
	_ = e.writeControl(m)
}

// handleControl processes a non-heartbeat CONTROL frame according to the
// current handshake stage.
func (e *Engine) handleControl(m *message.Message) error {
	e.mu.Lock()
	stage := e.stage
	e.mu.Unlock()

	switch stage {
	case StageAwaitHello:
		props, err := decodeMetadata(m.Data())
		if err != nil {
			e.sendError(5)
			return err
		}
		peerType := props["Socket-Type"]
		if !compatiblePeer(e.cfg.SocketType, peerType) {
			e.sendError(2)
			return zlerr.New(zlerr.NoCompatibleProtocol, "socket type mismatch: "+peerType)
		}
		e.mu.Lock()
		e.stage = StageSendReady
		e.mu.Unlock()
		if err := e.sendReady(); err != nil {
			return err
		}
		e.mu.Lock()
		e.stage = StageReady
		e.mu.Unlock()
		e.markReady(Metadata{SocketType: peerType, RoutingID: []byte(props["Identity"]), Extra: props})
		return nil

	case StageSendReady, StageReady:
		// READY echoed back by the peer or a stray duplicate; ignore.
		return nil

	default:
		e.sendError(3)
		return zlerr.New(zlerr.ProtocolError, "control frame in unexpected handshake stage")
	}
}

// compatiblePeer enforces spec section 8 scenario 4: PAIR only accepts
// PAIR; everything else is left permissive pending a full socket-type
// compatibility matrix (supplemented by the socket package as it's built
// out per pair).
func compatiblePeer(local, remote string) bool {
	if local == "PAIR" || remote == "PAIR" {
		return local == remote
	}
	return true
}
