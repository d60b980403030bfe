package socket

import (
	"github.com/ulala-x/zlink/message"
	"github.com/ulala-x/zlink/zlerr"
)

// subEvent is a normalized view of a SUBSCRIBE/CANCEL control frame, used
// by pubCore to update per-peer subscription tries and, for XPUB, to
// mirror the event to the user.
type subEvent struct {
	subscribe bool
	prefix    []byte
}

// parseSubEvent decodes a SUBSCRIBE/CANCEL wire frame: flag bit carries the
// verb, payload is the raw prefix bytes (spec section 4.4.2).
func parseSubEvent(m *message.Message) (subEvent, bool) {
	switch {
	case m.Flags.Has(message.FlagSubscribe):
		return subEvent{subscribe: true, prefix: m.Data()}, true
	case m.Flags.Has(message.FlagCancel):
		return subEvent{subscribe: false, prefix: m.Data()}, true
	default:
		return subEvent{}, false
	}
}

func encodeSubEvent(ev subEvent) *message.Message {
	flag := message.FlagCancel
	if ev.subscribe {
		flag = message.FlagSubscribe
	}
	return message.NewCommand(flag, ev.prefix)
}

// pubCore is the shared fan-out/filter engine behind Pub and XPub: each
// attached peer gets its own subTrie fed by the SUBSCRIBE/CANCEL control
// frames that peer sends on its inbound pipe, and Send only forwards a
// message to peers whose trie currently matches it (spec section 4.8 "PUB
// sends fan out to all attached pipes that currently match").
type pubCore struct {
	base
	peerTries map[*endpointPipe]*subTrie
	// onSubEvent, when set (XPUB), is invoked for every subscribe/cancel
	// transition worth mirroring to the user.
	onSubEvent func(ev subEvent)
}

func newPubCore(typ Type, opts Options) pubCore {
	pc := pubCore{base: newBase(typ, opts), peerTries: make(map[*endpointPipe]*subTrie)}
	pc.onBind = pc.handleBind
	pc.onUnbind = pc.handleUnbind
	return pc
}

func (pc *pubCore) handleBind(ep *endpointPipe) error {
	pc.mu.Lock()
	pc.peerTries[ep] = newSubTrie()
	pc.mu.Unlock()
	if len(pc.opts.XPubWelcomeMsg) > 0 {
		pc.writeOne(ep, message.NewData(pc.opts.XPubWelcomeMsg, false))
	}
	go pc.drainSubscriptions(ep)
	return nil
}

func (pc *pubCore) handleUnbind(ep *endpointPipe) {
	pc.mu.Lock()
	trie := pc.peerTries[ep]
	delete(pc.peerTries, ep)
	pc.mu.Unlock()
	if trie == nil {
		return
	}
	for _, prefix := range trie.Snapshot() {
		if pc.onSubEvent != nil {
			pc.onSubEvent(subEvent{subscribe: false, prefix: []byte(prefix)})
		}
	}
}

// drainSubscriptions runs for the lifetime of one peer's inbound pipe,
// applying every SUBSCRIBE/CANCEL frame it carries to that peer's trie.
// PUB/XPUB never Recv from this pipe directly (it carries no data frames
// from a SUB peer in normal operation), so nothing else drains it.
func (pc *pubCore) drainSubscriptions(ep *endpointPipe) {
	for {
		select {
		case <-ep.inbound.ReadNotify():
		}
		for {
			m, ok, delim := ep.inbound.Read()
			if !ok {
				break
			}
			if delim {
				return
			}
			ev, isSub := parseSubEvent(m)
			if !isSub {
				continue
			}
			pc.mu.Lock()
			trie := pc.peerTries[ep]
			pc.mu.Unlock()
			if trie == nil {
				return
			}
			var first bool
			if ev.subscribe {
				first = trie.Add(string(ev.prefix))
			} else {
				first = trie.Remove(string(ev.prefix))
			}
			if pc.onSubEvent != nil && (pc.opts.XPubVerbose || first) {
				pc.onSubEvent(ev)
			}
		}
	}
}

// Send fans msg out to every peer whose trie currently matches it (or
// every peer, for XPUB which forwards unfiltered data frames verbatim
// alongside the mirrored subscription stream — spec section 4.8).
func (pc *pubCore) Send(msg *message.Message, filtered bool) error {
	peers := pc.snapshot()
	if len(peers) == 0 {
		return nil
	}
	sent := false
	for _, ep := range peers {
		if filtered {
			pc.mu.Lock()
			trie := pc.peerTries[ep]
			pc.mu.Unlock()
			if trie == nil || !trie.Match(msg.Data()) {
				continue
			}
		}
		frame := msg
		if sent {
			frame = msg.Clone()
		}
		if pc.writeOne(ep, frame) {
			sent = true
			continue
		}
		if pc.opts.XPubNoDrop {
			return zlerr.New(zlerr.Again, "PUB/XPUB pipe at high-water mark and XPUB_NODROP set")
		}
		// drop at source for this one subscriber
	}
	return nil
}
