package engine

import (
	"github.com/ulala-x/zlink/internal/wire"
	"github.com/ulala-x/zlink/message"
)

// decoder is the shape both wire.Decoder (ZMP) and wire.RawDecoder (STREAM)
// already satisfy, letting Engine stay codec-agnostic.
type decoder interface {
	Feed(data []byte) ([]*message.Message, error)
}

// encoder is the shape both codecs' senders are adapted to below.
type encoder interface {
	LoadMessage(m *message.Message)
	Spans() (header, body []byte)
	Advance(n int) bool
	Done() bool
	PreferGather() bool
}

// zmpEncoder adapts wire.Encoder (which takes an extra wire-only flags
// argument the engine never needs, since message.Flag already carries
// PING/PONG/SUBSCRIBE/CANCEL) to the encoder interface.
type zmpEncoder struct{ e *wire.Encoder }

func newZMPEncoder() encoder { return &zmpEncoder{e: wire.NewEncoder()} }

func (z *zmpEncoder) LoadMessage(m *message.Message)        { z.e.LoadMessage(m, 0) }
func (z *zmpEncoder) Spans() (header, body []byte)          { return z.e.Spans() }
func (z *zmpEncoder) Advance(n int) bool                    { return z.e.Advance(n) }
func (z *zmpEncoder) Done() bool                             { return z.e.Done() }
func (z *zmpEncoder) PreferGather() bool                     { return z.e.PreferGather() }

// rawEncoder adapts wire.RawEncoder directly (same shape already).
type rawEncoder struct{ e *wire.RawEncoder }

func newRawEncoder() encoder { return &rawEncoder{e: wire.NewRawEncoder()} }

func (r *rawEncoder) LoadMessage(m *message.Message) { r.e.LoadMessage(m) }
func (r *rawEncoder) Spans() (header, body []byte)   { return r.e.Spans() }
func (r *rawEncoder) Advance(n int) bool              { return r.e.Advance(n) }
func (r *rawEncoder) Done() bool                      { return r.e.Done() }
func (r *rawEncoder) PreferGather() bool              { return r.e.PreferGather() }
