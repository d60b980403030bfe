// Package wire implements two byte<->message codecs: the ZMP codec
// (8-byte header, used by every socket type except STREAM) and the raw
// codec (4-byte big-endian length prefix, used by STREAM). Both are pure
// state machines over byte spans; they do not touch a transport directly,
// keeping "poller dispatches I/O" separate from "state machine decides
// what the bytes mean".
package wire

import "github.com/ulala-x/zlink/message"

// Magic is the mandatory first byte of every ZMP frame (spec section 4.4.2).
const Magic = 0x5A

// Version is the ZMP version this codec speaks.
const Version = 0x03

// HeaderSize is the fixed ZMP frame header length.
const HeaderSize = 8

// Flag bits of the ZMP header's flags octet (spec section 4.4.2).
type Flag uint8

const (
	FlagMore      Flag = 0x01
	FlagControl   Flag = 0x02
	FlagSubscribe Flag = 0x04
	FlagCancel    Flag = 0x08
	FlagIdentity  Flag = 0x10
	FlagPing      Flag = 0x20
	FlagPong      Flag = 0x40
)

// ValidationCode is the error-code table of spec section 4.4.2, surfaced in
// ERROR frames and monitor HANDSHAKE_FAILED_PROTOCOL events.
type ValidationCode uint8

const (
	CodeMagicMismatch     ValidationCode = 1
	CodeUnsupportedVer    ValidationCode = 2
	CodeIllegalFlags      ValidationCode = 3
	CodeBodyTooLarge      ValidationCode = 4
	CodeMalformedMetadata ValidationCode = 5
)

// Header is the parsed form of a ZMP frame's 8 leading bytes.
type Header struct {
	Flags      Flag
	BodyLength uint32
}

// toMessageFlags maps the wire flags octet onto the message.Flag bitset
// used internally once a frame has been fully decoded.
func (h Header) toMessageFlags() message.Flag {
	var f message.Flag
	if h.Flags&FlagMore != 0 {
		f |= message.FlagMore
	}
	if h.Flags&FlagControl != 0 {
		f |= message.FlagCommand
	}
	if h.Flags&FlagSubscribe != 0 {
		f |= message.FlagSubscribe
	}
	if h.Flags&FlagCancel != 0 {
		f |= message.FlagCancel
	}
	if h.Flags&FlagIdentity != 0 {
		f |= message.FlagRoutingID
	}
	if h.Flags&FlagPing != 0 {
		f |= message.FlagPing
	}
	if h.Flags&FlagPong != 0 {
		f |= message.FlagPong
	}
	return f
}

// fromMessageFlags is the inverse of toMessageFlags, used by the encoder.
func fromMessageFlags(f message.Flag) Flag {
	var w Flag
	if f.Has(message.FlagMore) {
		w |= FlagMore
	}
	if f.Has(message.FlagCommand) {
		w |= FlagControl
	}
	if f.Has(message.FlagSubscribe) {
		w |= FlagSubscribe
	}
	if f.Has(message.FlagCancel) {
		w |= FlagCancel
	}
	if f.Has(message.FlagRoutingID) {
		w |= FlagIdentity
	}
	if f.Has(message.FlagPing) {
		w |= FlagPing
	}
	if f.Has(message.FlagPong) {
		w |= FlagPong
	}
	return w
}

// validateFlags enforces spec section 4.4.2's illegal-combination rule:
// SUBSCRIBE and CANCEL are mutually exclusive, and CONTROL+MORE is only
// legal in combination with IDENTITY (a routing-id prefix frame, which is
// itself a control-ish frame that precedes more data).
func validateFlags(f Flag) *ValidationError {
	if f&FlagSubscribe != 0 && f&FlagCancel != 0 {
		return &ValidationError{Code: CodeIllegalFlags, Reason: "SUBSCRIBE and CANCEL both set"}
	}
	if f&FlagControl != 0 && f&FlagMore != 0 && f&FlagIdentity == 0 {
		return &ValidationError{Code: CodeIllegalFlags, Reason: "CONTROL and MORE set on a non-identity frame"}
	}
	return nil
}

// ValidationError is returned by Decoder.Feed for malformed ZMP input; the
// engine turns it into an ERROR frame (spec section 4.5) and a
// zlerr.ProtocolError (spec section 7).
type ValidationError struct {
	Code   ValidationCode
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
