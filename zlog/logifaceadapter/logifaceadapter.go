// Package logifaceadapter wires zlink's [zlog.Logger] seam to a real
// structured-logging backend via github.com/joeycumines/logiface, the
// teacher repository's own zero-allocation logging facade. Any
// logiface.Event implementation works (stumpy's JSON event, zerolog's,
// logrus's); callers pick the backend by constructing the appropriate
// *logiface.Logger[E] and handing it to [New].
package logifaceadapter

import (
	"github.com/joeycumines/logiface"

	"github.com/ulala-x/zlink/zlog"
)

// Adapter implements [zlog.Logger] on top of a *logiface.Logger[E].
type Adapter[E logiface.Event] struct {
	logger *logiface.Logger[E]
}

// New wraps an existing logiface logger (e.g. one built with
// stumpy.L.New(stumpy.L.WithStumpy())) as a zlog.Logger.
func New[E logiface.Event](logger *logiface.Logger[E]) *Adapter[E] {
	return &Adapter[E]{logger: logger}
}

func (a *Adapter[E]) IsEnabled(level zlog.Level) bool {
	return a.logger.Level() >= toLogifaceLevel(level)
}

func (a *Adapter[E]) Log(entry zlog.Entry) {
	b := a.logger.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	if entry.Component != "" {
		b = b.Str("component", entry.Component)
	}
	if entry.Conn != "" {
		b = b.Str("conn", entry.Conn)
	}
	for _, f := range entry.Fields {
		b = b.Any(f.Key, f.Value)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toLogifaceLevel(level zlog.Level) logiface.Level {
	switch level {
	case zlog.LevelTrace:
		return logiface.LevelTrace
	case zlog.LevelDebug:
		return logiface.LevelDebug
	case zlog.LevelInfo:
		return logiface.LevelInformational
	case zlog.LevelWarn:
		return logiface.LevelWarning
	case zlog.LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
