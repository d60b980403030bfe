package reactor

import "sync/atomic"

// WorkerState is the lifecycle of one worker (spec section 4.2). Transitions
// happen only via CAS so Shutdown racing with the worker's own poll loop
// never double-fires termination.
type WorkerState uint32

const (
	StateAwake WorkerState = iota
	StateRunning
	StateSleeping
	StateTerminating
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *fastState) Load() WorkerState { return WorkerState(s.v.Load()) }

func (s *fastState) Store(state WorkerState) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to WorkerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
