package reactor

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrWorkerTerminated = errors.New("reactor: worker is terminated")
	ErrWorkerRunning    = errors.New("reactor: worker is already running")
)

// Task is a unit of work run on the worker goroutine. Every engine tick,
// session command and socket-to-I/O-thread mailbox message (spec section
// 4.2 "mailbox") is one Task.
type Task func()

type timerEntry struct {
	at    time.Time
	seq   uint64
	task  Task
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Worker is one I/O thread: a poller, a command mailbox and a timer wheel,
// run single-threaded on its own goroutine (spec section 4.2). Engines
// submitted to the same Worker never run concurrently with each other,
// which is what lets engine state be touched without locking.
type Worker struct {
	id int

	state *fastState
	poll  Poller

	wakeRead, wakeWrite int

	mu      sync.Mutex
	pending []Task

	timerMu  sync.Mutex
	timers   timerHeap
	timerSeq uint64

	done chan struct{}
}

// NewWorker constructs and initializes a Worker's poller and wakeup
// descriptor. Call Run to start processing.
func NewWorker(id int) (*Worker, error) {
	w := &Worker{
		id:    id,
		state: newFastState(),
		poll:  newPlatformPoller(),
		done:  make(chan struct{}),
	}
	if err := w.poll.Init(); err != nil {
		return nil, err
	}
	rfd, wfd, err := newWakeDescriptor()
	if err != nil {
		_ = w.poll.Close()
		return nil, err
	}
	w.wakeRead, w.wakeWrite = rfd, wfd
	if rfd >= 0 {
		if err := w.poll.RegisterFD(rfd, EventRead, func(IOEvents) { drainWakeIfUnix(rfd) }); err != nil {
			_ = w.poll.Close()
			closeWakeDescriptor(rfd, wfd)
			return nil, err
		}
	}
	return w, nil
}

// ID returns this worker's index within its owning Context's I/O pool.
func (w *Worker) ID() int { return w.id }

// Poller exposes the registration surface (spec section 4.5's speculative
// I/O is implemented by transports that register their own connection fd
// here alongside the worker's wakeup descriptor).
func (w *Worker) Poller() Poller { return w.poll }

// Submit enqueues a task for execution on the worker goroutine and wakes it
// if sleeping. Safe to call from any goroutine.
func (w *Worker) Submit(t Task) error {
	if w.state.Load() == StateTerminated {
		return ErrWorkerTerminated
	}
	w.mu.Lock()
	w.pending = append(w.pending, t)
	w.mu.Unlock()
	w.wake()
	return nil
}

// ScheduleTimer runs t once after d elapses, on the worker goroutine. It
// returns a cancel function; calling it after the timer has already fired is
// a no-op.
func (w *Worker) ScheduleTimer(d time.Duration, t Task) (cancel func()) {
	w.timerMu.Lock()
	w.timerSeq++
	e := &timerEntry{at: time.Now().Add(d), seq: w.timerSeq, task: t}
	heap.Push(&w.timers, e)
	w.timerMu.Unlock()
	w.wake()
	return func() {
		w.timerMu.Lock()
		defer w.timerMu.Unlock()
		if e.index >= 0 && e.index < len(w.timers) && w.timers[e.index] == e {
			heap.Remove(&w.timers, e.index)
		}
	}
}

func (w *Worker) wake() {
	if w.wakeWrite >= 0 {
		signalWakeDescriptor(w.wakeWrite)
	}
}

// Run blocks, processing tasks/timers/readiness, until ctx is cancelled or
// Shutdown is called. It must run on a dedicated goroutine.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.TryTransition(StateAwake, StateRunning) {
		return ErrWorkerRunning
	}
	defer close(w.done)
	defer w.poll.Close()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.wake()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		w.drainPending()
		w.drainTimers()

		if ctx.Err() != nil || w.state.Load() == StateTerminating {
			w.drainPending()
			w.state.Store(StateTerminated)
			return ctx.Err()
		}

		timeout := w.nextTimeout()
		w.state.Store(StateSleeping)
		_, err := w.poll.Wait(timeout)
		w.state.Store(StateRunning)
		if err != nil {
			return err
		}
	}
}

// Shutdown requests the worker stop after draining already-queued tasks.
func (w *Worker) Shutdown() {
	for {
		cur := w.state.Load()
		if cur == StateTerminated || cur == StateTerminating {
			return
		}
		if w.state.TryTransition(cur, StateTerminating) {
			w.wake()
			return
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) drainPending() {
	w.mu.Lock()
	tasks := w.pending
	w.pending = nil
	w.mu.Unlock()
	for _, t := range tasks {
		t()
	}
}

func (w *Worker) drainTimers() {
	now := time.Now()
	for {
		w.timerMu.Lock()
		if len(w.timers) == 0 || w.timers[0].at.After(now) {
			w.timerMu.Unlock()
			return
		}
		e := heap.Pop(&w.timers).(*timerEntry)
		w.timerMu.Unlock()
		e.task()
	}
}

// nextTimeout computes the poller wait budget in milliseconds: -1 (block
// indefinitely) unless a timer is pending, in which case it's capped to the
// time remaining until the earliest one fires.
func (w *Worker) nextTimeout() int {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if len(w.timers) == 0 {
		return -1
	}
	d := time.Until(w.timers[0].at)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > 1<<30 {
		ms = 1 << 30
	}
	return int(ms)
}
