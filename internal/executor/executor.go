// Package executor implements the single-threaded cooperative scheduler
// shared by the daemon and every SDK-linked client process (spec.md §4.2).
//
// The original implementation reacts to epoll/kqueue readiness; nothing in
// this corpus hand-rolls a raw readiness-notification primitive (see
// DESIGN.md), so the idiomatic Go realization keeps the single-ownership
// invariant — exactly one goroutine ever touches router/FSM state — but
// gets I/O readiness the way every other goroutine in this corpus does:
// a dedicated reader goroutine blocks in a syscall and hands the result to
// the owning goroutine over a channel. Submit is that handoff; Schedule is
// the timer half of the same contract.
package executor

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// maxPollInterval bounds how long a single iteration of Run may block
// without re-checking timers, guaranteeing liveness for logic that
// registers no timer of its own (spec.md §4.2).
const maxPollInterval = time.Second

// Executor is a single-threaded cooperative scheduler with timers and
// submitted-callback dispatch. The zero value is not usable; use New.
type Executor struct {
	workCh chan func()
	timers timerHeap
	seq    uint64
	mu     sync.Mutex // protects timers/seq only; never held while running a callback
}

// New creates an Executor. Run must be called (typically in its own
// goroutine) to actually process submitted work and timers.
func New() *Executor {
	return &Executor{
		workCh: make(chan func(), 256),
	}
}

// Submit enqueues f to run on the executor's goroutine. Safe to call from
// any goroutine, including the executor's own callbacks. Submit never
// blocks the caller on callback execution; f runs asynchronously.
func (e *Executor) Submit(f func()) {
	e.workCh <- f
}

// CancelFunc, when called, prevents a previously-scheduled timer callback
// from firing if it has not yet fired. It is idempotent and safe to call
// from any goroutine. A callback already dispatched to run is unaffected.
type CancelFunc func()

// Schedule arms f to run at or after deadline, on the executor's goroutine.
// Callbacks scheduled for the same deadline run in registration order
// (spec.md §4.2's ordering guarantee). The returned CancelFunc drops the
// callback if invoked before it fires.
func (e *Executor) Schedule(deadline time.Time, f func()) CancelFunc {
	item := &timerItem{deadline: deadline, fn: f}

	e.mu.Lock()
	item.seq = e.seq
	e.seq++
	heap.Push(&e.timers, item)
	e.mu.Unlock()

	return func() {
		atomic.StoreInt32(&item.cancelled, 1)
	}
}

type timerItem struct {
	deadline  time.Time
	seq       uint64
	fn        func()
	cancelled int32
	index     int
}

type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// spinOnce dispatches every time-based callback whose deadline has
// elapsed, in deadline then registration order, and returns the next
// scheduled deadline (zero Time if none remain).
func (e *Executor) spinOnce(now time.Time) time.Time {
	for {
		e.mu.Lock()
		if e.timers.Len() == 0 {
			e.mu.Unlock()
			return time.Time{}
		}
		next := e.timers[0]
		if next.deadline.After(now) {
			deadline := next.deadline
			e.mu.Unlock()
			return deadline
		}
		heap.Pop(&e.timers)
		e.mu.Unlock()

		if atomic.LoadInt32(&next.cancelled) == 0 {
			next.fn()
		}
	}
}

// Run drives the executor until ctx is cancelled: it dispatches due timers
// via spinOnce, then blocks for at most maxPollInterval (or until the
// next deadline, whichever is sooner) waiting for submitted work.
func (e *Executor) Run(ctx context.Context) {
	for {
		next := e.spinOnce(time.Now())

		timeout := maxPollInterval
		if !next.IsZero() {
			if d := time.Until(next); d < timeout {
				if d < 0 {
					d = 0
				}
				timeout = d
			}
		}

		timer := time.NewTimer(timeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case f := <-e.workCh:
			timer.Stop()
			f()
		case <-timer.C:
		}
	}
}
