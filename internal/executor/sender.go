package executor

import (
	"context"
	"sync"
)

// Sender is the SDK-side one-shot asynchronous result carrier of spec.md
// §4.7: it resolves exactly once, and Submit hands the resolved value to a
// callback exactly once (immediately, if already resolved by the time
// Submit is called). It gives the SDK the same one-shot-completion shape
// share.ShutdownHelper gives chisel's connection objects in the teacher
// repo (a done chan plus registered waiters), adapted here to carry a
// typed value instead of a completion error.
type Sender[T any] struct {
	mu      sync.Mutex
	done    bool
	value   T
	doneCh  chan struct{}
	waiters []func(T)
}

// NewSender creates an unresolved Sender.
func NewSender[T any]() *Sender[T] {
	return &Sender[T]{doneCh: make(chan struct{})}
}

// Resolve completes the Sender with value, waking SyncWait and running any
// callbacks registered via Submit. Calling Resolve more than once panics,
// mirroring the "completes exactly once" contract.
func (s *Sender[T]) Resolve(value T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		panic("executor: Sender resolved more than once")
	}
	s.value = value
	s.done = true
	waiters := s.waiters
	s.waiters = nil
	close(s.doneCh)
	s.mu.Unlock()

	for _, w := range waiters {
		w(value)
	}
}

// Submit runs f with the resolved value, exactly once. If the Sender has
// already resolved, f runs synchronously on the calling goroutine;
// otherwise it runs on whatever goroutine calls Resolve.
func (s *Sender[T]) Submit(f func(T)) {
	s.mu.Lock()
	if s.done {
		value := s.value
		s.mu.Unlock()
		f(value)
		return
	}
	s.waiters = append(s.waiters, f)
	s.mu.Unlock()
}

// Done returns a channel closed once the Sender resolves, for use in
// select statements alongside context cancellation.
func (s *Sender[T]) Done() <-chan struct{} {
	return s.doneCh
}

// SyncWait blocks until sender resolves (or ctx is done),
// then returns the resolved value by move, as spec.md §4.7 describes.
// It must not be called from the executor's own goroutine, since it blocks
// the calling goroutine while the executor continues running elsewhere.
func SyncWait[T any](ctx context.Context, sender *Sender[T]) (T, error) {
	select {
	case <-sender.Done():
		var result T
		sender.Submit(func(v T) { result = v })
		return result, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
