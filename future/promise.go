package future

import (
	"context"
	"sync"
)

type promiseState uint8

const (
	statePending promiseState = iota
	// pending, but may no longer be cancelled
	stateUncancellable
	stateSucceeded
	stateFailed
)

// Promise is the writable counterpart of a [Future]. The zero value is not
// usable, use [New].
type Promise[V any] struct {
	executor  Executor
	value     V
	cause     error
	done      chan struct{}
	listeners []func(Future[V])
	mu        sync.Mutex
	state     promiseState
	cancelled bool
	notifying bool
}

var _ Future[struct{}] = (*Promise[struct{}])(nil)

// New returns a pending promise. The executor may be nil, in which case
// blocking waits are never rejected as deadlocks.
func New[V any](executor Executor) *Promise[V] {
	return &Promise[V]{
		executor: executor,
		done:     make(chan struct{}),
	}
}

// Succeeded returns a future that has already succeeded with value.
func Succeeded[V any](executor Executor, value V) *Promise[V] {
	p := New[V](executor)
	_ = p.SetSuccess(value)
	return p
}

// Failed returns a future that has already failed with cause, which must
// not be nil.
func Failed[V any](executor Executor, cause error) *Promise[V] {
	if cause == nil {
		panic(ErrNilCause)
	}
	p := New[V](executor)
	_ = p.SetFailure(cause)
	return p
}

// SetSuccess settles the promise with value, then notifies all listeners,
// on the calling goroutine. Returns [ErrAlreadyCompleted] if the promise has
// already settled.
func (x *Promise[V]) SetSuccess(value V) error {
	x.mu.Lock()
	if x.state >= stateSucceeded {
		x.mu.Unlock()
		return ErrAlreadyCompleted
	}
	x.value = value
	x.state = stateSucceeded
	x.complete()
	return nil
}

// SetFailure settles the promise with cause, then notifies all listeners, on
// the calling goroutine. Returns [ErrAlreadyCompleted] if the promise has
// already settled, or [ErrNilCause] if cause is nil.
func (x *Promise[V]) SetFailure(cause error) error {
	if cause == nil {
		return ErrNilCause
	}
	x.mu.Lock()
	if x.state >= stateSucceeded {
		x.mu.Unlock()
		return ErrAlreadyCompleted
	}
	x.cause = cause
	x.state = stateFailed
	x.complete()
	return nil
}

// SetUncancellable prevents subsequent cancellation. Returns true if the
// promise is pending or succeeded, or false if it has been cancelled.
func (x *Promise[V]) SetUncancellable() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	switch x.state {
	case statePending:
		x.state = stateUncancellable
		return true
	case stateUncancellable:
		return true
	default:
		return !x.cancelled
	}
}

// Cancel implements [Future].
func (x *Promise[V]) Cancel() bool {
	x.mu.Lock()
	if x.state != statePending {
		x.mu.Unlock()
		return false
	}
	x.cause = ErrCancelled
	x.cancelled = true
	x.state = stateFailed
	x.complete()
	return true
}

// complete must be called with mu held, after the transition to a terminal
// state, and releases it.
func (x *Promise[V]) complete() {
	close(x.done)
	x.notifying = true
	for {
		listeners := x.listeners
		x.listeners = nil
		if len(listeners) == 0 {
			x.notifying = false
			x.mu.Unlock()
			return
		}
		x.mu.Unlock()
		for _, listener := range listeners {
			x.invoke(listener)
		}
		x.mu.Lock()
	}
}

func (x *Promise[V]) invoke(listener func(Future[V])) {
	defer func() {
		if r := recover(); r != nil {
			reportListenerPanic(x.executor, r)
		}
	}()
	listener(x)
}

// AddListener implements [Future].
func (x *Promise[V]) AddListener(listener func(f Future[V])) {
	if listener == nil {
		return
	}
	x.mu.Lock()
	if x.state >= stateSucceeded && !x.notifying {
		x.mu.Unlock()
		x.invoke(listener)
		return
	}
	// queued listeners added during notification run on the notifying
	// goroutine, after those already queued
	x.listeners = append(x.listeners, listener)
	x.mu.Unlock()
}

// IsDone implements [Future].
func (x *Promise[V]) IsDone() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state >= stateSucceeded
}

// IsSuccess implements [Future].
func (x *Promise[V]) IsSuccess() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state == stateSucceeded
}

// IsCancelled implements [Future].
func (x *Promise[V]) IsCancelled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancelled
}

// IsCancellable implements [Future].
func (x *Promise[V]) IsCancellable() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state == statePending
}

// Cause implements [Future].
func (x *Promise[V]) Cause() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cause
}

// Value implements [Future].
func (x *Promise[V]) Value() V {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.value
}

// Done implements [Future].
func (x *Promise[V]) Done() <-chan struct{} { return x.done }

// Executor implements [Future].
func (x *Promise[V]) Executor() Executor { return x.executor }

// Await implements [Future].
func (x *Promise[V]) Await(ctx context.Context) error {
	select {
	case <-x.done:
		return nil
	default:
	}
	if x.executor != nil && x.executor.InEventLoop() {
		return ErrDeadlock
	}
	select {
	case <-x.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync implements [Future].
func (x *Promise[V]) Sync(ctx context.Context) error {
	if err := x.Await(ctx); err != nil {
		return err
	}
	return x.Cause()
}

// Get implements [Future].
func (x *Promise[V]) Get(ctx context.Context) (V, error) {
	if err := x.Sync(ctx); err != nil {
		var zero V
		return zero, err
	}
	return x.Value(), nil
}
