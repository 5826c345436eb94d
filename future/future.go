// Package future implements a listenable, single-assignment completion cell.
//
// A [Promise] is settled exactly once, with either a value or a failure
// cause. Any number of goroutines may observe the outcome via the read-only
// [Future] view, by blocking (see [Future.Await]), by selecting on
// [Future.Done], or by registering listeners.
//
// Listeners are invoked in the order they were added. A listener added
// before settlement runs on the goroutine that settles the promise, after
// the state has transitioned. A listener added after settlement runs
// immediately, on the goroutine adding it. A panicking listener does not
// prevent the remaining listeners from running; the panic is recovered and
// reported to a logger, and is never propagated to the settling goroutine.
//
// A second settlement attempt is always rejected, with [ErrAlreadyCompleted].
package future

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCompleted is returned by attempts to settle a promise that
	// has already been settled. The original outcome is retained.
	ErrAlreadyCompleted = errors.New("future: already completed")

	// ErrDeadlock is returned by blocking waits made from the event loop
	// responsible for settling the future, which would otherwise never
	// return.
	ErrDeadlock = errors.New("future: blocking wait from the executor responsible for completion")

	// ErrCancelled is the cause of a cancelled future.
	ErrCancelled = errors.New("future: cancelled")

	// ErrNilCause is returned by [Promise.SetFailure] given a nil error.
	ErrNilCause = errors.New("future: nil failure cause")
)

type (
	// Executor is the event loop associated with a future, typically the one
	// that will settle it. It is used to detect blocking waits that would
	// deadlock.
	Executor interface {
		// InEventLoop returns true if the caller is running on the
		// executor's own goroutine.
		InEventLoop() bool
	}

	// Future is the read-only view of an eventual outcome.
	Future[V any] interface {
		// IsDone returns true once the future has settled, in any way.
		IsDone() bool

		// IsSuccess returns true if the future settled with a value.
		IsSuccess() bool

		// IsCancelled returns true if the future was cancelled. Cancelled
		// futures are also done, with an [ErrCancelled] cause.
		IsCancelled() bool

		// IsCancellable returns true if [Future.Cancel] may still succeed.
		IsCancellable() bool

		// Cause returns the failure cause, or nil if pending or successful.
		Cause() error

		// Value returns the value, which is the zero value unless the future
		// settled successfully. It never blocks.
		Value() V

		// Done returns a channel that is closed once the future settles.
		Done() <-chan struct{}

		// AddListener registers a callback to be notified on settlement.
		// See the package documentation for the threading and ordering
		// guarantees. A nil listener is ignored.
		AddListener(listener func(f Future[V]))

		// Await blocks until the future settles, or ctx is done. It does not
		// report the failure cause (see [Future.Sync]). Fails fast with
		// [ErrDeadlock] if called, while pending, from the goroutine of the
		// future's [Executor].
		Await(ctx context.Context) error

		// Sync is like [Future.Await], but returns the failure cause, if the
		// future failed.
		Sync(ctx context.Context) error

		// Get is like [Future.Sync], but also returns the value.
		Get(ctx context.Context) (V, error)

		// Cancel attempts to fail the future with [ErrCancelled], returning
		// true if successful. It fails if the future has already settled,
		// or has been marked as uncancellable.
		Cancel() bool

		// Executor returns the associated executor, which may be nil.
		Executor() Executor
	}

	// PanicError wraps a value recovered from a panic, e.g. within a task
	// run by an event loop, which is then used to fail a future.
	PanicError struct {
		Value any
	}
)

func (e PanicError) Error() string {
	return fmt.Sprintf("future: recovered panic: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
