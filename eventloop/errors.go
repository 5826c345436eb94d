package eventloop

import (
	"errors"
)

var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	// Promises created via [NewPromise] that are still pending when the loop
	// terminates are failed with this error.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrLoopShuttingDown indicates the loop has begun graceful shutdown, and
	// is no longer accepting registrations or scheduled tasks.
	ErrLoopShuttingDown = errors.New("eventloop: loop is shutting down")

	// ErrGroupShuttingDown is returned by [Group.Next] when there is no live
	// loop to select.
	ErrGroupShuttingDown = errors.New("eventloop: group is shutting down")

	// ErrAlreadyRegistered indicates a channel is registered, or is bound to
	// a different loop.
	ErrAlreadyRegistered = errors.New("eventloop: channel already registered")

	// ErrNotRegistered indicates a channel is not registered.
	ErrNotRegistered = errors.New("eventloop: channel not registered")

	// ErrNotInEventLoop is returned by operations that must be performed on
	// the goroutine of the channel's loop.
	ErrNotInEventLoop = errors.New("eventloop: not in event loop")

	// ErrWrongEventLoop indicates a channel is bound to a different loop.
	ErrWrongEventLoop = errors.New("eventloop: channel bound to a different loop")

	// ErrNilChannel is returned when registering a nil channel.
	ErrNilChannel = errors.New("eventloop: nil channel")

	// ErrNilTask is returned when submitting a nil task.
	ErrNilTask = errors.New("eventloop: nil task")
)
