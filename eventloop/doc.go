// Package eventloop implements single-goroutine I/O event loops, and
// groups of them, that multiplex non-blocking file descriptors for many
// channels, while giving each channel exclusive affinity to one loop.
//
// # Architecture
//
// A [Loop] runs on one goroutine, locked to an OS thread, and repeats:
//  1. Poll the multiplexer, blocking until the next timer is due, or the
//     loop is woken by a submitted task, then dispatch I/O callbacks.
//  2. Run expired scheduled tasks ([Loop.Schedule]), by deadline, then
//     submission order.
//  3. Run queued tasks ([Loop.Execute]), in submission order, up to a
//     per-tick budget.
//
// A [Group] is a fixed pool of running loops. Channels and tasks are
// assigned to a loop by its [Chooser], see [RoundRobin] (the default),
// [LeastConnections] and [Random].
//
// # Platform Support
//
// I/O polling is implemented using platform-native mechanisms:
//   - Linux: epoll, woken via an eventfd
//   - macOS: kqueue, woken via a self-pipe
//
// # Thread Safety
//
// Once a [Channel] is registered ([Loop.Register], [Group.Register]), it is
// bound to that loop, permanently, and its I/O callbacks run only on that
// loop's goroutine. Code touching channel state should therefore run as a
// task of the channel's loop, and needs no locking.
//
// [Loop.Execute], [Loop.Schedule] and the shutdown methods are safe to call
// from any goroutine. Futures created by a loop fail fast with
// [future.ErrDeadlock] when waited on from that loop's own goroutine.
//
// # Shutdown
//
// [Loop.ShutdownGracefully] stops the loop accepting registrations and
// scheduled tasks, then keeps running queued tasks and I/O until no task
// has run for the quiet period, or the timeout elapses. Once terminated,
// remaining tasks are drained, pending promises created by [NewPromise] are
// failed with [ErrLoopTerminated], and the termination future settles.
// [Group.ShutdownGracefully] fans out to every loop, and settles once all
// have terminated.
package eventloop
