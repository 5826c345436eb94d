package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
//	StateAwake       → StateRunning      [Run]
//	StateAwake       → StateTerminated   [ShutdownGracefully before Run]
//	StateRunning     ⇄ StateSleeping     [poll, via CAS]
//	StateRunning     → StateTerminating  [ShutdownGracefully]
//	StateSleeping    → StateTerminating  [ShutdownGracefully]
//	StateTerminating → StateTerminated   [quiet period or timeout elapsed]
//
// Temporary states (Running, Sleeping) must only be entered via CAS. The
// terminal state is stored directly.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has been stopped and is fully shut down.
	StateTerminated LoopState = 1
	// StateSleeping indicates the loop is blocked in poll waiting for events.
	StateSleeping LoopState = 2
	// StateRunning indicates the loop is actively processing tasks.
	StateRunning LoopState = 3
	// StateTerminating indicates graceful shutdown is in progress.
	StateTerminating LoopState = 4
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine, padded to its own cache line, as
// it is read by every submitting goroutine.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused
	v atomic.Uint64
	_ [sizeOfCacheLine - 8]byte //nolint:unused
}

const sizeOfCacheLine = 64

func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store must only be used for StateTerminated.
func (s *fastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsShuttingDown returns true once shutdown has begun.
func (s *fastState) IsShuttingDown() bool {
	state := s.Load()
	return state == StateTerminating || state == StateTerminated
}
