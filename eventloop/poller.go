//go:build linux || darwin

package eventloop

import (
	"errors"
	"sync"
)

// initialFDs is the minimum size of the fd table, which grows on demand.
const initialFDs = 1024

// MaxFDLimit is the largest fd value that may be registered.
const MaxFDLimit = 100000000

// IOEvents is a set of readiness events, for a registered fd.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

func (e IOEvents) String() string {
	if e == 0 {
		return "none"
	}
	var b []byte
	for _, v := range [...]struct {
		event IOEvents
		name  string
	}{
		{EventRead, "read"},
		{EventWrite, "write"},
		{EventError, "error"},
		{EventHangup, "hangup"},
	} {
		if e&v.event == 0 {
			continue
		}
		if len(b) != 0 {
			b = append(b, '|')
		}
		b = append(b, v.name...)
	}
	return string(b)
}

var (
	ErrFDOutOfRange        = errors.New("eventloop: fd out of range")
	ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")
	ErrFDNotRegistered     = errors.New("eventloop: fd not registered")
	ErrPollerClosed        = errors.New("eventloop: poller closed")
)

// IOCallback receives readiness events, on the loop goroutine.
type IOCallback func(IOEvents)

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// fdTable tracks the callback and interest of each registered fd, indexed
// by fd. Mutated on the loop goroutine, but readable from any goroutine.
type fdTable struct {
	mu      sync.RWMutex
	entries []fdInfo
}

func (t *fdTable) insert(fd int, events IOEvents, cb IOCallback) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd >= len(t.entries) {
		size := max(fd*2+1, initialFDs)
		if size > MaxFDLimit {
			size = MaxFDLimit
		}
		entries := make([]fdInfo, size)
		copy(entries, t.entries)
		t.entries = entries
	}
	if t.entries[fd].active {
		return ErrFDAlreadyRegistered
	}
	t.entries[fd] = fdInfo{callback: cb, events: events, active: true}
	return nil
}

// remove clears fd, returning the interest it was registered with.
func (t *fdTable) remove(fd int) (IOEvents, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	t.entries[fd] = fdInfo{}
	return info.events, nil
}

// swapEvents replaces the interest of fd, returning the previous value.
func (t *fdTable) swapEvents(fd int, events IOEvents) (IOEvents, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	t.entries[fd].events = events
	return info.events, nil
}

func (t *fdTable) callback(fd int) IOCallback {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if info, err := t.get(fd); err == nil {
		return info.callback
	}
	return nil
}

func (t *fdTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// get must be called with mu held.
func (t *fdTable) get(fd int) (fdInfo, error) {
	if fd < 0 {
		return fdInfo{}, ErrFDOutOfRange
	}
	if fd >= len(t.entries) || !t.entries[fd].active {
		return fdInfo{}, ErrFDNotRegistered
	}
	return t.entries[fd], nil
}
