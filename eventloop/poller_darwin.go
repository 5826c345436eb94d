//go:build darwin

package eventloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// poller is the kqueue backed readiness multiplexer of a single loop. Read
// and write interest are separate kqueue filters.
type poller struct {
	table  fdTable
	closed atomic.Bool
	kq     int
	ready  [256]unix.Kevent_t
}

func (p *poller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

// Close releases the kqueue. Registered fds are not closed.
func (p *poller) Close() error {
	if p.closed.Swap(true) || p.kq <= 0 {
		return nil
	}
	return unix.Close(p.kq)
}

func (p *poller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.table.insert(fd, events, cb); err != nil {
		return err
	}
	if err := p.apply(fd, events, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		_, _ = p.table.remove(fd)
		return err
	}
	return nil
}

// UnregisterFD stops delivery for fd. Closing an fd removes its filters, so
// failures deleting them are ignored.
func (p *poller) UnregisterFD(fd int) error {
	events, err := p.table.remove(fd)
	if err != nil {
		return err
	}
	_ = p.apply(fd, events, unix.EV_DELETE)
	return nil
}

func (p *poller) ModifyFD(fd int, events IOEvents) error {
	old, err := p.table.swapEvents(fd, events)
	if err != nil {
		return err
	}
	_ = p.apply(fd, old&^events, unix.EV_DELETE)
	if err := p.apply(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		// the removed filters stay removed
		_, _ = p.table.swapEvents(fd, old&events)
		return err
	}
	return nil
}

func (p *poller) apply(fd int, events IOEvents, flags uint16) error {
	var changes [2]unix.Kevent_t
	n := 0
	if events&EventRead != 0 {
		changes[n] = unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags}
		n++
	}
	if events&EventWrite != 0 {
		changes[n] = unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags}
		n++
	}
	if n == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes[:n], nil, nil)
	return err
}

// PollIO blocks for at most timeoutMs (negative blocks indefinitely), and
// invokes the callback of each ready fd before returning how many were ready.
func (p *poller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	var timeout *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}
	n, err := unix.Kevent(p.kq, nil, p.ready[:], timeout)
	switch {
	case err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, err
	}
	for i := range p.ready[:n] {
		ev := &p.ready[i]
		if cb := p.table.callback(int(ev.Ident)); cb != nil {
			cb(fromKevent(ev))
		}
	}
	return n, nil
}

func fromKevent(ev *unix.Kevent_t) (events IOEvents) {
	switch ev.Filter {
	case unix.EVFILT_READ:
		events = EventRead
	case unix.EVFILT_WRITE:
		events = EventWrite
	}
	if ev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if ev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
