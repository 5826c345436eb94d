//go:build linux

package eventloop

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// poller is the epoll backed readiness multiplexer of a single loop.
type poller struct {
	table  fdTable
	closed atomic.Bool
	epfd   int
	ready  [256]unix.EpollEvent
}

func (p *poller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

// Close releases the epoll instance. Registered fds are not closed.
func (p *poller) Close() error {
	if p.closed.Swap(true) || p.epfd <= 0 {
		return nil
	}
	return unix.Close(p.epfd)
}

func (p *poller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.table.insert(fd, events, cb); err != nil {
		return err
	}
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, events); err != nil {
		_, _ = p.table.remove(fd)
		return err
	}
	return nil
}

// UnregisterFD stops delivery for fd. Safe to call after fd was closed,
// as the kernel will have dropped it already.
func (p *poller) UnregisterFD(fd int) error {
	if _, err := p.table.remove(fd); err != nil {
		return err
	}
	if err := p.ctl(unix.EPOLL_CTL_DEL, fd, 0); err != nil && !errors.Is(err, unix.EBADF) {
		return err
	}
	return nil
}

func (p *poller) ModifyFD(fd int, events IOEvents) error {
	old, err := p.table.swapEvents(fd, events)
	if err != nil {
		return err
	}
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, events); err != nil {
		_, _ = p.table.swapEvents(fd, old)
		return err
	}
	return nil
}

func (p *poller) ctl(op int, fd int, events IOEvents) error {
	var ev *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		ev = &unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	}
	return unix.EpollCtl(p.epfd, op, fd, ev)
}

// PollIO blocks for at most timeoutMs (negative blocks indefinitely), and
// invokes the callback of each ready fd before returning how many were ready.
func (p *poller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.ready[:], timeoutMs)
	switch {
	case err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, err
	}
	for i := range p.ready[:n] {
		ev := &p.ready[i]
		// looked up per event, as an earlier callback may unregister a later fd
		if cb := p.table.callback(int(ev.Fd)); cb != nil {
			cb(fromEpoll(ev.Events))
		}
	}
	return n, nil
}

func toEpoll(events IOEvents) (v uint32) {
	if events&EventRead != 0 {
		v |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		v |= unix.EPOLLOUT
	}
	return v
}

func fromEpoll(v uint32) (events IOEvents) {
	for _, m := range [...]struct {
		mask  uint32
		event IOEvents
	}{
		{unix.EPOLLIN, EventRead},
		{unix.EPOLLOUT, EventWrite},
		{unix.EPOLLERR, EventError},
		{unix.EPOLLHUP | unix.EPOLLRDHUP, EventHangup},
	} {
		if v&m.mask != 0 {
			events |= m.event
		}
	}
	return events
}
