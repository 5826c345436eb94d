package eventloop

import (
	"sync/atomic"

	"github.com/joeycumines/go-transport/future"
)

// Channel is a connection, or other fd, that may be registered with a
// [Loop]. Implementations must embed [ChannelBase].
//
// Once registered, HandleIO and ChannelRegistered are only ever called on
// the goroutine of the channel's loop, and the channel stays bound to that
// loop for its lifetime.
type Channel interface {
	// FD returns the file descriptor to multiplex, which must be
	// non-blocking.
	FD() int

	// HandleIO is called with the ready events of the fd, filtered by
	// the channel's interest (see [ChannelBase.SetInterest]), though
	// [EventError] and [EventHangup] may always be reported.
	HandleIO(events IOEvents)

	// ChannelRegistered is called after registration succeeds, after the
	// registration future has settled.
	ChannelRegistered()

	channelBase() *ChannelBase
}

// ChannelBase implements the loop affinity and interest set of a
// [Channel]. The zero value is ready to use, with an interest of
// [EventRead].
type ChannelBase struct {
	loop       atomic.Pointer[Loop]
	interest   atomic.Uint32
	fd         int
	registered atomic.Bool
}

// interestSet marks an explicitly set interest, distinguishing it from the
// zero value.
const interestSet = 1 << 31

// EventLoop returns the loop the channel is bound to, or nil.
func (x *ChannelBase) EventLoop() *Loop {
	return x.loop.Load()
}

// IsRegistered returns true while the channel is registered.
func (x *ChannelBase) IsRegistered() bool {
	return x.registered.Load()
}

// Interest returns the events the channel is notified of.
func (x *ChannelBase) Interest() IOEvents {
	v := x.interest.Load()
	if v&interestSet == 0 {
		return EventRead
	}
	return IOEvents(v &^ interestSet)
}

// SetInterest sets the events the channel is notified of. Once registered,
// it must be called on the goroutine of the channel's loop, or it will fail
// with [ErrNotInEventLoop].
func (x *ChannelBase) SetInterest(events IOEvents) error {
	events &= EventRead | EventWrite
	if !x.registered.Load() {
		x.interest.Store(uint32(events) | interestSet)
		return nil
	}
	loop := x.loop.Load()
	if !loop.InEventLoop() {
		return ErrNotInEventLoop
	}
	if err := loop.poller.ModifyFD(x.fd, events); err != nil {
		return err
	}
	x.interest.Store(uint32(events) | interestSet)
	return nil
}

// ChannelRegistered implements [Channel] as a no-op.
func (x *ChannelBase) ChannelRegistered() {}

func (x *ChannelBase) channelBase() *ChannelBase { return x }

// Register binds ch to the loop, returning a future that settles once it
// has been registered with the multiplexer, on the loop goroutine. The
// binding is permanent, and only made if registration succeeds. Fails with
// [ErrLoopShuttingDown] once shutdown has begun, and with
// [ErrAlreadyRegistered] if ch is registered, or bound to another loop.
func (l *Loop) Register(ch Channel) future.Future[Channel] {
	return l.RegisterWithPromise(ch, nil)
}

// RegisterWithPromise is [Loop.Register], but settles and returns promise,
// which may be nil, in which case a new promise is used.
func (l *Loop) RegisterWithPromise(ch Channel, promise *future.Promise[Channel]) *future.Promise[Channel] {
	if promise == nil {
		promise = future.New[Channel](l)
	}
	if ch == nil {
		_ = promise.SetFailure(ErrNilChannel)
		return promise
	}
	if l.state.IsShuttingDown() {
		_ = promise.SetFailure(ErrLoopShuttingDown)
		return promise
	}
	if err := l.Execute(func() { l.register0(ch, promise) }); err != nil {
		_ = promise.SetFailure(err)
	}
	return promise
}

func (l *Loop) register0(ch Channel, promise *future.Promise[Channel]) {
	if !promise.SetUncancellable() {
		return
	}
	if l.state.IsShuttingDown() {
		_ = promise.SetFailure(ErrLoopShuttingDown)
		return
	}

	base := ch.channelBase()
	claimed := base.loop.CompareAndSwap(nil, l)
	if !claimed && (base.loop.Load() != l || base.registered.Load()) {
		_ = promise.SetFailure(ErrAlreadyRegistered)
		return
	}

	fd := ch.FD()
	if err := l.poller.RegisterFD(fd, base.Interest(), func(events IOEvents) {
		l.handleIO(ch, events)
	}); err != nil {
		if claimed {
			base.loop.Store(nil)
		}
		_ = promise.SetFailure(err)
		return
	}
	base.fd = fd
	base.registered.Store(true)
	l.channels.Add(1)

	_ = promise.SetSuccess(ch)
	l.safeExecute(ch.ChannelRegistered)
}

func (l *Loop) handleIO(ch Channel, events IOEvents) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Err(future.PanicError{Value: r}).
				Int(`fd`, ch.FD()).
				Stringer(`events`, events).
				Log(`eventloop: channel I/O callback panicked`)
		}
	}()
	ch.HandleIO(events)
}

// Deregister removes ch from the multiplexer of the loop it is bound to,
// returning a future that settles on the loop goroutine. The channel stays
// bound to the loop, and may only be registered with it again.
func (l *Loop) Deregister(ch Channel) future.Future[struct{}] {
	if ch == nil {
		return future.Failed[struct{}](l, ErrNilChannel)
	}
	if ch.channelBase().loop.Load() != l {
		return future.Failed[struct{}](l, ErrWrongEventLoop)
	}
	promise := NewPromise[struct{}](l)
	if err := l.Execute(func() {
		base := ch.channelBase()
		if !base.registered.Load() {
			_ = promise.SetFailure(ErrNotRegistered)
			return
		}
		if err := l.poller.UnregisterFD(base.fd); err != nil {
			_ = promise.SetFailure(err)
			return
		}
		base.registered.Store(false)
		l.channels.Add(-1)
		_ = promise.SetSuccess(struct{}{})
	}); err != nil {
		_ = promise.SetFailure(err)
	}
	return promise
}
