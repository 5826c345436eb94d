package eventloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-transport/future"
	"github.com/joeycumines/go-transport/logging"
	"golang.org/x/sync/errgroup"
)

// Group is a fixed pool of running loops, which channels and tasks are
// assigned to, by a [Chooser].
type Group struct {
	loops              []*Loop
	chooser            Chooser
	logger             *logging.Logger
	terminationPromise *future.Promise[struct{}]
	remaining          atomic.Int64
}

var _ future.Executor = (*Group)(nil)

// NewGroup creates and starts the loops of a group, each on its own
// goroutine.
func NewGroup(opts ...GroupOption) (*Group, error) {
	options, err := resolveGroupOptions(opts)
	if err != nil {
		return nil, err
	}

	g := &Group{
		loops:  make([]*Loop, 0, options.loops),
		logger: options.logger,
	}

	for i := 0; i < options.loops; i++ {
		loopOpts := make([]LoopOption, 0, len(options.loopOptions)+1)
		loopOpts = append(loopOpts, WithLogger(g.logger.Clone().Int(`loop`, i).Logger()))
		loopOpts = append(loopOpts, options.loopOptions...)
		l, err := New(loopOpts...)
		if err != nil {
			for _, l := range g.loops {
				l.ShutdownGracefully(0, 0)
			}
			return nil, err
		}
		g.loops = append(g.loops, l)
	}

	g.chooser = options.chooser(g.loops)

	g.terminationPromise = future.New[struct{}](g)
	g.remaining.Store(int64(len(g.loops)))
	for _, l := range g.loops {
		l.TerminationFuture().AddListener(func(future.Future[struct{}]) {
			if g.remaining.Add(-1) == 0 {
				_ = g.terminationPromise.SetSuccess(struct{}{})
			}
		})
	}

	for i, l := range g.loops {
		go func() {
			if err := l.Run(context.Background()); err != nil {
				g.logger.Err().
					Err(err).
					Int(`loop`, i).
					Log(`eventloop: loop exited with error`)
			}
		}()
	}

	g.logger.Debug().
		Int(`loops`, len(g.loops)).
		Log(`eventloop: group started`)

	return g, nil
}

// Next selects a loop using the group's [Chooser], never returning one
// that is shutting down. If the chooser keeps picking dead loops, the first
// live loop is used. Returns [ErrGroupShuttingDown] if there is none.
func (g *Group) Next() (*Loop, error) {
	for range g.loops {
		if l := g.chooser.Next(); l != nil && !l.IsShuttingDown() {
			return l, nil
		}
	}
	for _, l := range g.loops {
		if !l.IsShuttingDown() {
			return l, nil
		}
	}
	return nil, ErrGroupShuttingDown
}

// Register registers ch with the next loop, see [Loop.Register].
func (g *Group) Register(ch Channel) future.Future[Channel] {
	return g.RegisterWithPromise(ch, nil)
}

// RegisterWithPromise registers ch with the next loop, see
// [Loop.RegisterWithPromise].
func (g *Group) RegisterWithPromise(ch Channel, promise *future.Promise[Channel]) *future.Promise[Channel] {
	l, err := g.Next()
	if err != nil {
		if promise == nil {
			promise = future.New[Channel](g)
		}
		_ = promise.SetFailure(err)
		return promise
	}
	return l.RegisterWithPromise(ch, promise)
}

// Execute runs task on the next loop, see [Loop.Execute].
func (g *Group) Execute(task func()) error {
	l, err := g.Next()
	if err != nil {
		return err
	}
	return l.Execute(task)
}

// Schedule runs task on the next loop after delay, see [Loop.Schedule].
func (g *Group) Schedule(task func(), delay time.Duration) future.Future[struct{}] {
	l, err := g.Next()
	if err != nil {
		return future.Failed[struct{}](g, err)
	}
	return l.Schedule(task, delay)
}

// ShutdownGracefully shuts down every loop, see [Loop.ShutdownGracefully],
// returning a future that settles once all have terminated.
func (g *Group) ShutdownGracefully(quietPeriod, timeout time.Duration) future.Future[struct{}] {
	for _, l := range g.loops {
		l.ShutdownGracefully(quietPeriod, timeout)
	}
	return g.terminationPromise
}

// Shutdown gracefully shuts down every loop, using the default quiet
// period and timeout, waiting until all have terminated, or ctx is done.
func (g *Group) Shutdown(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, l := range g.loops {
		eg.Go(func() error {
			return l.ShutdownGracefully(DefaultShutdownQuietPeriod, DefaultShutdownTimeout).Await(egCtx)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return g.terminationPromise.Await(ctx)
}

// Close initiates an immediate shutdown of every loop, without waiting.
func (g *Group) Close() error {
	g.ShutdownGracefully(0, 0)
	return nil
}

// TerminationFuture returns a future that succeeds once every loop has
// terminated.
func (g *Group) TerminationFuture() future.Future[struct{}] {
	return g.terminationPromise
}

// IsShuttingDown returns true once every loop is shutting down.
func (g *Group) IsShuttingDown() bool {
	for _, l := range g.loops {
		if !l.IsShuttingDown() {
			return false
		}
	}
	return true
}

// IsTerminated returns true once every loop has terminated.
func (g *Group) IsTerminated() bool {
	for _, l := range g.loops {
		if !l.IsTerminated() {
			return false
		}
	}
	return true
}

// Loops returns the loops of the group, in order.
func (g *Group) Loops() []*Loop {
	return append([]*Loop(nil), g.loops...)
}

// InEventLoop returns true if called from the goroutine of any loop in
// the group.
func (g *Group) InEventLoop() bool {
	id := getGoroutineID()
	for _, l := range g.loops {
		if l.loopGoroutineID.Load() == id {
			return true
		}
	}
	return false
}

// Logger returns the logger of the group, which may be nil.
func (g *Group) Logger() *logging.Logger {
	return g.logger
}
