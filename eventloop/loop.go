package eventloop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/go-transport/future"
	"github.com/joeycumines/go-transport/logging"
	"golang.org/x/sys/unix"
)

const (
	// maxInlineDepth bounds recursion of Execute called from the loop
	// goroutine, past which tasks are queued.
	maxInlineDepth = 8

	// terminatingPollMs bounds each poll while draining, as submitters do
	// not wake a terminating loop.
	terminatingPollMs = 10

	// shutdownGrace is added to the shutdown timeout before a loop stuck in
	// a task is forcibly terminated.
	shutdownGrace = time.Second

	maxBatchSize = 128
)

// Loop is a single goroutine, locked to an OS thread, that multiplexes
// I/O readiness for its registered channels, and runs queued and scheduled
// tasks. Every I/O callback and task of a loop runs on that goroutine.
//
// A Loop implements [future.Executor], and the futures it creates reject
// blocking waits from the loop goroutine, with [future.ErrDeadlock].
type Loop struct { // betteralign:ignore
	state fastState

	poller poller
	tasks  taskQueue
	timers timerHeap

	registry           *registry
	logger             *logging.Logger
	terminationPromise *future.Promise[struct{}]
	loopDone           chan struct{}
	batch              []func()

	// owned by the loop goroutine
	lastExecution time.Time
	shutdownStart time.Time
	batchPending  int
	inlineDepth   int

	taskBudget    int
	maxBlockTime  time.Duration
	wakePipe      int
	wakePipeWrite int
	wakeBuf       [8]byte

	quietPeriod     atomic.Int64
	shutdownTimeout atomic.Int64
	loopGoroutineID atomic.Uint64
	inflight        atomic.Int64
	timerSeq        atomic.Uint64
	channels        atomic.Int64
	wakePending     atomic.Uint32
	watchdog        atomic.Pointer[time.Timer]

	shutdownMu sync.Mutex
}

var _ future.Executor = (*Loop)(nil)

// New creates a new loop, which must be started with [Loop.Run]. Tasks
// may be submitted before it is started.
func New(opts ...LoopOption) (*Loop, error) {
	options, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFD, wakeWriteFD, err := createWakeFD()
	if err != nil {
		return nil, err
	}
	closeWake := func() {
		_ = unix.Close(wakeFD)
		if wakeWriteFD != wakeFD {
			_ = unix.Close(wakeWriteFD)
		}
	}

	l := &Loop{
		registry:      newRegistry(),
		logger:        options.logger,
		loopDone:      make(chan struct{}),
		batch:         make([]func(), min(options.taskBudget, maxBatchSize)),
		taskBudget:    options.taskBudget,
		maxBlockTime:  options.maxBlockTime,
		wakePipe:      wakeFD,
		wakePipeWrite: wakeWriteFD,
	}
	l.terminationPromise = future.New[struct{}](l)

	if err := l.poller.Init(); err != nil {
		closeWake()
		return nil, err
	}
	if err := l.poller.RegisterFD(wakeFD, EventRead, func(IOEvents) {
		l.drainWakeUpPipe()
	}); err != nil {
		_ = l.poller.Close()
		closeWake()
		return nil, err
	}

	return l, nil
}

// Run runs the loop on the calling goroutine, blocking until it terminates.
// Cancelling ctx initiates an immediate graceful shutdown, in which case
// ctx.Err() is returned.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.IsShuttingDown() {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	ctxDone := make(chan struct{})
	defer close(ctxDone)
	go func() {
		select {
		case <-ctx.Done():
			l.ShutdownGracefully(0, 0)
		case <-ctxDone:
		}
	}()

	l.run()

	return ctx.Err()
}

func (l *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	l.logger.Debug().Log(`eventloop: loop started`)

	for {
		l.tick()
		switch l.state.Load() {
		case StateTerminating:
			if l.confirmShutdown() {
				l.terminate()
				return
			}
		case StateTerminated:
			// forced by the watchdog
			l.terminate()
			return
		}
	}
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.poll()
	l.runTimers()
	l.runTasks(l.taskBudget)
}

func (l *Loop) poll() {
	switch l.state.Load() {
	case StateRunning:
		if !l.state.TryTransition(StateRunning, StateSleeping) {
			return
		}
		// re-check, after advertising sleep, see Execute
		timeout := 0
		if l.tasks.Len() == 0 {
			timeout = l.calculateTimeout()
		}
		l.pollIO(timeout)
		l.state.TryTransition(StateSleeping, StateRunning)

	case StateTerminating:
		timeout := 0
		if l.tasks.Len() == 0 {
			timeout = min(l.calculateTimeout(), terminatingPollMs)
		}
		l.pollIO(timeout)
	}
}

func (l *Loop) pollIO(timeoutMs int) {
	if _, err := l.poller.PollIO(timeoutMs); err != nil {
		l.logger.Crit().
			Err(err).
			Log(`eventloop: poll failed, terminating loop`)
		l.ShutdownGracefully(0, 0)
	}
}

// calculateTimeout determines how long to block in poll.
func (l *Loop) calculateTimeout() int {
	maxDelay := l.maxBlockTime

	if t := l.timers.peek(); t != nil {
		delay := time.Until(t.when)
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}

	// round sub-millisecond delays up, to avoid spinning
	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}

	return int(maxDelay.Milliseconds())
}

// runTasks runs up to budget queued tasks, in FIFO order, returning the
// number run.
func (l *Loop) runTasks(budget int) int {
	var total int
	for total < budget {
		n := l.tasks.PopBatch(l.batch[:min(len(l.batch), budget-total)])
		if n == 0 {
			break
		}
		l.lastExecution = time.Now()
		l.batchPending = n
		for i := 0; i < n; i++ {
			task := l.batch[i]
			l.batch[i] = nil
			l.batchPending--
			l.safeExecute(task)
		}
		total += n
	}
	return total
}

// Execute runs task on the loop goroutine. Tasks run in submission order.
// If called from the loop goroutine, with nothing queued, the task may run
// immediately, before Execute returns.
//
// Returns [ErrLoopTerminated] if the loop has terminated. Tasks are still
// accepted while the loop is shutting down.
func (l *Loop) Execute(task func()) error {
	if task == nil {
		return ErrNilTask
	}

	if l.isLoopThread() {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		if l.batchPending == 0 && l.inlineDepth < maxInlineDepth && l.tasks.Len() == 0 {
			l.inlineDepth++
			l.lastExecution = time.Now()
			l.safeExecute(task)
			l.inlineDepth--
			return nil
		}
		l.tasks.Push(task)
		return nil
	}

	// counted first, see terminate
	l.inflight.Add(1)
	defer l.inflight.Add(-1)

	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}

	l.tasks.Push(task)

	if l.state.Load() == StateSleeping && l.wakePending.CompareAndSwap(0, 1) {
		if err := l.submitWakeup(); err != nil {
			// the task is queued, and will be drained
			l.wakePending.Store(0)
		}
	}

	return nil
}

// drainWakeUpPipe drains the wake-up fd.
func (l *Loop) drainWakeUpPipe() {
	for {
		if _, err := unix.Read(l.wakePipe, l.wakeBuf[:]); err != nil {
			break
		}
	}
	l.wakePending.Store(0)
}

// submitWakeup writes to the wake-up fd, unless the loop has terminated.
func (l *Loop) submitWakeup() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	// native endianness, as required by eventfd
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(l.wakePipeWrite, buf)
	return err
}

// safeExecute runs fn, returning the recovered value if it panicked.
func (l *Loop) safeExecute(fn func()) (recovered any) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			l.logger.Err().
				Err(future.PanicError{Value: r}).
				Log(`eventloop: task panicked`)
		}
	}()
	fn()
	return nil
}

// InEventLoop returns true if called from the loop goroutine.
func (l *Loop) InEventLoop() bool {
	return l.isLoopThread()
}

func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// Logger returns the logger of the loop, which may be nil.
func (l *Loop) Logger() *logging.Logger {
	return l.logger
}

// State returns the current state of the loop.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// IsShuttingDown returns true once shutdown has begun.
func (l *Loop) IsShuttingDown() bool {
	return l.state.IsShuttingDown()
}

// IsTerminated returns true once the loop has terminated.
func (l *Loop) IsTerminated() bool {
	return l.state.Load() == StateTerminated
}

// ChannelCount returns the number of channels registered with the loop.
func (l *Loop) ChannelCount() int {
	return int(l.channels.Load())
}

// TerminationFuture returns a future that succeeds once the loop has
// terminated.
func (l *Loop) TerminationFuture() future.Future[struct{}] {
	return l.terminationPromise
}

// ShutdownGracefully begins shutdown, returning the termination future.
// The loop stops accepting registrations and scheduled tasks, but keeps
// running queued tasks and dispatching I/O, until no task has run for
// quietPeriod, or until timeout has elapsed. Scheduled tasks that have not
// yet run are cancelled. Subsequent calls have no effect.
//
// If the loop is stuck in a task past timeout (plus a grace period), it is
// forcibly marked terminated, and the termination future settled.
func (l *Loop) ShutdownGracefully(quietPeriod, timeout time.Duration) future.Future[struct{}] {
	if quietPeriod < 0 {
		quietPeriod = 0
	}
	if timeout < quietPeriod {
		timeout = quietPeriod
	}

	if l.state.IsShuttingDown() {
		return l.terminationPromise
	}

	l.shutdownMu.Lock()
	defer l.shutdownMu.Unlock()

	for {
		current := l.state.Load()
		switch current {
		case StateTerminating, StateTerminated:
			return l.terminationPromise

		case StateAwake:
			if l.state.TryTransition(StateAwake, StateTerminating) {
				// never ran, settle any queued work on this goroutine
				l.terminate()
				return l.terminationPromise
			}

		default:
			l.quietPeriod.Store(int64(quietPeriod))
			l.shutdownTimeout.Store(int64(timeout))
			if l.state.TryTransition(current, StateTerminating) {
				if current == StateSleeping {
					_ = l.submitWakeup()
				}
				l.logger.Debug().
					Dur(`quiet_period`, quietPeriod).
					Dur(`timeout`, timeout).
					Log(`eventloop: shutting down`)
				l.watchdog.Store(time.AfterFunc(timeout+shutdownGrace, l.forceTerminate))
				return l.terminationPromise
			}
		}
	}
}

// Shutdown gracefully shuts down the loop, using the default quiet period
// and timeout, waiting until it terminates, or ctx is done.
func (l *Loop) Shutdown(ctx context.Context) error {
	return l.ShutdownGracefully(DefaultShutdownQuietPeriod, DefaultShutdownTimeout).Await(ctx)
}

// Close initiates an immediate shutdown, without waiting for it to
// complete. Returns [ErrLoopTerminated] if the loop has already terminated.
func (l *Loop) Close() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	l.ShutdownGracefully(0, 0)
	return nil
}

// confirmShutdown is called by the loop goroutine while terminating, and
// returns true once the loop may terminate.
func (l *Loop) confirmShutdown() bool {
	now := time.Now()
	if l.shutdownStart.IsZero() {
		l.shutdownStart = now
		l.lastExecution = now
		l.cancelTimers()
	}

	if now.Sub(l.shutdownStart) >= time.Duration(l.shutdownTimeout.Load()) {
		if l.tasks.Len() != 0 || now.Sub(l.lastExecution) < time.Duration(l.quietPeriod.Load()) {
			l.logger.Warning().Log(`eventloop: shutdown timeout elapsed before quiet period`)
		}
		return true
	}

	return l.tasks.Len() == 0 && now.Sub(l.lastExecution) >= time.Duration(l.quietPeriod.Load())
}

// forceTerminate is called by the watchdog, if the loop has not terminated
// in time.
func (l *Loop) forceTerminate() {
	select {
	case <-l.loopDone:
		return
	default:
	}
	l.logger.Warning().Log(`eventloop: loop failed to terminate, forcing termination`)
	l.state.Store(StateTerminated)
	l.registry.RejectAll(ErrLoopTerminated)
	_ = l.terminationPromise.SetSuccess(struct{}{})
}

// terminate drains all remaining tasks, rejects pending promises, and
// releases the loop's resources.
func (l *Loop) terminate() {
	// no Execute may enqueue after this, other than those in flight
	l.state.Store(StateTerminated)

	emptyChecks := 0
	const requiredEmptyChecks = 3
	for emptyChecks < requiredEmptyChecks {
		spinCount := 0
		for l.inflight.Load() > 0 {
			spinCount++
			if spinCount > 1000 {
				time.Sleep(100 * time.Microsecond)
			} else {
				runtime.Gosched()
			}
		}
		if l.runTasks(int(^uint(0)>>1)) != 0 || l.inflight.Load() > 0 {
			emptyChecks = 0
		} else {
			emptyChecks++
			runtime.Gosched()
		}
	}

	l.cancelTimers()
	l.registry.RejectAll(ErrLoopTerminated)
	l.closeFDs()
	l.loopGoroutineID.Store(0)
	if w := l.watchdog.Load(); w != nil {
		w.Stop()
	}

	l.logger.Debug().Log(`eventloop: loop terminated`)

	_ = l.terminationPromise.SetSuccess(struct{}{})
	close(l.loopDone)
}

func (l *Loop) closeFDs() {
	_ = l.poller.Close()
	_ = unix.Close(l.wakePipe)
	if l.wakePipeWrite != l.wakePipe {
		_ = unix.Close(l.wakePipeWrite)
	}
}
