package eventloop

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/joeycumines/go-transport/logging"
)

const (
	// DefaultTaskBudget is the maximum number of queued tasks run per tick,
	// before the loop polls for I/O again.
	DefaultTaskBudget = 1024

	// DefaultMaxBlockTime bounds a single multiplexer wait.
	DefaultMaxBlockTime = 10 * time.Second

	// DefaultShutdownQuietPeriod is used by [Loop.Close] and [Group.Close]
	// callers that don't specify one, see [Loop.ShutdownGracefully].
	DefaultShutdownQuietPeriod = 2 * time.Second

	// DefaultShutdownTimeout is the counterpart of [DefaultShutdownQuietPeriod].
	DefaultShutdownTimeout = 15 * time.Second
)

var errInvalidOption = errors.New("eventloop: invalid option")

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger       *logging.Logger
	taskBudget   int
	maxBlockTime time.Duration
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the logger for loop lifecycle events, panics recovered
// from tasks and callbacks, and listener faults of loop futures. A nil
// logger (the default) disables logging.
func WithLogger(logger *logging.Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTaskBudget limits the number of queued tasks run per tick, so that
// a busy queue cannot starve I/O. Must be positive.
func WithTaskBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: task budget %d", errInvalidOption, n)
		}
		opts.taskBudget = n
		return nil
	}}
}

// WithMaxBlockTime bounds how long the loop blocks in the multiplexer,
// when there are no timers due sooner. Must be positive.
func WithMaxBlockTime(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: max block time %s", errInvalidOption, d)
		}
		opts.maxBlockTime = d
		return nil
	}}
}

func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		taskBudget:   DefaultTaskBudget,
		maxBlockTime: DefaultMaxBlockTime,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Group Options ---

type groupOptions struct {
	logger      *logging.Logger
	chooser     ChooserFactory
	loopOptions []LoopOption
	loops       int
}

// GroupOption configures a Group instance.
type GroupOption interface {
	applyGroup(*groupOptions) error
}

type groupOptionImpl struct {
	applyGroupFunc func(*groupOptions) error
}

func (g *groupOptionImpl) applyGroup(opts *groupOptions) error {
	return g.applyGroupFunc(opts)
}

// WithLoopCount sets the number of loops, which defaults to twice
// runtime.NumCPU(). Must be positive.
func WithLoopCount(n int) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: loop count %d", errInvalidOption, n)
		}
		opts.loops = n
		return nil
	}}
}

// WithChooser sets the loop selection policy, defaulting to [RoundRobin].
func WithChooser(factory ChooserFactory) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		if factory == nil {
			return fmt.Errorf("%w: nil chooser", errInvalidOption)
		}
		opts.chooser = factory
		return nil
	}}
}

// WithLoopOptions sets options applied to every loop of the group. A
// [WithLogger] option here takes precedence over [WithGroupLogger].
func WithLoopOptions(opts ...LoopOption) GroupOption {
	return &groupOptionImpl{func(o *groupOptions) error {
		o.loopOptions = append(o.loopOptions, opts...)
		return nil
	}}
}

// WithGroupLogger sets the logger of the group, which is also the default
// logger of each loop.
func WithGroupLogger(logger *logging.Logger) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveGroupOptions(opts []GroupOption) (*groupOptions, error) {
	cfg := &groupOptions{
		loops:   2 * runtime.NumCPU(),
		chooser: RoundRobin,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyGroup(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
