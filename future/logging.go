package future

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/joeycumines/go-transport/logging"
)

// LoggerProvider may be implemented by an [Executor], to receive reports of
// listener panics for its futures.
type LoggerProvider interface {
	Logger() *logging.Logger
}

var (
	packageLogger atomic.Pointer[logging.Logger]

	// per sink, so one noisy executor cannot suppress reports for others
	listenerFaults = logging.NewLimiter(nil)
)

// SetLogger sets the logger for listener panics of futures whose executor
// does not provide one (see [LoggerProvider]). May be nil, which is the
// default, and disables such reports.
func SetLogger(logger *logging.Logger) {
	packageLogger.Store(logger)
}

func listenerLogger(executor Executor) *logging.Logger {
	if p, ok := executor.(LoggerProvider); ok {
		if logger := p.Logger(); logger != nil {
			return logger
		}
	}
	return packageLogger.Load()
}

func reportListenerPanic(executor Executor, r any) {
	logger := listenerLogger(executor)
	if logger == nil || !listenerFaults.Allow(logger) {
		return
	}
	logger.Err().
		Err(PanicError{Value: r}).
		Str(`stack`, string(debug.Stack())).
		Log(`future: listener panicked`)
}
