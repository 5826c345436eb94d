package logging

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

type (
	zerologEvent struct {
		logiface.UnimplementedEvent
		z   *zerolog.Event
		msg string
		lvl logiface.Level
	}

	zerologLogger struct {
		z zerolog.Logger
	}
)

var (
	_ logiface.Event                      = (*zerologEvent)(nil)
	_ logiface.EventFactory[*zerologEvent] = (*zerologLogger)(nil)
	_ logiface.Writer[*zerologEvent]       = (*zerologLogger)(nil)
)

// NewZerolog returns a logger backed by z. Levels more severe than error are
// logged at zerolog's fatal and panic levels, without exiting or panicking.
func NewZerolog(z zerolog.Logger, level logiface.Level) *Logger {
	l := &zerologLogger{z: z}
	return logiface.New[*zerologEvent](
		logiface.WithEventFactory[*zerologEvent](l),
		logiface.WithWriter[*zerologEvent](l),
		logiface.WithLevel[*zerologEvent](level),
	).Logger()
}

func (x *zerologLogger) NewEvent(level logiface.Level) *zerologEvent {
	if !level.Enabled() {
		return nil
	}
	e := zerologEvent{lvl: level}
	switch level {
	case logiface.LevelTrace:
		e.z = x.z.Trace()
	case logiface.LevelDebug:
		e.z = x.z.Debug()
	case logiface.LevelInformational:
		e.z = x.z.Info()
	case logiface.LevelNotice, logiface.LevelWarning:
		e.z = x.z.Warn()
	case logiface.LevelError:
		e.z = x.z.Error()
	case logiface.LevelCritical, logiface.LevelAlert:
		e.z = x.z.WithLevel(zerolog.FatalLevel)
	case logiface.LevelEmergency:
		e.z = x.z.WithLevel(zerolog.PanicLevel)
	default:
		// 9 -> -2, 10 -> -3, etc
		e.z = x.z.WithLevel(zerolog.Level(7 - level))
	}
	return &e
}

func (x *zerologLogger) Write(event *zerologEvent) error {
	event.z.Msg(event.msg)
	return nil
}

func (x *zerologEvent) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *zerologEvent) AddField(key string, val any) { x.z.Interface(key, val) }

func (x *zerologEvent) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *zerologEvent) AddError(err error) bool {
	x.z.Err(err)
	return true
}

func (x *zerologEvent) AddString(key string, val string) bool {
	x.z.Str(key, val)
	return true
}

func (x *zerologEvent) AddInt(key string, val int) bool {
	x.z.Int(key, val)
	return true
}

func (x *zerologEvent) AddInt64(key string, val int64) bool {
	x.z.Int64(key, val)
	return true
}

func (x *zerologEvent) AddUint64(key string, val uint64) bool {
	x.z.Uint64(key, val)
	return true
}

func (x *zerologEvent) AddBool(key string, val bool) bool {
	x.z.Bool(key, val)
	return true
}

func (x *zerologEvent) AddDuration(key string, val time.Duration) bool {
	x.z.Dur(key, val)
	return true
}

func (x *zerologEvent) AddTime(key string, val time.Time) bool {
	x.z.Time(key, val)
	return true
}
