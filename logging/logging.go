// Package logging wires the structured logging backends used by this module.
//
// All components accept a [Logger], which is the generic logiface logger. A
// nil *Logger is valid, and disables logging. Two backends are provided:
// stumpy (JSON, the default) and zerolog (JSON or console output). Either
// may write to a rotating file, via lumberjack.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type (
	// Logger is the logger type accepted throughout this module.
	Logger = logiface.Logger[logiface.Event]

	// Config models the `logging` section of a config file.
	Config struct {
		// Level is the minimum level, see [ParseLevel]. Defaults to info.
		Level string `yaml:"level"`
		// Format is one of json (stumpy), zerolog, or console.
		Format string `yaml:"format"`
		// File, if set, directs output to a rotating file instead of stderr.
		File     string         `yaml:"file"`
		Rotation RotationConfig `yaml:"rotation"`
	}

	// RotationConfig controls rotation of [Config.File].
	RotationConfig struct {
		MaxSizeMB  int  `yaml:"max_size_mb"`
		MaxBackups int  `yaml:"max_backups"`
		MaxAgeDays int  `yaml:"max_age_days"`
		Compress   bool `yaml:"compress"`
	}

	nopCloser struct{}
)

const (
	FormatJSON    = `json`
	FormatZerolog = `zerolog`
	FormatConsole = `console`
)

// ErrUnknownLevel is returned by [ParseLevel].
var ErrUnknownLevel = errors.New("logging: unknown level")

var levels = map[string]logiface.Level{
	`disabled`:      logiface.LevelDisabled,
	`off`:           logiface.LevelDisabled,
	`emerg`:         logiface.LevelEmergency,
	`emergency`:     logiface.LevelEmergency,
	`alert`:         logiface.LevelAlert,
	`crit`:          logiface.LevelCritical,
	`critical`:      logiface.LevelCritical,
	`err`:           logiface.LevelError,
	`error`:         logiface.LevelError,
	`warn`:          logiface.LevelWarning,
	`warning`:       logiface.LevelWarning,
	`notice`:        logiface.LevelNotice,
	`info`:          logiface.LevelInformational,
	`informational`: logiface.LevelInformational,
	`debug`:         logiface.LevelDebug,
	`trace`:         logiface.LevelTrace,
}

// ParseLevel parses a level keyword, case-insensitively. The empty string is
// treated as info.
func ParseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == `` {
		return logiface.LevelInformational, nil
	}
	if level, ok := levels[s]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// NewStumpy returns a JSON logger writing to w.
func NewStumpy(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// New builds a logger from cfg. The returned closer releases the log file,
// if any, and must be called once the logger is no longer in use.
func New(cfg Config) (*Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != `` {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
		}
		w, closer = lj, lj
	}

	switch strings.ToLower(cfg.Format) {
	case ``, FormatJSON:
		return NewStumpy(w, level), closer, nil
	case FormatZerolog:
		return NewZerolog(zerolog.New(w).With().Timestamp().Logger(), level), closer, nil
	case FormatConsole:
		return NewZerolog(zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: cfg.File != ``}).With().Timestamp().Logger(), level), closer, nil
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
}

func (nopCloser) Close() error { return nil }

// Limiter gates repetitive log messages, e.g. faults raised by callbacks,
// which may otherwise flood the output. Categories are arbitrary comparable
// values. A nil *Limiter allows everything.
type Limiter struct {
	limiter *catrate.Limiter
}

// DefaultLimiterRates allow 10 events per second and 100 per minute, per
// category.
var DefaultLimiterRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

// NewLimiter returns a limiter using the given rates, or [DefaultLimiterRates]
// if rates is empty. Panics if the rates are invalid, per [catrate.NewLimiter].
func NewLimiter(rates map[time.Duration]int) *Limiter {
	if len(rates) == 0 {
		rates = DefaultLimiterRates
	}
	return &Limiter{limiter: catrate.NewLimiter(rates)}
}

// Allow records an event for category, returning false if it should be
// suppressed.
func (x *Limiter) Allow(category any) bool {
	if x == nil {
		return true
	}
	_, ok := x.limiter.Allow(category)
	return ok
}
