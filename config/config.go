// Package config loads YAML configuration files, for event loop groups,
// logging, and channel options.
//
// Example:
//
//	group:
//	  loops: 4
//	  chooser: least_connections
//	  task_budget: 512
//	  max_block: 1s
//	  shutdown:
//	    quiet_period: 2s
//	    timeout: 15s
//	logging:
//	  level: info
//	  format: json
//	  file: /var/log/transport.log
//	  rotation:
//	    max_size_mb: 100
//	    max_backups: 3
//	options:
//	  CONNECT_TIMEOUT: 30s
//	  SO_BACKLOG: 128
//	  TCP_NODELAY: true
//	  WRITE_BUFFER_WATER_MARK: {low: 32768, high: 65536}
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joeycumines/go-transport/eventloop"
	"github.com/joeycumines/go-transport/logging"
	"github.com/joeycumines/go-transport/option"
	"gopkg.in/yaml.v3"
)

type (
	// File models a config file.
	File struct {
		Group   Group                `yaml:"group"`
		Logging logging.Config       `yaml:"logging"`
		Options map[string]yaml.Node `yaml:"options"`
	}

	// Group models the `group` section of a config file. Zero values
	// select the defaults of the eventloop package.
	Group struct {
		// Chooser is one of round_robin (default), least_connections, or
		// random.
		Chooser    string        `yaml:"chooser"`
		Loops      int           `yaml:"loops"`
		TaskBudget int           `yaml:"task_budget"`
		MaxBlock   time.Duration `yaml:"max_block"`
		Shutdown   Shutdown      `yaml:"shutdown"`
	}

	// Shutdown models the graceful shutdown periods of a group.
	Shutdown struct {
		QuietPeriod time.Duration `yaml:"quiet_period"`
		Timeout     time.Duration `yaml:"timeout"`
	}
)

const (
	ChooserRoundRobin       = `round_robin`
	ChooserLeastConnections = `least_connections`
	ChooserRandom           = `random`
)

// Legacy option names, folded into [option.WriteBufferWaterMark].
const (
	legacyHighWaterMark = `WRITE_BUFFER_HIGH_WATER_MARK`
	legacyLowWaterMark  = `WRITE_BUFFER_LOW_WATER_MARK`
)

// ErrInvalid is returned for config files that parse, but are invalid.
var ErrInvalid = errors.New("config: invalid")

var interfaceType = reflect.TypeFor[*net.Interface]()

// LoadFile loads and validates the config file at path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a config file. Unknown fields are rejected.
// An empty document is valid, and selects every default.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every section, including each option value.
func (x *File) Validate() error {
	if _, err := x.Group.chooser(); err != nil {
		return err
	}
	if x.Group.Loops < 0 || x.Group.TaskBudget < 0 || x.Group.MaxBlock < 0 {
		return fmt.Errorf("%w: group values must not be negative", ErrInvalid)
	}
	if x.Group.Shutdown.QuietPeriod < 0 || x.Group.Shutdown.Timeout < 0 {
		return fmt.Errorf("%w: shutdown periods must not be negative", ErrInvalid)
	}
	if _, err := logging.ParseLevel(x.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch x.Logging.Format {
	case ``, logging.FormatJSON, logging.FormatZerolog, logging.FormatConsole:
	default:
		return fmt.Errorf("%w: logging format %q", ErrInvalid, x.Logging.Format)
	}
	if _, err := x.ChannelConfig(); err != nil {
		return err
	}
	return nil
}

// Logger builds the configured logger, see [logging.New].
func (x *File) Logger() (*logging.Logger, io.Closer, error) {
	return logging.New(x.Logging)
}

// GroupOptions converts the group section into options for
// [eventloop.NewGroup], using logger as the group logger.
func (x *File) GroupOptions(logger *logging.Logger) ([]eventloop.GroupOption, error) {
	chooser, err := x.Group.chooser()
	if err != nil {
		return nil, err
	}
	opts := []eventloop.GroupOption{
		eventloop.WithChooser(chooser),
		eventloop.WithGroupLogger(logger),
	}
	if x.Group.Loops > 0 {
		opts = append(opts, eventloop.WithLoopCount(x.Group.Loops))
	}
	var loopOpts []eventloop.LoopOption
	if x.Group.TaskBudget > 0 {
		loopOpts = append(loopOpts, eventloop.WithTaskBudget(x.Group.TaskBudget))
	}
	if x.Group.MaxBlock > 0 {
		loopOpts = append(loopOpts, eventloop.WithMaxBlockTime(x.Group.MaxBlock))
	}
	if len(loopOpts) != 0 {
		opts = append(opts, eventloop.WithLoopOptions(loopOpts...))
	}
	return opts, nil
}

// ShutdownPeriods returns the quiet period and timeout for
// [eventloop.Group.ShutdownGracefully], applying defaults.
func (x *File) ShutdownPeriods() (quietPeriod, timeout time.Duration) {
	quietPeriod, timeout = eventloop.DefaultShutdownQuietPeriod, eventloop.DefaultShutdownTimeout
	if x.Group.Shutdown.QuietPeriod > 0 {
		quietPeriod = x.Group.Shutdown.QuietPeriod
	}
	if x.Group.Shutdown.Timeout > 0 {
		timeout = x.Group.Shutdown.Timeout
	}
	return
}

func (x Group) chooser() (eventloop.ChooserFactory, error) {
	switch strings.ToLower(x.Chooser) {
	case ``, ChooserRoundRobin:
		return eventloop.RoundRobin, nil
	case ChooserLeastConnections:
		return eventloop.LeastConnections, nil
	case ChooserRandom:
		return eventloop.Random, nil
	default:
		return nil, fmt.Errorf("%w: unknown chooser %q", ErrInvalid, x.Chooser)
	}
}

// ChannelConfig resolves and validates the options section. Each name must
// be a registered option, and each value must decode to its value type.
func (x *File) ChannelConfig() (*option.Config, error) {
	cfg := option.NewConfig()
	var (
		legacy    bool
		waterMark = option.DefaultWaterMark
	)
	if node, ok := x.Options[option.WriteBufferWaterMark.Name()]; ok {
		if err := node.Decode(&waterMark); err != nil {
			return nil, fmt.Errorf("%w: option %q: %w", ErrInvalid, option.WriteBufferWaterMark.Name(), err)
		}
	}

	for name, node := range x.Options {
		switch name {
		case legacyHighWaterMark:
			legacy = true
			if err := node.Decode(&waterMark.High); err != nil {
				return nil, fmt.Errorf("%w: option %q: %w", ErrInvalid, name, err)
			}
			continue
		case legacyLowWaterMark:
			legacy = true
			if err := node.Decode(&waterMark.Low); err != nil {
				return nil, fmt.Errorf("%w: option %q: %w", ErrInvalid, name, err)
			}
			continue
		}

		key, ok := option.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", option.ErrUnknownOption, name)
		}
		value, err := decodeValue(key, &node)
		if err != nil {
			return nil, fmt.Errorf("%w: option %q: %w", ErrInvalid, name, err)
		}
		if err := cfg.SetValue(key, value); err != nil {
			return nil, err
		}
	}

	if legacy {
		if err := option.Set(cfg, option.WriteBufferWaterMark, waterMark); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// decodeValue returns nil for null values, which fail validation.
func decodeValue(key option.Key, node *yaml.Node) (any, error) {
	typ := key.ValueType()
	switch {
	case node.ShortTag() == `!!null`:
		return nil, nil
	case typ == interfaceType:
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, err
		}
		return net.InterfaceByName(name)
	case typ.Kind() == reflect.Interface:
		return nil, fmt.Errorf("value type %s cannot be loaded from a file", typ)
	}
	v := reflect.New(typ)
	if err := node.Decode(v.Interface()); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}
