package option

import (
	"fmt"
	"sync"
)

// Config maps options to configured values, e.g. the settings of a single
// connection. Values are validated as they are set, and a rejected value
// leaves the config unchanged. Safe for concurrent use.
//
// The config only carries values. Applying them, e.g. to a socket, is the
// responsibility of the transport layer, which reads them via [Get] or
// [Config.Options].
type Config struct {
	values map[Key]any
	mu     sync.RWMutex
}

// NewConfig returns an empty config.
func NewConfig() *Config {
	return &Config{values: make(map[Key]any)}
}

// Set validates then stores value for o.
func Set[T any](c *Config, o *Option[T], value T) error {
	if err := o.Validate(value); err != nil {
		return err
	}
	c.mu.Lock()
	c.values[o] = value
	c.mu.Unlock()
	return nil
}

// Get returns the value configured for o, if any.
func Get[T any](c *Config, o *Option[T]) (value T, ok bool) {
	c.mu.RLock()
	v, ok := c.values[o]
	c.mu.RUnlock()
	if ok {
		value = v.(T)
	}
	return
}

// GetOr returns the value configured for o, or def if none is set.
func GetOr[T any](c *Config, o *Option[T], def T) T {
	if v, ok := Get(c, o); ok {
		return v
	}
	return def
}

// SetValue is the untyped equivalent of [Set].
func (c *Config) SetValue(key Key, value any) error {
	if key == nil {
		return fmt.Errorf("%w: nil key", ErrUnknownOption)
	}
	if err := key.ValidateValue(value); err != nil {
		return err
	}
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
	return nil
}

// Value is the untyped equivalent of [Get].
func (c *Config) Value(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Unset removes any value configured for key, returning true if one was set.
func (c *Config) Unset(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	delete(c.values, key)
	return ok
}

// Len returns the number of configured options.
func (c *Config) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Options returns a snapshot of all configured values, keyed by option.
func (c *Config) Options() map[Key]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := make(map[Key]any, len(c.values))
	for k, v := range c.values {
		m[k] = v
	}
	return m
}

// Merge copies every value from other into c, overwriting existing values.
// The values were validated when set on other, and are not re-validated.
func (c *Config) Merge(other *Config) {
	if other == nil || other == c {
		return
	}
	values := other.Options()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}
