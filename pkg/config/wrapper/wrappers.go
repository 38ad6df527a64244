package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/config"
)

// ErrUnsuportedConversion indicates the wrapper does not implement conversion from the source type
var ErrUnsuportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// typedConfig adapts an untyped config.Config into a typed value. Raw []byte
// values, as produced by env configs, are parsed with fromBytes.
type typedConfig[T any] struct {
	override     config.Config
	defaultValue T
	fromBytes    func([]byte) (T, error)
	fromValue    func(interface{}) (T, bool)

	stateMu   sync.RWMutex
	lastValue T
}

func newTypedConfig[T any](override config.Config, defaultValue T, fromBytes func([]byte) (T, error), fromValue func(interface{}) (T, bool)) *typedConfig[T] {
	return &typedConfig[T]{
		override:     override,
		defaultValue: defaultValue,
		fromBytes:    fromBytes,
		fromValue:    fromValue,
		lastValue:    defaultValue,
	}
}

// GetSafe gets a config value and propagates any errors that arise. A best-effort
// attempt is made to return the last known value
func (c *typedConfig[T]) GetSafe(ctx context.Context) (T, error) {
	override, err := c.override.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if err == config.ErrNoValue {
		c.setLastValue(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	var newValue T
	if raw, ok := override.([]byte); ok {
		newValue, err = c.fromBytes(raw)
		if err != nil {
			return lastValue, err
		}
	} else if newValue, ok = c.fromValue(override); !ok {
		return lastValue, ErrUnsuportedConversion
	}

	c.setLastValue(newValue)
	return newValue, nil
}

// Get is a wrapper for GetSafe that ignores the returned error
func (c *typedConfig[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown signals the config to stop all underlying resources
func (c *typedConfig[T]) Shutdown() {
	c.override.Shutdown()
}

func (c *typedConfig[T]) setLastValue(value T) {
	c.stateMu.Lock()
	c.lastValue = value
	c.stateMu.Unlock()
}

// NewBoolConfig returns a new bool config utility wrapper
func NewBoolConfig(override config.Config, defaultValue bool) config.Bool {
	return newTypedConfig(
		override,
		defaultValue,
		func(raw []byte) (bool, error) {
			return strconv.ParseBool(string(raw))
		},
		func(value interface{}) (bool, bool) {
			typed, ok := value.(bool)
			return typed, ok
		},
	)
}

// NewUint64Config returns a new uint64 config utility wrapper
func NewUint64Config(override config.Config, defaultValue uint64) config.Uint64 {
	return newTypedConfig(
		override,
		defaultValue,
		func(raw []byte) (uint64, error) {
			return strconv.ParseUint(string(raw), 10, 64)
		},
		func(value interface{}) (uint64, bool) {
			switch typed := value.(type) {
			case uint64:
				return typed, true
			case uint:
				return uint64(typed), true
			}
			return 0, false
		},
	)
}

// NewStringConfig returns a new string config utility wrapper
func NewStringConfig(override config.Config, defaultValue string) config.String {
	return newTypedConfig(
		override,
		defaultValue,
		func(raw []byte) (string, error) {
			return string(raw), nil
		},
		func(value interface{}) (string, bool) {
			typed, ok := value.(string)
			return typed, ok
		},
	)
}

// NewDurationConfig returns a new duration config utility wrapper
func NewDurationConfig(override config.Config, defaultValue time.Duration) config.Duration {
	return newTypedConfig(
		override,
		defaultValue,
		func(raw []byte) (time.Duration, error) {
			return time.ParseDuration(string(raw))
		},
		func(value interface{}) (time.Duration, bool) {
			typed, ok := value.(time.Duration)
			return typed, ok
		},
	)
}
