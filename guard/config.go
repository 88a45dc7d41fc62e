package guard

import (
	"fmt"
	"time"
)

const (
	DefaultTTL       = 5 * time.Second
	DefaultDelimiter = ":"
)

// Config describes how one operation is guarded.
type Config struct {
	// Prefix namespaces the lock keys of the operation, it is required.
	Prefix string `mapstructure:"prefix"`
	// TTL is the lease taken for each call, DefaultTTL when zero.
	TTL time.Duration `mapstructure:"ttl"`
	// Delimiter joins the key segments, DefaultDelimiter when empty.
	Delimiter string `mapstructure:"delimiter"`
	// ReleaseDelay keeps the lock for this long after the operation returns,
	// so retries of an already processed request are still rejected.
	ReleaseDelay time.Duration `mapstructure:"release_delay"`
	// Key selects the arguments that identify a call.
	Key KeyPolicy `mapstructure:"key"`
}

func (c Config) withDefaults() Config {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	return c
}

func (c Config) Validate() error {
	if c.Prefix == "" {
		return fmt.Errorf("%w: lock prefix cannot be empty", ErrInvalidConfig)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}
	if c.ReleaseDelay < 0 {
		return fmt.Errorf("%w: release delay cannot be negative", ErrInvalidConfig)
	}
	return nil
}
