/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memoize

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-callkit/config"
	"github.com/acronis/go-callkit/lrucache"
)

const cfgDefaultKeyPrefix = "memoize"

const (
	cfgKeyExpirationTime = "expirationTime"
	cfgKeyMaxEntries     = "maxEntries"
)

// Config represents a set of configuration parameters for the memoization cache.
type Config struct {
	// ExpirationTime is the TTL of cached entries. Zero means entries never expire.
	ExpirationTime config.TimeDuration `mapstructure:"expirationTime" yaml:"expirationTime" json:"expirationTime"`

	// MaxEntries bounds the number of cached entries (LRU eviction). Zero means unbounded.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config with the given key prefix
// (or "memoize" if it is empty).
func NewConfig(keyPrefix string) *Config {
	if keyPrefix == "" {
		keyPrefix = cfgDefaultKeyPrefix
	}
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyExpirationTime, 0)
	dp.SetDefault(cfgKeyMaxEntries, 0)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	ttl, err := dp.GetDuration(cfgKeyExpirationTime)
	if err != nil {
		return err
	}
	if ttl < 0 {
		return dp.WrapKeyErr(cfgKeyExpirationTime, fmt.Errorf("must be >= 0"))
	}
	c.ExpirationTime = config.TimeDuration(ttl)

	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries < 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("must be >= 0"))
	}
	return nil
}

// NewStore creates a store that matches the configuration:
// a bounded LRU store if MaxEntries is set, an unbounded MapStore otherwise.
func NewStore[V any](cfg *Config, metricsCollector lrucache.MetricsCollector) (Store[V], error) {
	if cfg.MaxEntries == 0 {
		return NewMapStore[V](), nil
	}
	return lrucache.New[string, Entry[V]](cfg.MaxEntries, metricsCollector)
}

// NewFromConfig creates a new Cache for the operation using the configuration.
// KeyResolver, Now, MetricsCollector and Logger are taken from opts, ExpirationTime and Store are overridden.
func NewFromConfig[A, V any](
	fn func(ctx context.Context, arg A) (V, error), cfg *Config, opts Opts[A, V],
) (*Cache[A, V], error) {
	store, err := NewStore[V](cfg, nil)
	if err != nil {
		return nil, err
	}
	opts.Store = store
	opts.ExpirationTime = time.Duration(cfg.ExpirationTime)
	return New(fn, opts)
}
