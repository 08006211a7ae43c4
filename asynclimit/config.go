/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package asynclimit

import (
	"fmt"

	"github.com/acronis/go-callkit/config"
)

const cfgDefaultKeyPrefix = "asyncLimit"

const cfgKeyParallelCalls = "parallelCalls"

// Config represents a set of configuration parameters for the Executor.
type Config struct {
	ParallelCalls int `mapstructure:"parallelCalls" yaml:"parallelCalls" json:"parallelCalls"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config with the given key prefix
// (or "asyncLimit" if it is empty).
func NewConfig(keyPrefix string) *Config {
	if keyPrefix == "" {
		keyPrefix = cfgDefaultKeyPrefix
	}
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(keyPrefix string) *Config {
	cfg := NewConfig(keyPrefix)
	cfg.ParallelCalls = DefaultParallelCalls
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyParallelCalls, DefaultParallelCalls)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.ParallelCalls, err = dp.GetInt(cfgKeyParallelCalls); err != nil {
		return err
	}
	if c.ParallelCalls < 1 {
		return dp.WrapKeyErr(cfgKeyParallelCalls, fmt.Errorf("must be >= 1"))
	}
	return nil
}

// Opts converts the Config into executor options.
func (c *Config) Opts() Opts {
	return Opts{ParallelCalls: c.ParallelCalls}
}
