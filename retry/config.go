/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-callkit/config"
)

// Policy kinds.
const (
	PolicyKindExponential = "exponential"
	PolicyKindConstant    = "constant"
)

// Default values of the retry configuration.
const (
	DefaultPolicyKind = PolicyKindExponential
	DefaultInterval   = time.Millisecond * 100
	DefaultMaxRetries = 3
)

const cfgDefaultKeyPrefix = "retry"

const (
	cfgKeyPolicy     = "policy"
	cfgKeyInterval   = "interval"
	cfgKeyMaxRetries = "maxRetries"
)

// Config represents a set of configuration parameters for a retry policy.
type Config struct {
	// Policy is either "exponential" or "constant".
	Policy string `mapstructure:"policy" yaml:"policy" json:"policy"`

	// Interval is the initial interval for the exponential policy and the delay for the constant one.
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// MaxRetries is the maximum number of retries. Zero means no retries.
	MaxRetries int `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config with the given key prefix (or "retry" if it is empty).
func NewConfig(keyPrefix string) *Config {
	if keyPrefix == "" {
		keyPrefix = cfgDefaultKeyPrefix
	}
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(keyPrefix string) *Config {
	cfg := NewConfig(keyPrefix)
	cfg.Policy = DefaultPolicyKind
	cfg.Interval = config.TimeDuration(DefaultInterval)
	cfg.MaxRetries = DefaultMaxRetries
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPolicy, DefaultPolicyKind)
	dp.SetDefault(cfgKeyInterval, DefaultInterval)
	dp.SetDefault(cfgKeyMaxRetries, DefaultMaxRetries)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Policy, err = dp.GetStringFromSet(cfgKeyPolicy, []string{PolicyKindExponential, PolicyKindConstant}, false); err != nil {
		return err
	}

	interval, err := dp.GetDuration(cfgKeyInterval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyInterval, fmt.Errorf("must be positive"))
	}
	c.Interval = config.TimeDuration(interval)

	if c.MaxRetries, err = dp.GetInt(cfgKeyMaxRetries); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return dp.WrapKeyErr(cfgKeyMaxRetries, fmt.Errorf("must be >= 0"))
	}
	return nil
}

// NewPolicy creates a Policy from the configuration.
func (c *Config) NewPolicy() Policy {
	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		return PolicyFunc(func() backoff.BackOff { return &backoff.StopBackOff{} })
	}
	if c.Policy == PolicyKindConstant {
		return NewConstantBackoffPolicy(time.Duration(c.Interval), maxRetries)
	}
	return NewExponentialBackoffPolicy(time.Duration(c.Interval), maxRetries)
}
