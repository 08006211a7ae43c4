/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"fmt"
	"time"

	"github.com/acronis/go-callkit/config"
)

const cfgDefaultKeyPrefix = "worker"

const (
	cfgKeyMaxConcurrentTasks = "maxConcurrentTasks"
	cfgKeySendTimeout        = "sendTimeout"
	cfgKeyTaskTimeouts       = "taskTimeouts"
)

// DefaultSendTimeout is the default timeout for sending a reply to the channel.
const DefaultSendTimeout = time.Second * 10

// Config represents a set of configuration parameters for the Worker.
type Config struct {
	// MaxConcurrentTasks limits the number of concurrently executed tasks. Zero means unlimited.
	MaxConcurrentTasks int `mapstructure:"maxConcurrentTasks" yaml:"maxConcurrentTasks" json:"maxConcurrentTasks"`

	// SendTimeout is the timeout for sending a reply to the channel.
	SendTimeout config.TimeDuration `mapstructure:"sendTimeout" yaml:"sendTimeout" json:"sendTimeout"`

	// TaskTimeouts limits the execution time of tasks by their types.
	// Keys are lower-cased by the config loader, so task types are matched case-insensitively.
	TaskTimeouts map[string]config.TimeDuration `mapstructure:"taskTimeouts" yaml:"taskTimeouts" json:"taskTimeouts"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config with the given key prefix
// (or "worker" if it is empty).
func NewConfig(keyPrefix string) *Config {
	if keyPrefix == "" {
		keyPrefix = cfgDefaultKeyPrefix
	}
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(keyPrefix string) *Config {
	cfg := NewConfig(keyPrefix)
	cfg.SendTimeout = config.TimeDuration(DefaultSendTimeout)
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrentTasks, 0)
	dp.SetDefault(cfgKeySendTimeout, DefaultSendTimeout)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.MaxConcurrentTasks, err = dp.GetInt(cfgKeyMaxConcurrentTasks); err != nil {
		return err
	}
	if c.MaxConcurrentTasks < 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrentTasks, fmt.Errorf("must be >= 0"))
	}

	sendTimeout, err := dp.GetDuration(cfgKeySendTimeout)
	if err != nil {
		return err
	}
	if sendTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeySendTimeout, fmt.Errorf("must be positive"))
	}
	c.SendTimeout = config.TimeDuration(sendTimeout)

	var taskTimeouts map[string]config.TimeDuration
	if err = dp.UnmarshalKey(cfgKeyTaskTimeouts, &taskTimeouts); err != nil {
		return err
	}
	for taskType, timeout := range taskTimeouts {
		if timeout <= 0 {
			return dp.WrapKeyErr(cfgKeyTaskTimeouts+"."+taskType, fmt.Errorf("must be positive"))
		}
	}
	c.TaskTimeouts = taskTimeouts
	return nil
}

// Opts converts the Config into worker options.
func (c *Config) Opts() Opts {
	var taskTimeouts map[string]time.Duration
	if len(c.TaskTimeouts) != 0 {
		taskTimeouts = make(map[string]time.Duration, len(c.TaskTimeouts))
		for taskType, timeout := range c.TaskTimeouts {
			taskTimeouts[taskType] = time.Duration(timeout)
		}
	}
	return Opts{
		MaxConcurrentTasks: c.MaxConcurrentTasks,
		SendTimeout:        time.Duration(c.SendTimeout),
		TaskTimeouts:       taskTimeouts,
	}
}
