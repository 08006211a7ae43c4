/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataProvider provides configuration values by keys. Typed getters return errors
// that already contain the key, so Config implementations may return them as is.
type DataProvider interface {
	UseEnvVars(prefix string)

	SetDefault(key string, value interface{})
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetDuration(key string) (time.Duration, error)
	GetSizeInBytes(key string) (uint64, error)

	// UnmarshalKey decodes a nested value (map, list or struct) into rawVal.
	// TimeDuration and ByteSize values may be written as human-readable strings.
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes the mapstructure decoder used by UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// withHumanReadableValues makes the decoder accept "1m30s"-like durations and "250M"-like sizes.
func withHumanReadableValues(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

type prefixedDataProvider struct {
	DataProvider
	prefix string
}

// WithKeyPrefix returns a DataProvider that looks up every key under the given prefix.
func WithKeyPrefix(dp DataProvider, prefix string) DataProvider {
	if prefix == "" {
		return dp
	}
	if p, ok := dp.(*prefixedDataProvider); ok {
		return &prefixedDataProvider{p.DataProvider, p.key(prefix)}
	}
	return &prefixedDataProvider{dp, prefix}
}

func (p *prefixedDataProvider) key(key string) string {
	return strings.Trim(p.prefix+"."+key, ".")
}

func (p *prefixedDataProvider) SetDefault(key string, value interface{}) {
	p.DataProvider.SetDefault(p.key(key), value)
}

func (p *prefixedDataProvider) Get(key string) interface{} {
	return p.DataProvider.Get(p.key(key))
}

func (p *prefixedDataProvider) GetBool(key string) (bool, error) {
	return p.DataProvider.GetBool(p.key(key))
}

func (p *prefixedDataProvider) GetInt(key string) (int, error) {
	return p.DataProvider.GetInt(p.key(key))
}

func (p *prefixedDataProvider) GetString(key string) (string, error) {
	return p.DataProvider.GetString(p.key(key))
}

func (p *prefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.DataProvider.GetStringFromSet(p.key(key), set, ignoreCase)
}

func (p *prefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.DataProvider.GetDuration(p.key(key))
}

func (p *prefixedDataProvider) GetSizeInBytes(key string) (uint64, error) {
	return p.DataProvider.GetSizeInBytes(p.key(key))
}

func (p *prefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.DataProvider.UnmarshalKey(p.key(key), rawVal, opts...)
}

func (p *prefixedDataProvider) WrapKeyErr(key string, err error) error {
	return p.DataProvider.WrapKeyErr(p.key(key), err)
}
