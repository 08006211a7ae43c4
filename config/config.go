/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration for the callkit components from YAML/JSON files,
// readers and environment variables. Each component exposes its own Config type
// that registers defaults in a DataProvider and then reads (and validates) its values from it.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose parameters live under a common key
// (e.g. "worker" for "worker.maxConcurrentTasks").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataTypeFromPath detects the format of a configuration file by its extension.
// Files without a known extension are treated as YAML.
func DataTypeFromPath(path string) DataType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DataTypeJSON
	default:
		return DataTypeYAML
	}
}

// WrapKeyErr adds the key where the error occurred to the error message.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

func wrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

func dataProviderFor(cfg Config, dp DataProvider) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return WithKeyPrefix(dp, kp.KeyPrefix())
	}
	return dp
}
