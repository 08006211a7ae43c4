/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-callkit/asynclimit"
	"github.com/acronis/go-callkit/config"
	"github.com/acronis/go-callkit/log"
	"github.com/acronis/go-callkit/memoize"
	"github.com/acronis/go-callkit/retry"
	"github.com/acronis/go-callkit/worker"
)

const envVarsPrefix = "TASKWORKER"

// appConfig is the configuration of the taskworker command. Every part may be set in the config file
// or overridden by environment variables (e.g. TASKWORKER_WORKER_MAXCONCURRENTTASKS).
type appConfig struct {
	Log    *log.Config
	Worker *worker.Config
	Sleep  *asynclimit.Config
	SHA256 *memoize.Config
	Retry  *retry.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:    log.NewConfig(""),
		Worker: worker.NewConfig(""),
		Sleep:  asynclimit.NewConfig("handlers.sleep"),
		SHA256: memoize.NewConfig("handlers.sha256"),
		Retry:  retry.NewConfig(""),
	}
}

func (c *appConfig) parts() []config.Config {
	return []config.Config{c.Log, c.Worker, c.Sleep, c.SHA256, c.Retry}
}

func loadAppConfig(path string) (*appConfig, error) {
	cfg := newAppConfig()
	parts := cfg.parts()
	return cfg, config.NewDefaultLoader(envVarsPrefix).LoadFromPath(path, parts[0], parts[1:]...)
}
