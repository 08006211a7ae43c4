/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs units (task workers, HTTP servers) until a shutdown signal, a context cancellation
// or a fatal error.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-callkit/log"
)

// Opts represents options for the Service.
type Opts struct {
	// ShutdownSignals stop the service gracefully. Default is SIGINT and SIGTERM.
	ShutdownSignals []os.Signal
}

// Service runs a unit and stops it gracefully on a shutdown signal or context cancellation.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a new Service for the unit.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if len(opts.ShutdownSignals) == 0 {
		opts.ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &Service{
		Unit:    unit,
		Signals: make(chan os.Signal, 1),
		Logger:  log.OrDisabled(logger),
		Opts:    opts,
	}
}

// Run starts the unit in a separate goroutine and blocks until it fails,
// ctx is done or one of the shutdown signals is received.
func (s *Service) Run(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	select {
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		if stopErr := s.Unit.Stop(false); stopErr != nil {
			s.Logger.Error("failed to stop service after fatal error", log.Error(stopErr))
		}
		return fmt.Errorf("fatal error: %w", err)
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service is stopped")
	return nil
}
