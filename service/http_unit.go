/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/acronis/go-callkit/log"
)

// DefaultHTTPShutdownTimeout is the default time for in-flight HTTP requests to finish on graceful stop.
const DefaultHTTPShutdownTimeout = time.Second * 30

// HTTPUnitOpts represents options for the HTTPUnit.
type HTTPUnitOpts struct {
	// ShutdownTimeout is the time for in-flight requests to finish on graceful stop. Default is DefaultHTTPShutdownTimeout.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout is the amount of time allowed to read request headers. Zero means no timeout.
	ReadHeaderTimeout time.Duration

	// Listener is used instead of listening on the address if set.
	Listener net.Listener

	// Logger may be nil.
	Logger log.FieldLogger
}

// HTTPUnit presents an HTTP server as a Unit.
type HTTPUnit struct {
	server          *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	logger          log.FieldLogger
}

// NewHTTPUnit creates a new HTTPUnit serving the handler on the address.
func NewHTTPUnit(addr string, handler http.Handler, opts HTTPUnitOpts) *HTTPUnit {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultHTTPShutdownTimeout
	}
	return &HTTPUnit{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
		},
		listener:        opts.Listener,
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          log.OrDisabled(opts.Logger).With(log.String("address", addr)),
	}
}

// Start serves HTTP requests until the unit is stopped.
func (u *HTTPUnit) Start(fatalErr chan<- error) {
	u.logger.Info("starting HTTP server...")
	if u.listener == nil {
		ln, err := net.Listen("tcp", u.server.Addr)
		if err != nil {
			u.logger.Error("HTTP server error", log.Error(err))
			fatalErr <- err
			return
		}
		u.listener = ln
	}
	if err := u.server.Serve(u.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			u.logger.Info("HTTP server closed")
			return
		}
		u.logger.Error("HTTP server error", log.Error(err))
		fatalErr <- err
	}
}

// Stop stops the server. On graceful stop in-flight requests are given ShutdownTimeout to finish.
func (u *HTTPUnit) Stop(gracefully bool) error {
	if !gracefully {
		u.logger.Info("closing HTTP server...")
		return u.server.Close()
	}
	u.logger.Info("shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), u.shutdownTimeout)
	defer cancel()
	if err := u.server.Shutdown(ctx); err != nil {
		u.logger.Error("HTTP server shutdown error", log.Error(err))
		return err
	}
	return nil
}
