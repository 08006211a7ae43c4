/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpchannel carries the worker task protocol over HTTP.
// The worker side exposes a handler that executes a TASK message per request and responds
// with its terminal message, the dispatcher side uses Client as a worker.Channel.
package httpchannel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-callkit/log"
	"github.com/acronis/go-callkit/worker"
)

// Endpoints exposed by the handler.
const (
	TasksPath   = "/tasks"
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// DefaultMaxRequestBodySize limits the size of a TASK message accepted by the handler.
const DefaultMaxRequestBodySize = 16 * 1024 * 1024

// HandlerOpts represents options for the handler.
type HandlerOpts struct {
	// MaxRequestBodySize limits the size of the request body. Default is DefaultMaxRequestBodySize.
	MaxRequestBodySize int64

	// ExposeMetrics enables the Prometheus metrics endpoint.
	ExposeMetrics bool

	// Logger may be nil.
	Logger log.FieldLogger
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates an HTTP handler that executes tasks with the worker.
// POST /tasks accepts a TASK message and responds with 200 and the RESULT or ERROR message.
// Malformed input is rejected with 400 and is never executed.
func NewHandler(w *worker.Worker, opts HandlerOpts) http.Handler {
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = DefaultMaxRequestBodySize
	}
	logger := log.OrDisabled(opts.Logger)

	router := chi.NewRouter()
	router.Use(requestLogging(logger), recovery)
	router.Post(TasksPath, func(rw http.ResponseWriter, r *http.Request) {
		reqLogger := LoggerFromContext(r.Context())
		body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, opts.MaxRequestBodySize))
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				respondJSON(rw, http.StatusRequestEntityTooLarge, errorResponse{err.Error()}, reqLogger)
				return
			}
			respondJSON(rw, http.StatusBadRequest, errorResponse{fmt.Sprintf("read request body: %v", err)}, reqLogger)
			return
		}
		msg, err := worker.DecodeMessage(body)
		if err != nil {
			reqLogger.Warn("malformed task request", log.Error(err))
			respondJSON(rw, http.StatusBadRequest, errorResponse{err.Error()}, reqLogger)
			return
		}
		if msg.Type != worker.MessageTypeTask {
			respondJSON(rw, http.StatusBadRequest, errorResponse{fmt.Sprintf("expected TASK message, got %s", msg.Type)}, reqLogger)
			return
		}
		respondJSON(rw, http.StatusOK, w.Execute(r.Context(), msg), reqLogger)
	})
	router.Get(HealthPath, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	if opts.ExposeMetrics {
		router.Handle(MetricsPath, promhttp.Handler())
	}
	return router
}

func respondJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(respData); err != nil {
		logger.Error("error while marshaling json for response body", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", ContentTypeAppJSON)
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}
