/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpchannel

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-callkit/log"
)

// HeaderRequestID carries the request id. The client sets it to the task id.
const HeaderRequestID = "X-Request-ID"

const recoveryStackSize = 8192

type ctxKey int

const ctxKeyLogger ctxKey = iota

// LoggerFromContext returns the request-scoped logger put by the handler's middleware.
func LoggerFromContext(ctx context.Context) log.FieldLogger {
	logger, _ := ctx.Value(ctxKeyLogger).(log.FieldLogger)
	return log.OrDisabled(logger)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging takes the request id from X-Request-ID (generating one if it is empty),
// puts a logger with it into the request context and logs the finished request.
func requestLogging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = xid.New().String()
			}
			rw.Header().Set(HeaderRequestID, requestID)

			reqLogger := logger.With(log.String("request_id", requestID))
			ctx := context.WithValue(r.Context(), ctxKeyLogger, reqLogger)

			startTime := time.Now()
			rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", time.Since(startTime).Seconds()),
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.Int("status", rec.status),
				log.Duration("duration", time.Since(startTime)),
			)
		})
	}
}

// recovery responds with 500 if the handler panics. Task handler panics never get here,
// they are turned into ERROR messages by the worker.
func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger := LoggerFromContext(r.Context())
				stack := make([]byte, recoveryStackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", stack))
				respondJSON(rw, http.StatusInternalServerError, errorResponse{"internal error"}, logger)
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
