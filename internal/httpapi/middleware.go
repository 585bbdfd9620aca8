// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mentorhub/mentorhub/internal/observability"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// unmatchedRoute labels requests the mux did not route.
const unmatchedRoute = "unmatched"

// recoverPanics turns a handler panic into a logged 500. When the handler
// had already started the response, the panic is only logged.
func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := false
		ww := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					started = true
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					started = true
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					started = true
					return next(src)
				}
			},
		})
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint,err113 // sentinel compared by identity, as net/http does
				panic(rec)
			}
			err := oops.Code("HTTP_HANDLER_PANIC").
				With("method", r.Method, "route", r.Pattern).
				With("stack", string(debug.Stack())).
				Errorf("panic: %v", rec)
			errutil.LogErrorContext(r.Context(), logger, "handler panicked", err)
			if !started {
				writeFail(w, http.StatusInternalServerError, msgServerError)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// observe logs each request and counts it by route pattern. It reads the
// pattern the mux recorded on r, so it must wrap the mux with the same
// *http.Request. Raw paths are not logged: they can carry verification
// tokens.
func observe(logger *slog.Logger, metrics *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(route, m.Code)

		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"route", route,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

// traced starts a server span per request and extracts incoming trace
// context.
func traced(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "mentorhub.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}
