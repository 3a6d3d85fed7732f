// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/auth"
)

// Middleware wraps an [http.Handler].
type Middleware func(http.Handler) http.Handler

// chain applies mws so that the first one is the outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// loggingMiddleware logs every handled request.
func loggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.InfoContext(r.Context(), "handled request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// recoveryMiddleware turns a panic into a JSON-RPC internal error.
func recoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "recovered from handler panic",
						"panic", err, "stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError,
						a2a.NewErrorResponse(a2a.ID{}, a2a.NewError(a2a.InternalErrorCode, "Internal error")))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware rejects requests above the limiter's rate.
func rateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests,
					a2a.NewErrorResponse(a2a.ID{}, a2a.NewError(a2a.ServerErrorCode, "Rate limit exceeded")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware records the caller's bearer token on the request context.
// The token is not verified.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok, ok := auth.FromRequest(r); ok {
			r = r.WithContext(auth.WithUser(r.Context(), auth.TokenUser{Token: tok}))
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight requests and sets CORS headers.
func corsMiddleware(opts cors.Options) Middleware {
	return cors.New(opts).Handler
}
