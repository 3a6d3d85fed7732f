// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/go-a2a/a2akit/conversation"
	"github.com/go-a2a/a2akit/task"
)

// Option represents an option for configuring the [Server].
type Option func(*Server)

// WithLogger sets the [*slog.Logger] for the [Server].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTaskManager sets the task manager. The default keeps tasks in memory.
func WithTaskManager(m *task.Manager) Option {
	return func(s *Server) {
		s.tasks = m
	}
}

// WithConversationManager sets the conversation manager. The default keeps
// histories in memory.
func WithConversationManager(m *conversation.Manager) Option {
	return func(s *Server) {
		s.conversations = m
	}
}

// WithHandlerTimeout bounds every handler invocation. A task whose handler
// exceeds it is moved to the error state with reason [ReasonHandlerTimeout].
// Zero disables the timeout.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.handlerTimeout = d
	}
}

// WithRateLimit limits the requests served per second, with the given burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithCORS replaces the default CORS policy, which allows any origin.
func WithCORS(opts cors.Options) Option {
	return func(s *Server) {
		s.cors = opts
	}
}

// WithMaxBodyBytes bounds the size of a request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// WithH2C also accepts HTTP/2 without TLS (prior knowledge or upgrade),
// for callers behind a TLS-terminating proxy.
func WithH2C() Option {
	return func(s *Server) {
		s.h2c = true
	}
}
