// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"net/http"

	"github.com/go-a2a/a2akit/auth"
)

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the [*http.Client] used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBearerToken sends token as "Authorization: Bearer <token>" on every
// request.
func WithBearerToken(token auth.BearerToken) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the [*slog.Logger] for the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
