// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"

	"github.com/go-a2a/a2akit"
)

var errUnexpectedStatus = errors.New("unexpected HTTP status")

// TransportError reports a failure to reach the agent or to read its reply.
// It matches [a2a.ErrTransport] under [errors.Is].
type TransportError struct {
	// Op is the RPC method or client operation that failed.
	Op string
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("a2a %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("a2a %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match [a2a.ErrTransport].
func (e *TransportError) Is(target error) bool {
	return target == a2a.ErrTransport
}
