// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the A2A protocol server: the JSON-RPC
// dispatcher, the streaming emitter and the HTTP gateway that serves the
// AgentCard and the RPC endpoint.
package server

import "context"

type taskIDKey struct{}

func withTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext returns the id of the task a [a2a.Handler] invocation
// works on. It is set for asynchronous continuations and for streamed
// messages.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey{}).(string)
	return id, ok && id != ""
}
