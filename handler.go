// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import "context"

// Handler is the agent's business logic. It receives an inbound message and
// answers either with an immediate message or with a task.
//
// A Handler may be invoked more than once for the same task: once when the
// message arrives and again as the asynchronous continuation of a task it
// reported as working. On the continuation the message carries the TaskID,
// and ctx is canceled when the task is canceled.
type Handler interface {
	Handle(ctx context.Context, msg *Message) (*Response, error)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, msg *Message) (*Response, error)

var _ Handler = HandlerFunc(nil)

// Handle implements [Handler].
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) (*Response, error) {
	return f(ctx, msg)
}
