// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2akit"
)

// params is implemented by pointers to RPC parameter structs.
type params[P any] interface {
	*P
	Validate() error
}

// methodHandler is the type-erased view of a registered method.
type methodHandler interface {
	call(ctx context.Context, raw jsontext.Value) (any, error)
}

// method binds an RPC method to a function statically typed to its params
// and result.
type method[P any, PP params[P], R any] struct {
	fn func(ctx context.Context, p PP) (R, error)
}

var _ methodHandler = method[a2a.TaskIDParams, *a2a.TaskIDParams, any]{}

func (m method[P, PP, R]) call(ctx context.Context, raw jsontext.Value) (any, error) {
	p, err := decodeParams[P, PP](raw)
	if err != nil {
		return nil, err
	}
	return m.fn(ctx, p)
}

// decodeParams decodes and validates raw params. Any failure is reported as
// an invalid params error.
func decodeParams[P any, PP params[P]](raw jsontext.Value) (PP, error) {
	if len(raw) == 0 {
		return nil, a2a.NewInvalidParamsError("params are required")
	}
	p := PP(new(P))
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, a2a.NewInvalidParamsError(err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, a2a.NewInvalidParamsError(err.Error())
	}
	return p, nil
}

// streamHandler is the type-erased view of a registered streaming method.
type streamHandler interface {
	open(ctx context.Context, raw jsontext.Value) (<-chan *a2a.StatusUpdateEvent, error)
}

// streamMethod binds a streaming RPC method. The returned channel is closed
// after the final event.
type streamMethod[P any, PP params[P]] struct {
	fn func(ctx context.Context, p PP) (<-chan *a2a.StatusUpdateEvent, error)
}

func (m streamMethod[P, PP]) open(ctx context.Context, raw jsontext.Value) (<-chan *a2a.StatusUpdateEvent, error) {
	p, err := decodeParams[P, PP](raw)
	if err != nil {
		return nil, err
	}
	return m.fn(ctx, p)
}
