// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides strongly-typed object pooling and the pool of
// [*bytes.Buffer] used to encode JSON-RPC frames.
package pool

import (
	"bytes"
	"sync"
)

// Pool is a generic wrapper around [sync.Pool].
type Pool[T any] struct {
	p     sync.Pool
	reset func(T) bool
}

// New returns a new [Pool] for T. fn constructs new values when the pool is
// empty. reset, if not nil, prepares a value for reuse and reports whether it
// should be kept at all.
func New[T any](fn func() T, reset func(T) bool) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
		reset: reset,
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put returns x into the pool.
func (p *Pool[T]) Put(x T) {
	if p.reset != nil && !p.reset(x) {
		return
	}
	p.p.Put(x)
}

// maxBufferSize bounds the buffers kept by [Bytes]; one large frame must not
// pin its memory for the life of the process.
const maxBufferSize = 64 << 10

// Bytes provides the [*bytes.Buffer] pooling objects.
var Bytes = New(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) bool {
		if b.Cap() > maxBufferSize {
			return false
		}
		b.Reset()
		return true
	},
)
