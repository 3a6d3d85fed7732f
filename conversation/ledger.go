// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation keeps the ordered message history of each context.
package conversation

import (
	"context"
	"sync"

	"github.com/go-a2a/a2akit"
)

// Ledger is the append-only storage of conversation histories, keyed by
// context id. Entries are never removed individually; Delete drops a whole
// history.
type Ledger interface {
	// Append adds msg at the end of the history of contextID, creating the
	// history if needed.
	Append(ctx context.Context, contextID string, msg *a2a.Message) error

	// Messages returns a copy of the history of contextID, oldest first.
	// An unknown context yields an empty history.
	Messages(ctx context.Context, contextID string) ([]a2a.Message, error)

	// Delete removes the history of contextID and reports whether it existed.
	Delete(ctx context.Context, contextID string) (bool, error)
}

// MemoryLedger is an in-memory implementation of Ledger.
type MemoryLedger struct {
	mu       sync.RWMutex
	contexts map[string][]a2a.Message
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates a new MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{contexts: make(map[string][]a2a.Message)}
}

// Append implements [Ledger].
func (l *MemoryLedger) Append(ctx context.Context, contextID string, msg *a2a.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contexts[contextID] = append(l.contexts[contextID], msg.Clone())
	return nil
}

// Messages implements [Ledger].
func (l *MemoryLedger) Messages(ctx context.Context, contextID string) ([]a2a.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.contexts[contextID]
	out := make([]a2a.Message, len(history))
	for i, m := range history {
		out[i] = m.Clone()
	}
	return out, nil
}

// Delete implements [Ledger].
func (l *MemoryLedger) Delete(ctx context.Context, contextID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.contexts[contextID]; !ok {
		return false, nil
	}
	delete(l.contexts, contextID)
	return true, nil
}
