// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-a2a/a2akit"
)

// Manager exposes the conversation histories to the dispatcher.
type Manager struct {
	ledger Ledger
	logger *slog.Logger
}

// NewManager creates a new Manager over ledger. A nil logger means
// [slog.Default].
func NewManager(ledger Ledger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{ledger: ledger, logger: logger}
}

// Get returns the history of contextID. Unknown contexts have an empty history.
func (m *Manager) Get(ctx context.Context, contextID string) ([]a2a.Message, error) {
	return m.ledger.Messages(ctx, contextID)
}

// Add appends msg to the history of contextID.
func (m *Manager) Add(ctx context.Context, contextID string, msg *a2a.Message) error {
	if contextID == "" {
		return errors.New("context ID cannot be empty")
	}
	if msg == nil {
		return errors.New("message cannot be nil")
	}
	if err := m.ledger.Append(ctx, contextID, msg); err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "message recorded", "context_id", contextID, "message_id", msg.MessageID)
	return nil
}

// Delete drops the whole history of contextID.
func (m *Manager) Delete(ctx context.Context, contextID string) (bool, error) {
	return m.ledger.Delete(ctx, contextID)
}
