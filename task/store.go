// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the task record store and the task lifecycle
// manager that enforces the task state machine.
package task

import (
	"context"

	"github.com/go-a2a/a2akit"
)

// Store defines the interface for task persistence operations.
//
// Implementations hand out copies: mutating a returned task never changes
// the stored record. Updates to one task id are serialized, so readers
// observe them in the order they were applied.
type Store interface {
	// Create persists a new task.
	// Returns ErrTaskExists if the id was ever used, even by a deleted task.
	Create(ctx context.Context, task *a2a.Task) error

	// Get retrieves a task by its ID.
	// Returns an error matching a2a.ErrTaskNotFound if the task doesn't exist.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Update applies mutate to a copy of the task while holding the task's
	// lock, and persists the copy if mutate returns nil.
	Update(ctx context.Context, taskID string, mutate func(*a2a.Task) error) (*a2a.Task, error)

	// Delete removes a task. The id stays retired.
	// Returns an error matching a2a.ErrTaskNotFound if the task doesn't exist.
	Delete(ctx context.Context, taskID string) error

	// List returns the tasks of one context ordered by creation time.
	// An empty contextID lists every task.
	List(ctx context.Context, contextID string) ([]*a2a.Task, error)
}
