// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"

	"github.com/go-a2a/a2akit"
)

var (
	// ErrTaskExists is returned when registering an id that was already used,
	// including ids of deleted tasks.
	ErrTaskExists = errors.New("task id already used")

	// ErrInvalidTransition is returned for an update whose state change has no
	// edge in the task state graph.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrTaskTerminal is returned, together with the current snapshot, when an
	// update hits a task in a terminal state. Only UpdatedAt advanced.
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	TaskID string
	From   a2a.TaskState
	To     a2a.TaskState
}

// Error returns the error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// Is makes TransitionError match [ErrInvalidTransition].
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StoreError represents an error from a task store backend.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("task store %s operation failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", a2a.ErrTaskNotFound, id)
}
