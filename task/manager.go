// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/go-a2a/a2akit"
)

// Update carries the fields of a task update. Zero fields are left untouched.
type Update struct {
	State    a2a.TaskState
	Progress *a2a.Progress
	Result   []a2a.Artifact
	Reason   string
}

// Manager owns the lifecycle of tasks and enforces the task state graph on
// top of a [Store].
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a [Manager].
type Option func(*Manager)

// WithLogger sets the logger of the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces the wall clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new task manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Create creates a new working task with a fresh id.
func (m *Manager) Create(ctx context.Context, contextID string) (*a2a.Task, error) {
	return m.Register(ctx, uuid.NewString(), contextID)
}

// Register creates a new working task with a caller-chosen id.
// It returns [ErrTaskExists] if the id was ever used.
func (m *Manager) Register(ctx context.Context, taskID, contextID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}

	now := m.now().UTC()
	t := &a2a.Task{
		ID:        taskID,
		ContextID: contextID,
		State:     a2a.TaskStateWorking,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "task created", "task_id", taskID, "context_id", contextID)
	return t.Clone(), nil
}

// Get returns a copy of the task.
func (m *Manager) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	return m.store.Get(ctx, taskID)
}

// List returns the tasks of one context, oldest first.
func (m *Manager) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	return m.store.List(ctx, contextID)
}

// stamp returns the timestamp of the next write, never earlier than prev.
func (m *Manager) stamp(prev time.Time) time.Time {
	now := m.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// Update applies u to the task and refreshes its UpdatedAt.
//
// A task in a terminal state is never changed again: the write is absorbed,
// only UpdatedAt advances, and the snapshot is returned together with
// [ErrTaskTerminal].
func (m *Manager) Update(ctx context.Context, taskID string, u Update) (*a2a.Task, error) {
	if u.State != "" && !u.State.Valid() {
		return nil, fmt.Errorf("invalid task state %q", u.State)
	}

	var absorbed bool
	var from a2a.TaskState
	t, err := m.store.Update(ctx, taskID, func(t *a2a.Task) error {
		from = t.State
		if t.State.Terminal() {
			absorbed = true
			t.UpdatedAt = m.stamp(t.UpdatedAt)
			return nil
		}
		if u.State != "" && !t.State.CanTransition(u.State) {
			return &TransitionError{TaskID: taskID, From: t.State, To: u.State}
		}

		if u.State != "" {
			t.State = u.State
		}
		if u.Progress != nil {
			p := *u.Progress
			t.Progress = &p
		}
		if u.Result != nil {
			t.Result = a2a.CloneArtifacts(u.Result)
		}
		if u.Reason != "" {
			t.Reason = u.Reason
		}
		t.UpdatedAt = m.stamp(t.UpdatedAt)
		return nil
	})
	if err != nil {
		m.logger.DebugContext(ctx, "task update rejected", "task_id", taskID, "error", err)
		return nil, err
	}

	if absorbed {
		m.logger.DebugContext(ctx, "late write to terminal task ignored", "task_id", taskID, "state", from)
		return t, ErrTaskTerminal
	}
	if t.State != from {
		m.logger.InfoContext(ctx, "task state changed", "task_id", taskID, "from", from, "to", t.State)
	}
	return t, nil
}

// Cancel moves a non-terminal task to canceled.
// It returns a2a.ErrTaskNotCancelable if the task already reached a terminal state.
func (m *Manager) Cancel(ctx context.Context, taskID, reason string) (*a2a.Task, error) {
	if reason == "" {
		reason = "Task canceled"
	}

	t, err := m.store.Update(ctx, taskID, func(t *a2a.Task) error {
		if t.State.Terminal() {
			return fmt.Errorf("%w: task %s is %s", a2a.ErrTaskNotCancelable, taskID, t.State)
		}
		t.State = a2a.TaskStateCanceled
		t.Progress = &a2a.Progress{Percentage: 100, Message: reason}
		t.UpdatedAt = m.stamp(t.UpdatedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "task canceled", "task_id", taskID)
	return t, nil
}

// Delete removes a task. It reports false if the task did not exist.
// A deleted task's id is never reused.
func (m *Manager) Delete(ctx context.Context, taskID string) (bool, error) {
	if err := m.store.Delete(ctx, taskID); err != nil {
		if errors.Is(err, a2a.ErrTaskNotFound) {
			return false, nil
		}
		return false, err
	}

	m.logger.InfoContext(ctx, "task deleted", "task_id", taskID)
	return true, nil
}
