// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/go-a2a/a2akit"
)

// record owns one task. Its mutex serializes every read-modify-write of the task.
type record struct {
	mu      sync.Mutex
	task    *a2a.Task
	deleted bool
}

// MemoryStore is an in-memory implementation of Store.
// Task data is lost when the process stops.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	retired map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		retired: make(map[string]struct{}),
	}
}

// Create implements [Store].
func (s *MemoryStore) Create(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[task.ID]; ok {
		return ErrTaskExists
	}
	if _, ok := s.retired[task.ID]; ok {
		return ErrTaskExists
	}
	s.records[task.ID] = &record{task: task.Clone()}
	return nil
}

func (s *MemoryStore) lookup(taskID string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	return rec, ok
}

// Get implements [Store].
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	rec, ok := s.lookup(taskID)
	if !ok {
		return nil, notFound(taskID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, notFound(taskID)
	}
	return rec.task.Clone(), nil
}

// Update implements [Store].
func (s *MemoryStore) Update(ctx context.Context, taskID string, mutate func(*a2a.Task) error) (*a2a.Task, error) {
	rec, ok := s.lookup(taskID)
	if !ok {
		return nil, notFound(taskID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, notFound(taskID)
	}

	next := rec.task.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	rec.task = next
	return next.Clone(), nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	rec, ok := s.records[taskID]
	if ok {
		delete(s.records, taskID)
		s.retired[taskID] = struct{}{}
	}
	s.mu.Unlock()

	if !ok {
		return notFound(taskID)
	}

	rec.mu.Lock()
	rec.deleted = true
	rec.mu.Unlock()
	return nil
}

// List implements [Store].
func (s *MemoryStore) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	tasks := make([]*a2a.Task, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted && (contextID == "" || rec.task.ContextID == contextID) {
			tasks = append(tasks, rec.task.Clone())
		}
		rec.mu.Unlock()
	}

	slices.SortFunc(tasks, func(a, b *a2a.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return tasks, nil
}
