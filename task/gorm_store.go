// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/go-a2a/a2akit"
)

// TaskModel is the database row of a task. Deleted rows are soft-deleted so
// their ids stay retired.
type TaskModel struct {
	ID        string         `gorm:"primaryKey;size:64"`
	ContextID string         `gorm:"index;size:128"`
	State     string         `gorm:"size:32"`
	Progress  *a2a.Progress  `gorm:"serializer:json"`
	Result    []a2a.Artifact `gorm:"serializer:json"`
	Reason    string         `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName implements gorm's tabler.
func (TaskModel) TableName() string { return "a2a_tasks" }

func newTaskModel(t *a2a.Task) *TaskModel {
	return &TaskModel{
		ID:        t.ID,
		ContextID: t.ContextID,
		State:     string(t.State),
		Progress:  t.Progress,
		Result:    t.Result,
		Reason:    t.Reason,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ToTask converts the row back to a task.
func (m *TaskModel) ToTask() *a2a.Task {
	return &a2a.Task{
		ID:        m.ID,
		ContextID: m.ContextID,
		State:     a2a.TaskState(m.State),
		Progress:  m.Progress,
		Result:    m.Result,
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// GORMStore is a database implementation of Store using GORM.
type GORMStore struct {
	db *gorm.DB

	// locks serializes updates of one task inside this process; the row
	// lock taken in Update covers other processes where the dialect has one.
	locks sync.Map // map[string]*sync.Mutex
}

var _ Store = (*GORMStore)(nil)

// NewGORMStore creates a new GORMStore and migrates its table.
func NewGORMStore(ctx context.Context, db *gorm.DB) (*GORMStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if err := db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return nil, &StoreError{Operation: "migrate", Err: err}
	}
	return &GORMStore{db: db}, nil
}

func (s *GORMStore) lock(taskID string) func() {
	v, _ := s.locks.LoadOrStore(taskID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create implements [Store].
func (s *GORMStore) Create(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task ID cannot be empty")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Unscoped().Model(&TaskModel{}).Where("id = ?", task.ID).Count(&n).Error; err != nil {
			return &StoreError{Operation: "create", TaskID: task.ID, Err: err}
		}
		if n > 0 {
			return ErrTaskExists
		}
		if err := tx.Create(newTaskModel(task)).Error; err != nil {
			return &StoreError{Operation: "create", TaskID: task.ID, Err: err}
		}
		return nil
	})
}

// Get implements [Store].
func (s *GORMStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(taskID)
		}
		return nil, &StoreError{Operation: "get", TaskID: taskID, Err: err}
	}
	return model.ToTask(), nil
}

// Update implements [Store].
func (s *GORMStore) Update(ctx context.Context, taskID string, mutate func(*a2a.Task) error) (*a2a.Task, error) {
	unlock := s.lock(taskID)
	defer unlock()

	var out *a2a.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var model TaskModel
		if err := q.Where("id = ?", taskID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(taskID)
			}
			return &StoreError{Operation: "update", TaskID: taskID, Err: err}
		}

		next := model.ToTask()
		if err := mutate(next); err != nil {
			return err
		}
		if err := tx.Save(newTaskModel(next)).Error; err != nil {
			return &StoreError{Operation: "update", TaskID: taskID, Err: err}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements [Store].
func (s *GORMStore) Delete(ctx context.Context, taskID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&TaskModel{})
	if result.Error != nil {
		return &StoreError{Operation: "delete", TaskID: taskID, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return notFound(taskID)
	}
	return nil
}

// List implements [Store].
func (s *GORMStore) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	db := s.db.WithContext(ctx)
	if contextID != "" {
		db = db.Where("context_id = ?", contextID)
	}

	var models []TaskModel
	if err := db.Order("created_at, id").Find(&models).Error; err != nil {
		return nil, &StoreError{Operation: "list", Err: fmt.Errorf("context %q: %w", contextID, err)}
	}

	tasks := make([]*a2a.Task, len(models))
	for i := range models {
		tasks[i] = models[i].ToTask()
	}
	return tasks, nil
}
