// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/server"
)

// taskThreshold is the text length, in runes, above which a message becomes a task.
const taskThreshold = 40

// echoAgent echoes short messages and turns long ones into tasks.
type echoAgent struct {
	delay  time.Duration
	logger *slog.Logger
}

var _ a2a.Handler = (*echoAgent)(nil)

func (a *echoAgent) Handle(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
	text := msg.Text()
	if utf8.RuneCountInString(text) <= taskThreshold {
		return a2a.NewMessageResponse(uuid.NewString(), msg.ContextID, a2a.NewTextPart("Echo: "+text)), nil
	}
	// continuations and streams run with the task id in ctx
	if taskID, ok := server.TaskIDFromContext(ctx); ok {
		return a.work(ctx, taskID, text)
	}

	return a2a.NewTaskResponse(&a2a.TaskResponse{
		ID:        msg.TaskID,
		ContextID: msg.ContextID,
		Status: a2a.TaskStatus{
			State:    a2a.TaskStateWorking,
			Progress: &a2a.Progress{Percentage: 0, Message: "echoing"},
		},
	}), nil
}

// work runs the asynchronous part of a task.
func (a *echoAgent) work(ctx context.Context, taskID, text string) (*a2a.Response, error) {
	a.logger.DebugContext(ctx, "working on task", "task_id", taskID, "delay", a.delay)

	timer := time.NewTimer(a.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-timer.C:
	}

	return a2a.NewTaskResponse(&a2a.TaskResponse{
		ID: taskID,
		Status: a2a.TaskStatus{
			State:    a2a.TaskStateCompleted,
			Progress: &a2a.Progress{Percentage: 100, Message: "done"},
		},
		Artifacts: []a2a.Artifact{{
			ArtifactID: "echo",
			Name:       "echo",
			Parts:      []a2a.Part{a2a.NewTextPart("Echo: " + text)},
		}},
	}), nil
}
