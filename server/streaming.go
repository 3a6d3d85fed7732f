// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/internal/pool"
	"github.com/go-a2a/a2akit/task"
)

// streamMessage emits the submitted frame, runs the handler and emits one
// final frame. The channel is closed exactly once on every path.
func (d *Dispatcher) streamMessage(ctx context.Context, p *a2a.MessageSendParams) (<-chan *a2a.StatusUpdateEvent, error) {
	msg := prepare(p.Message)
	if msg.ContextID == "" {
		msg.ContextID = uuid.NewString()
	}
	taskID := uuid.NewString()
	msg.TaskID = taskID

	t, err := d.tasks.Register(ctx, taskID, msg.ContextID)
	if err != nil {
		return nil, err
	}

	events := make(chan *a2a.StatusUpdateEvent, 2)
	runCtx, cancel := context.WithCancel(withTaskID(ctx, taskID))
	r := d.track(taskID, cancel)

	go func() {
		defer close(events)
		defer d.untrack(taskID, r)

		final := false
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.ErrorContext(ctx, "stream panic", "task_id", taskID, "panic", rec)
				if !final {
					d.emit(ctx, events, d.failedEvent(ctx, t, fmt.Errorf("stream panic: %v", rec)))
				}
			}
		}()

		submitted := &a2a.StatusUpdateEvent{
			Kind:      a2a.KindStatusUpdate,
			TaskID:    taskID,
			ContextID: t.ContextID,
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateSubmitted,
				Timestamp: t.CreatedAt,
			},
			History: []a2a.Message{msg.Clone()},
		}
		if !d.emit(ctx, events, submitted) {
			return
		}

		resp, err := d.invoke(runCtx, &msg)
		var last *a2a.StatusUpdateEvent
		if err != nil {
			last = d.failedEvent(ctx, t, err)
		} else {
			last = d.resolvedEvent(ctx, &msg, t, resp)
		}
		final = true
		d.emit(ctx, events, last)
	}()

	return events, nil
}

// emit sends ev unless the peer went away.
func (d *Dispatcher) emit(ctx context.Context, events chan<- *a2a.StatusUpdateEvent, ev *a2a.StatusUpdateEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		d.logger.DebugContext(ctx, "stream consumer gone", "task_id", ev.TaskID)
		return false
	}
}

// record writes u and returns the resulting task. Writes that hit a task
// canceled meanwhile report the canceled task.
func (d *Dispatcher) record(ctx context.Context, t *a2a.Task, u task.Update) *a2a.Task {
	got, err := d.tasks.Update(context.WithoutCancel(ctx), t.ID, u)
	switch {
	case err == nil, errors.Is(err, task.ErrTaskTerminal):
		return got
	}

	d.logger.ErrorContext(ctx, "record stream outcome", "task_id", t.ID, "error", err)
	fallback := t.Clone()
	if u.State != "" {
		fallback.State = u.State
	}
	fallback.Progress = u.Progress
	fallback.Result = u.Result
	fallback.Reason = u.Reason
	fallback.UpdatedAt = time.Now().UTC()
	return fallback
}

func (d *Dispatcher) failedEvent(ctx context.Context, t *a2a.Task, err error) *a2a.StatusUpdateEvent {
	got := d.record(ctx, t, outcome(nil, err))
	text := a2a.ErrorFrom(err).Message
	if got.Progress != nil && got.Progress.Message != "" {
		text = got.Progress.Message
	}
	ev := finalEvent(got)
	ev.Status.Message = &a2a.Message{
		Role:      a2a.RoleAgent,
		MessageID: uuid.NewString(),
		ContextID: got.ContextID,
		TaskID:    got.ID,
		Parts:     []a2a.Part{a2a.NewTextPart(text)},
	}
	return ev
}

func (d *Dispatcher) resolvedEvent(ctx context.Context, msg *a2a.Message, t *a2a.Task, resp *a2a.Response) *a2a.StatusUpdateEvent {
	if resp.Kind() == a2a.KindMessage {
		got := d.record(ctx, t, task.Update{
			State:    a2a.TaskStateCompleted,
			Progress: &a2a.Progress{Percentage: 100, Message: "completed"},
		})
		ev := finalEvent(got)
		ev.Status.Message = &a2a.Message{
			Role:      a2a.RoleAgent,
			MessageID: resp.Message.MessageID,
			ContextID: got.ContextID,
			TaskID:    got.ID,
			Parts:     resp.Message.Parts,
		}
		return ev
	}

	got := d.record(ctx, t, outcome(resp, nil))
	if got.State == a2a.TaskStateWorking {
		d.continueTask(ctx, got.ID, got.ContextID, *msg)
	}
	ev := finalEvent(got)
	ev.Status.Message = resp.Task.Status.Message
	ev.History = resp.Task.History
	return ev
}

func finalEvent(t *a2a.Task) *a2a.StatusUpdateEvent {
	snap := t.Snapshot()
	return &a2a.StatusUpdateEvent{
		Kind:      a2a.KindStatusUpdate,
		TaskID:    t.ID,
		ContextID: t.ContextID,
		Status:    snap.Status,
		Artifacts: snap.Artifacts,
		Final:     true,
	}
}

// sseWriter writes JSON-RPC responses as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For Nginx proxy
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteResponse writes one "data:" frame.
func (s *sseWriter) WriteResponse(resp *a2a.JSONRPCResponse) error {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	buf.WriteString("data: ")
	if err := json.MarshalWrite(buf, resp); err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	buf.WriteString("\n\n")

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
