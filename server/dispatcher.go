// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/conversation"
	"github.com/go-a2a/a2akit/task"
)

// ReasonHandlerTimeout is the task reason recorded when the handler timeout
// forces a task into the error state.
const ReasonHandlerTimeout = "handler_timeout"

// ErrHandlerTimeout is the handler failure reported when a handler outlives
// the configured timeout.
var ErrHandlerTimeout = errors.New("handler timed out")

// Dispatcher routes JSON-RPC requests to the A2A methods and drives the task
// lifecycle around the injected [a2a.Handler].
type Dispatcher struct {
	handler        a2a.Handler
	tasks          *task.Manager
	conversations  *conversation.Manager
	logger         *slog.Logger
	handlerTimeout time.Duration

	methods map[string]methodHandler
	streams map[string]streamHandler

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
}

// DispatcherConfig holds the collaborators of a [Dispatcher]. Nil managers
// default to in-memory ones.
type DispatcherConfig struct {
	Tasks          *task.Manager
	Conversations  *conversation.Manager
	Logger         *slog.Logger
	HandlerTimeout time.Duration
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(handler a2a.Handler, cfg DispatcherConfig) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tasks == nil {
		cfg.Tasks = task.NewManager(task.NewMemoryStore(), task.WithLogger(cfg.Logger))
	}
	if cfg.Conversations == nil {
		cfg.Conversations = conversation.NewManager(conversation.NewMemoryLedger(), cfg.Logger)
	}

	d := &Dispatcher{
		handler:        handler,
		tasks:          cfg.Tasks,
		conversations:  cfg.Conversations,
		logger:         cfg.Logger,
		handlerTimeout: cfg.HandlerTimeout,
		running:        make(map[string]*run),
	}
	d.methods = map[string]methodHandler{
		a2a.MethodMessageSend: method[a2a.MessageSendParams, *a2a.MessageSendParams, *a2a.Response]{fn: d.sendMessage},
		a2a.MethodTasksGet:    method[a2a.TaskIDParams, *a2a.TaskIDParams, *a2a.TaskResponse]{fn: d.getTask},
		a2a.MethodTasksCancel: method[a2a.TaskIDParams, *a2a.TaskIDParams, any]{fn: d.cancelTask},
	}
	d.streams = map[string]streamHandler{
		a2a.MethodMessageStream: streamMethod[a2a.MessageSendParams, *a2a.MessageSendParams]{fn: d.streamMessage},
	}
	return d, nil
}

// Tasks returns the task manager.
func (d *Dispatcher) Tasks() *task.Manager { return d.tasks }

// Conversations returns the conversation manager.
func (d *Dispatcher) Conversations() *conversation.Manager { return d.conversations }

// IsStream reports whether method answers with an event stream.
func (d *Dispatcher) IsStream(method string) bool {
	_, ok := d.streams[method]
	return ok
}

// Dispatch executes a unary request and returns its response. It never
// returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *a2a.Request) *a2a.JSONRPCResponse {
	if err := req.Validate(); err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.NewInvalidRequestError(err.Error()))
	}

	m, ok := d.methods[req.Method]
	if !ok {
		d.logger.DebugContext(ctx, "method not found", "method", req.Method)
		return a2a.NewErrorResponse(req.ID, a2a.NewMethodNotFoundError(req.Method))
	}

	result, err := m.call(ctx, req.Params)
	if err != nil {
		rpcErr := a2a.ErrorFrom(err)
		d.logger.InfoContext(ctx, "request failed", "method", req.Method, "code", rpcErr.Code, "error", err)
		return a2a.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := a2a.NewResultResponse(req.ID, result)
	if err != nil {
		d.logger.ErrorContext(ctx, "encode result", "method", req.Method, "error", err)
		return a2a.NewErrorResponse(req.ID, a2a.NewError(a2a.InternalErrorCode, "Internal error"))
	}
	return resp
}

// OpenStream starts a streaming request. Errors that happen before the first
// event are returned as a wire error.
func (d *Dispatcher) OpenStream(ctx context.Context, req *a2a.Request) (<-chan *a2a.StatusUpdateEvent, *a2a.Error) {
	if err := req.Validate(); err != nil {
		return nil, a2a.NewInvalidRequestError(err.Error())
	}
	s, ok := d.streams[req.Method]
	if !ok {
		return nil, a2a.NewMethodNotFoundError(req.Method)
	}
	events, err := s.open(ctx, req.Params)
	if err != nil {
		return nil, a2a.ErrorFrom(err)
	}
	return events, nil
}

// Wait blocks until every asynchronous continuation has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invoke runs the handler. Panics, errors and timeouts come back as
// [*a2a.HandlerError]. If ctx ends first invoke returns without waiting for
// the handler.
func (d *Dispatcher) invoke(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d.handlerTimeout, ErrHandlerTimeout)
		defer cancel()
	}

	type result struct {
		resp *a2a.Response
		err  error
	}
	done := make(chan result, 1)
	in := msg.Clone()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.ErrorContext(ctx, "handler panic", "panic", r, "stack", string(debug.Stack()))
				done <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		resp, err := d.handler.Handle(ctx, &in)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = context.Cause(ctx)
	}

	if res.err != nil {
		if errors.Is(context.Cause(ctx), ErrHandlerTimeout) {
			res.err = ErrHandlerTimeout
		}
		return nil, &a2a.HandlerError{Err: res.err}
	}
	if err := res.resp.Validate(); err != nil {
		return nil, &a2a.HandlerError{Err: err}
	}
	return res.resp, nil
}

// prepare fills the ids a peer may leave out.
func prepare(msg a2a.Message) a2a.Message {
	if msg.Role == "" {
		msg.Role = a2a.RoleUser
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	return msg
}

func (d *Dispatcher) sendMessage(ctx context.Context, p *a2a.MessageSendParams) (*a2a.Response, error) {
	msg := prepare(p.Message)

	resp, err := d.invoke(ctx, &msg)
	if err != nil {
		return nil, err
	}

	if resp.Kind() == a2a.KindTask {
		return d.recordTask(ctx, &msg, resp.Task)
	}

	reply := *resp.Message
	contextID := msg.ContextID
	if contextID == "" {
		contextID = reply.ContextID
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}
	msg.ContextID = contextID
	if err := d.conversations.Add(ctx, contextID, &msg); err != nil {
		return nil, err
	}
	reply.ContextID = contextID
	return &a2a.Response{Message: &reply}, nil
}

// handlerState maps a state reported by a handler onto the task graph.
func handlerState(st a2a.TaskState) a2a.TaskState {
	if st == a2a.TaskStateSubmitted {
		return a2a.TaskStateWorking
	}
	return st
}

// recordTask registers or updates the task reported by the handler and
// starts its continuation if the handler left it working.
func (d *Dispatcher) recordTask(ctx context.Context, msg *a2a.Message, tr *a2a.TaskResponse) (*a2a.Response, error) {
	taskID := tr.ID
	if taskID == "" {
		taskID = msg.TaskID
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}
	contextID := tr.ContextID
	if contextID == "" {
		contextID = msg.ContextID
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	state := handlerState(tr.Status.State)
	existing, err := d.tasks.Get(ctx, taskID)
	switch {
	case errors.Is(err, a2a.ErrTaskNotFound):
		if _, err := d.tasks.Register(ctx, taskID, contextID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existing.State == a2a.TaskStateInputRequired && state != a2a.TaskStateInputRequired:
		// the answer resumes the task; only working may follow input-required
		if _, err := d.tasks.Update(ctx, taskID, task.Update{State: a2a.TaskStateWorking}); err != nil && !errors.Is(err, task.ErrTaskTerminal) {
			return nil, err
		}
	}

	t, err := d.tasks.Update(ctx, taskID, task.Update{
		State:    state,
		Progress: tr.Status.Progress,
		Result:   tr.Artifacts,
		Reason:   tr.Status.Reason,
	})
	if err != nil && !errors.Is(err, task.ErrTaskTerminal) {
		return nil, err
	}

	if t.State == a2a.TaskStateWorking {
		d.continueTask(ctx, t.ID, t.ContextID, *msg)
	}

	snap := t.Snapshot()
	snap.Status.Message = tr.Status.Message
	snap.History = tr.History
	return &a2a.Response{Task: snap}, nil
}

// run is the cancelable work in flight for one task.
type run struct {
	cancel context.CancelFunc
}

// track registers the work running for taskID, replacing earlier work.
func (d *Dispatcher) track(taskID string, cancel context.CancelFunc) *run {
	r := &run{cancel: cancel}
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.running[taskID]; ok {
		prev.cancel()
	}
	d.running[taskID] = r
	return r
}

// untrack releases r. Later work registered for the same task is kept.
func (d *Dispatcher) untrack(taskID string, r *run) {
	r.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[taskID] == r {
		delete(d.running, taskID)
	}
}

// interrupt cancels whatever runs for taskID.
func (d *Dispatcher) interrupt(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.running[taskID]; ok {
		r.cancel()
		delete(d.running, taskID)
	}
}

// continueTask runs the handler again for a working task, detached from the
// request that created it, and records the outcome with exactly one write.
func (d *Dispatcher) continueTask(parent context.Context, taskID, contextID string, msg a2a.Message) {
	ctx, cancel := context.WithCancel(withTaskID(context.WithoutCancel(parent), taskID))
	r := d.track(taskID, cancel)

	msg.TaskID = taskID
	msg.ContextID = contextID

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.untrack(taskID, r)

		resp, err := d.invoke(ctx, &msg)
		u := outcome(resp, err)

		// the write must land even if the task was canceled meanwhile
		_, err = d.tasks.Update(context.WithoutCancel(ctx), taskID, u)
		switch {
		case errors.Is(err, task.ErrTaskTerminal):
			d.logger.InfoContext(ctx, "continuation finished after task ended", "task_id", taskID)
		case err != nil:
			d.logger.ErrorContext(ctx, "record continuation outcome", "task_id", taskID, "error", err)
		}
	}()
}

// outcome converts the result of a continuation into the task update.
func outcome(resp *a2a.Response, err error) task.Update {
	switch {
	case errors.Is(err, ErrHandlerTimeout):
		return task.Update{
			State:    a2a.TaskStateError,
			Progress: &a2a.Progress{Percentage: 100, Message: ErrHandlerTimeout.Error()},
			Reason:   ReasonHandlerTimeout,
		}
	case err != nil:
		return task.Update{
			State:    a2a.TaskStateError,
			Progress: &a2a.Progress{Percentage: 100, Message: a2a.ErrorFrom(err).Message},
		}
	case resp.Kind() != a2a.KindTask:
		return task.Update{
			State:    a2a.TaskStateError,
			Progress: &a2a.Progress{Percentage: 100, Message: "handler returned a non-task result"},
		}
	}
	return task.Update{
		State:    handlerState(resp.Task.Status.State),
		Progress: resp.Task.Status.Progress,
		Result:   resp.Task.Artifacts,
		Reason:   resp.Task.Status.Reason,
	}
}

func (d *Dispatcher) getTask(ctx context.Context, p *a2a.TaskIDParams) (*a2a.TaskResponse, error) {
	t, err := d.tasks.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return t.Snapshot(), nil
}

func (d *Dispatcher) cancelTask(ctx context.Context, p *a2a.TaskIDParams) (any, error) {
	if _, err := d.tasks.Cancel(ctx, p.ID, "Task canceled"); err != nil {
		return nil, err
	}
	// advisory: the handler may ignore it, its late write is absorbed
	d.interrupt(p.ID)
	return nil, nil
}
