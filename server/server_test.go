// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/auth"
)

var testCard = a2a.AgentCard{
	Name:    "Echo Agent",
	URL:     "http://localhost:41241",
	Version: "1.0.0",
	Skills: []a2a.AgentSkill{{
		ID:   "echo",
		Name: "Echo",
		Tags: []string{"echo"},
	}},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoHandler() a2a.Handler {
	return a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		return a2a.NewMessageResponse("reply-1", msg.ContextID, a2a.NewTextPart("Echo: "+msg.Text())), nil
	})
}

func newTestServer(t *testing.T, h a2a.Handler, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	srv, err := NewServer(testCard, h, opts...)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func rpcBody(t *testing.T, id int64, method string, params any) string {
	t.Helper()
	req, err := a2a.NewRequest(a2a.NewNumberID(id), method, params)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(b)
}

func post(t *testing.T, srv http.Handler, body string) (int, *a2a.JSONRPCResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	var resp a2a.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, &resp
}

func sendText(t *testing.T, srv http.Handler, text string) (int, *a2a.JSONRPCResponse) {
	t.Helper()
	return post(t, srv, rpcBody(t, 1, a2a.MethodMessageSend, a2a.MessageSendParams{
		Message: a2a.Message{
			Role:      a2a.RoleUser,
			MessageID: "m1",
			Parts:     []a2a.Part{a2a.NewTextPart(text)},
		},
	}))
}

func getTask(t *testing.T, srv http.Handler, id string) *a2a.TaskResponse {
	t.Helper()
	code, resp := post(t, srv, rpcBody(t, 2, a2a.MethodTasksGet, a2a.TaskIDParams{ID: id}))
	if code != http.StatusOK {
		t.Fatalf("tasks/get status = %d, error = %v", code, resp.Error)
	}
	var tr a2a.TaskResponse
	if err := resp.DecodeResult(&tr); err != nil {
		t.Fatalf("tasks/get result: %v", err)
	}
	return &tr
}

// waitForState polls tasks/get until the task reaches want.
func waitForState(t *testing.T, srv http.Handler, id string, want a2a.TaskState) *a2a.TaskResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		tr := getTask(t, srv, id)
		if tr.Status.State == want {
			return tr
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s state = %s, want %s", id, tr.Status.State, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAgentCard(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	fetch := func() []byte {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, a2a.AgentCardWellKnownPath, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET agent card status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		return rec.Body.Bytes()
	}

	first := fetch()
	var card a2a.AgentCard
	if err := json.Unmarshal(first, &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Name != testCard.Name || card.SchemaVersion != a2a.AgentCardSchemaVersion {
		t.Errorf("card = %+v", card)
	}
	if !card.Capabilities.Streaming {
		t.Error("served card does not advertise streaming")
	}
	if second := fetch(); !bytes.Equal(first, second) {
		t.Error("agent card changed between requests")
	}
}

func TestNewServerRejectsInvalidCard(t *testing.T) {
	if _, err := NewServer(a2a.AgentCard{Version: "1"}, echoHandler()); err == nil {
		t.Error("NewServer(card without name) error = nil, want error")
	}
	if _, err := NewServer(testCard, nil); err == nil {
		t.Error("NewServer(nil handler) error = nil, want error")
	}
}

func TestNewServerRejectsBadEndpoint(t *testing.T) {
	card := testCard
	card.Endpoints = a2a.Endpoints{Base: "rpc"}
	if _, err := NewServer(card, echoHandler()); err == nil {
		t.Error("NewServer(relative base path) error = nil, want error")
	}
}

func TestCustomEndpoints(t *testing.T) {
	card := testCard
	card.Endpoints = a2a.Endpoints{Base: "/rpc", AgentCard: "/card"}
	srv, err := NewServer(card, echoHandler(), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	for _, path := range []string{a2a.AgentCardWellKnownPath, "/card"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	body := rpcBody(t, 1, a2a.MethodTasksGet, a2a.TaskIDParams{ID: "missing"})
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)))
	var resp a2a.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if resp.Error == nil || !errors.Is(resp.Error, a2a.ErrTaskNotFound) {
		t.Errorf("POST /rpc error = %v, want task not found", resp.Error)
	}
}

func TestMessageSendEcho(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	code, resp := sendText(t, srv, "hi")
	if code != http.StatusOK {
		t.Fatalf("status = %d, error = %v", code, resp.Error)
	}
	if got := resp.ID.String(); got != "1" {
		t.Errorf("response id = %q, want %q", got, "1")
	}

	var got a2a.Response
	if err := resp.DecodeResult(&got); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if got.Kind() != a2a.KindMessage {
		t.Fatalf("result kind = %q, want %q", got.Kind(), a2a.KindMessage)
	}
	if diff := cmp.Diff([]a2a.Part{a2a.NewTextPart("Echo: hi")}, got.Message.Parts); diff != "" {
		t.Errorf("reply parts mismatch (-want +got):\n%s", diff)
	}
	contextID := got.Message.ContextID
	if contextID == "" {
		t.Fatal("reply has no context id")
	}

	history, err := srv.Dispatcher().Conversations().Get(t.Context(), contextID)
	if err != nil {
		t.Fatalf("Conversations().Get() error = %v", err)
	}
	if len(history) != 1 || history[0].Text() != "hi" {
		t.Errorf("conversation = %+v, want the inbound message", history)
	}

	tasks, err := srv.Dispatcher().Tasks().List(t.Context(), "")
	if err != nil {
		t.Fatalf("Tasks().List() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("message reply created %d tasks, want 0", len(tasks))
	}
}

func TestMessageSendKeepsContextID(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	for range 2 {
		_, resp := post(t, srv, rpcBody(t, 1, a2a.MethodMessageSend, a2a.MessageSendParams{
			Message: a2a.Message{MessageID: "m", ContextID: "ctx-1", Parts: []a2a.Part{a2a.NewTextPart("hi")}},
		}))
		var got a2a.Response
		if err := resp.DecodeResult(&got); err != nil {
			t.Fatalf("DecodeResult() error = %v", err)
		}
		if got.Message.ContextID != "ctx-1" {
			t.Errorf("reply context = %q, want ctx-1", got.Message.ContextID)
		}
	}

	history, err := srv.Dispatcher().Conversations().Get(t.Context(), "ctx-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("conversation has %d entries, want 2", len(history))
	}
	for _, m := range history {
		if m.Role != a2a.RoleUser {
			t.Errorf("recorded role = %q, want %q", m.Role, a2a.RoleUser)
		}
	}
}

// workingHandler answers with a working task and completes it on the
// continuation. release gates the continuation.
func workingHandler(release <-chan struct{}) a2a.Handler {
	return a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		if taskID, ok := TaskIDFromContext(ctx); ok {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return a2a.NewTaskResponse(&a2a.TaskResponse{
				ID: taskID,
				Status: a2a.TaskStatus{
					State:    a2a.TaskStateCompleted,
					Progress: &a2a.Progress{Percentage: 100, Message: "done"},
				},
				Artifacts: []a2a.Artifact{{ArtifactID: "out", Parts: []a2a.Part{a2a.NewTextPart(strings.ToUpper(msg.Text()))}}},
			}), nil
		}
		return a2a.NewTaskResponse(&a2a.TaskResponse{
			Status: a2a.TaskStatus{
				State:    a2a.TaskStateWorking,
				Progress: &a2a.Progress{Percentage: 0, Message: "started"},
			},
		}), nil
	})
}

func sendForTask(t *testing.T, srv http.Handler, text string) *a2a.TaskResponse {
	t.Helper()
	code, resp := sendText(t, srv, text)
	if code != http.StatusOK {
		t.Fatalf("status = %d, error = %v", code, resp.Error)
	}
	var got a2a.Response
	if err := resp.DecodeResult(&got); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if got.Kind() != a2a.KindTask {
		t.Fatalf("result kind = %q, want %q", got.Kind(), a2a.KindTask)
	}
	return got.Task
}

func TestMessageSendWorkingTaskCompletes(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, workingHandler(release))

	tr := sendForTask(t, srv, "long job")
	if tr.Status.State != a2a.TaskStateWorking {
		t.Fatalf("initial state = %s, want %s", tr.Status.State, a2a.TaskStateWorking)
	}
	if tr.ID == "" {
		t.Fatal("task has no id")
	}
	if got := getTask(t, srv, tr.ID).Status.State; got != a2a.TaskStateWorking {
		t.Errorf("state before release = %s, want %s", got, a2a.TaskStateWorking)
	}

	close(release)
	done := waitForState(t, srv, tr.ID, a2a.TaskStateCompleted)
	if diff := cmp.Diff(&a2a.Progress{Percentage: 100, Message: "done"}, done.Status.Progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	wantArtifacts := []a2a.Artifact{{ArtifactID: "out", Parts: []a2a.Part{a2a.NewTextPart("LONG JOB")}}}
	if diff := cmp.Diff(wantArtifacts, done.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
	if done.Status.Timestamp.Before(tr.Status.Timestamp) {
		t.Errorf("timestamp went backwards: %v < %v", done.Status.Timestamp, tr.Status.Timestamp)
	}
}

func TestCancelTask(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := newTestServer(t, workingHandler(release))

	tr := sendForTask(t, srv, "long job")

	code, resp := post(t, srv, rpcBody(t, 3, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: tr.ID}))
	if code != http.StatusOK || resp.Error != nil {
		t.Fatalf("tasks/cancel = %d, %v", code, resp.Error)
	}
	if got := string(resp.Result); got != "null" {
		t.Errorf("tasks/cancel result = %s, want null", got)
	}

	got := getTask(t, srv, tr.ID)
	if got.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state = %s, want %s", got.Status.State, a2a.TaskStateCanceled)
	}
	if diff := cmp.Diff(&a2a.Progress{Percentage: 100, Message: "Task canceled"}, got.Status.Progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	// the continuation's late write must not revive the task
	if err := srv.Dispatcher().Wait(t.Context()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := getTask(t, srv, tr.ID).Status.State; got != a2a.TaskStateCanceled {
		t.Errorf("state after continuation = %s, want %s", got, a2a.TaskStateCanceled)
	}

	code, resp = post(t, srv, rpcBody(t, 4, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: tr.ID}))
	if code != http.StatusInternalServerError || resp.Error == nil || resp.Error.Code != a2a.TaskNotCancelableErrorCode {
		t.Errorf("second cancel = %d, %+v, want 500 and code %d", code, resp.Error, a2a.TaskNotCancelableErrorCode)
	}
}

func TestTaskNotFound(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	for _, method := range []string{a2a.MethodTasksGet, a2a.MethodTasksCancel} {
		t.Run(method, func(t *testing.T) {
			code, resp := post(t, srv, rpcBody(t, 7, method, a2a.TaskIDParams{ID: "bogus"}))
			if code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", code, http.StatusInternalServerError)
			}
			want := &a2a.Error{Code: a2a.ServerErrorCode, Message: "Task not found"}
			if diff := cmp.Diff(want, resp.Error); diff != "" {
				t.Errorf("error mismatch (-want +got):\n%s", diff)
			}
			if got := resp.ID.String(); got != "7" {
				t.Errorf("id = %q, want 7", got)
			}
		})
	}
}

func TestRPCErrors(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	tests := map[string]struct {
		body       string
		wantStatus int
		wantCode   int
	}{
		"unknown method": {
			body:       `{"jsonrpc":"2.0","id":"abc","method":"tasks/frobnicate","params":{}}`,
			wantStatus: http.StatusNotFound,
			wantCode:   a2a.MethodNotFoundErrorCode,
		},
		"unparseable body": {
			body:       `{"jsonrpc":"2.0",`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.JSONParseErrorCode,
		},
		"wrong version": {
			body:       `{"jsonrpc":"1.0","id":1,"method":"tasks/get","params":{"id":"x"}}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.InvalidRequestErrorCode,
		},
		"object id": {
			body:       `{"jsonrpc":"2.0","id":{},"method":"tasks/get","params":{"id":"x"}}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.InvalidRequestErrorCode,
		},
		"message without parts": {
			body:       `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","messageId":"m","parts":[]}}}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.InvalidParamsErrorCode,
		},
		"missing params": {
			body:       `{"jsonrpc":"2.0","id":1,"method":"tasks/get"}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.InvalidParamsErrorCode,
		},
		"empty task id": {
			body:       `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":""}}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   a2a.InvalidParamsErrorCode,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			code, resp := post(t, srv, tt.body)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if resp.Error == nil {
				t.Fatalf("response has no error: %s", resp.Result)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.Error.Code, tt.wantCode)
			}
			if len(resp.Result) != 0 {
				t.Errorf("error response also carries a result: %s", resp.Result)
			}
		})
	}
}

func TestUnknownMethodEchoesStringID(t *testing.T) {
	srv := newTestServer(t, echoHandler())
	_, resp := post(t, srv, `{"jsonrpc":"2.0","id":"req-42","method":"nope"}`)
	if got := resp.ID.String(); got != "req-42" {
		t.Errorf("id = %q, want req-42", got)
	}
}

func TestHandlerFailure(t *testing.T) {
	tests := map[string]struct {
		handler a2a.HandlerFunc
		want    string
	}{
		"error": {
			handler: func(context.Context, *a2a.Message) (*a2a.Response, error) {
				return nil, errors.New("agent exploded")
			},
			want: "agent exploded",
		},
		"panic": {
			handler: func(context.Context, *a2a.Message) (*a2a.Response, error) {
				panic("boom")
			},
			want: "handler panic: boom",
		},
		"invalid response": {
			handler: func(context.Context, *a2a.Message) (*a2a.Response, error) {
				return &a2a.Response{}, nil
			},
			want: "response must carry exactly one of message or task",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, tt.handler)
			code, resp := sendText(t, srv, "hi")
			if code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", code, http.StatusInternalServerError)
			}
			want := &a2a.Error{Code: a2a.ServerErrorCode, Message: tt.want}
			if diff := cmp.Diff(want, resp.Error); diff != "" {
				t.Errorf("error mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContinuationFailureMarksError(t *testing.T) {
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		if _, ok := TaskIDFromContext(ctx); ok {
			return nil, errors.New("backend down")
		}
		return a2a.NewTaskResponse(&a2a.TaskResponse{Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}), nil
	})
	srv := newTestServer(t, h)

	tr := sendForTask(t, srv, "job")
	got := waitForState(t, srv, tr.ID, a2a.TaskStateError)
	if diff := cmp.Diff(&a2a.Progress{Percentage: 100, Message: "backend down"}, got.Status.Progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerTimeout(t *testing.T) {
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		if _, ok := TaskIDFromContext(ctx); ok {
			// ignores cancellation on purpose
			time.Sleep(time.Second)
			return a2a.NewTaskResponse(&a2a.TaskResponse{Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}), nil
		}
		return a2a.NewTaskResponse(&a2a.TaskResponse{Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}), nil
	})
	srv := newTestServer(t, h, WithHandlerTimeout(50*time.Millisecond))

	tr := sendForTask(t, srv, "slow")
	got := waitForState(t, srv, tr.ID, a2a.TaskStateError)
	if got.Status.Reason != ReasonHandlerTimeout {
		t.Errorf("reason = %q, want %q", got.Status.Reason, ReasonHandlerTimeout)
	}
}

func TestResumeInputRequired(t *testing.T) {
	var calls atomic.Int32
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		if calls.Add(1) == 1 {
			return a2a.NewTaskResponse(&a2a.TaskResponse{
				ID:     "t-1",
				Status: a2a.TaskStatus{State: a2a.TaskStateInputRequired},
			}), nil
		}
		return a2a.NewTaskResponse(&a2a.TaskResponse{
			ID:     msg.TaskID,
			Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		}), nil
	})
	srv := newTestServer(t, h)

	first := sendForTask(t, srv, "book a flight")
	if first.ID != "t-1" || first.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("first = %s %s, want t-1 %s", first.ID, first.Status.State, a2a.TaskStateInputRequired)
	}

	_, resp := post(t, srv, rpcBody(t, 2, a2a.MethodMessageSend, a2a.MessageSendParams{
		Message: a2a.Message{MessageID: "m2", TaskID: "t-1", Parts: []a2a.Part{a2a.NewTextPart("to Paris")}},
	}))
	var got a2a.Response
	if err := resp.DecodeResult(&got); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if got.Task == nil || got.Task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("second result = %+v, want completed task", got)
	}
}

func TestResumeFailureKeepsInputRequired(t *testing.T) {
	tests := map[string]a2a.HandlerFunc{
		"error": func(context.Context, *a2a.Message) (*a2a.Response, error) {
			return nil, errors.New("boom")
		},
		"message reply": func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
			return a2a.NewMessageResponse("r-2", msg.ContextID, a2a.NewTextPart("which city?")), nil
		},
	}

	for name, answer := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
				switch calls.Add(1) {
				case 1:
					return a2a.NewTaskResponse(&a2a.TaskResponse{
						ID:     "t-1",
						Status: a2a.TaskStatus{State: a2a.TaskStateInputRequired},
					}), nil
				case 2:
					return answer(ctx, msg)
				}
				return a2a.NewTaskResponse(&a2a.TaskResponse{
					ID:     msg.TaskID,
					Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
				}), nil
			})
			srv := newTestServer(t, h)

			sendForTask(t, srv, "book a flight")
			answerTask := func(id int64, text string) *a2a.JSONRPCResponse {
				_, resp := post(t, srv, rpcBody(t, id, a2a.MethodMessageSend, a2a.MessageSendParams{
					Message: a2a.Message{MessageID: fmt.Sprintf("m%d", id), TaskID: "t-1", Parts: []a2a.Part{a2a.NewTextPart(text)}},
				}))
				return resp
			}

			answerTask(2, "somewhere")
			if got := getTask(t, srv, "t-1").Status.State; got != a2a.TaskStateInputRequired {
				t.Fatalf("state after unanswered resume = %s, want %s", got, a2a.TaskStateInputRequired)
			}
			if err := srv.Dispatcher().Wait(t.Context()); err != nil {
				t.Fatal(err)
			}

			resp := answerTask(3, "Paris")
			if resp.Error != nil {
				t.Fatalf("third send error = %v", resp.Error)
			}
			if got := getTask(t, srv, "t-1").Status.State; got != a2a.TaskStateCompleted {
				t.Errorf("final state = %s, want %s", got, a2a.TaskStateCompleted)
			}
		})
	}
}

// readFrames parses an event-stream body into JSON-RPC responses.
func readFrames(t *testing.T, body io.Reader) []*a2a.JSONRPCResponse {
	t.Helper()
	var frames []*a2a.JSONRPCResponse
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var resp a2a.JSONRPCResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		frames = append(frames, &resp)
	}
	return frames
}

func streamText(t *testing.T, srv http.Handler, text string) (*httptest.ResponseRecorder, []*a2a.StatusUpdateEvent) {
	t.Helper()
	body := rpcBody(t, 9, a2a.MethodMessageStream, a2a.MessageSendParams{
		Message: a2a.Message{MessageID: "m1", Parts: []a2a.Part{a2a.NewTextPart(text)}},
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	var events []*a2a.StatusUpdateEvent
	for _, frame := range readFrames(t, bytes.NewReader(rec.Body.Bytes())) {
		if got := frame.ID.String(); got != "9" {
			t.Errorf("frame id = %q, want 9", got)
		}
		var ev a2a.StatusUpdateEvent
		if err := frame.DecodeResult(&ev); err != nil {
			t.Fatalf("frame result: %v", err)
		}
		events = append(events, &ev)
	}
	return rec, events
}

func TestMessageStream(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	rec, events := streamText(t, srv, "hi")
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if len(events) != 2 {
		t.Fatalf("got %d frames, want 2", len(events))
	}

	first, last := events[0], events[1]
	if first.Status.State != a2a.TaskStateSubmitted || first.Final {
		t.Errorf("first frame = %s final=%v, want submitted final=false", first.Status.State, first.Final)
	}
	if len(first.History) != 1 || first.History[0].Text() != "hi" {
		t.Errorf("first frame history = %+v", first.History)
	}
	if !last.Final || last.Status.State != a2a.TaskStateCompleted {
		t.Errorf("last frame = %s final=%v, want completed final=true", last.Status.State, last.Final)
	}
	if last.TaskID != first.TaskID || last.ContextID != first.ContextID {
		t.Errorf("frames disagree on ids: %s/%s vs %s/%s", first.TaskID, first.ContextID, last.TaskID, last.ContextID)
	}
	if last.Status.Message == nil || last.Status.Message.Text() != "Echo: hi" {
		t.Errorf("final status message = %+v", last.Status.Message)
	}

	// the streamed task is tracked like any other
	if got := getTask(t, srv, first.TaskID).Status.State; got != a2a.TaskStateCompleted {
		t.Errorf("tasks/get state = %s, want %s", got, a2a.TaskStateCompleted)
	}
}

func TestMessageStreamWorkingTaskCompletes(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		if calls.Add(1) == 1 {
			return a2a.NewTaskResponse(&a2a.TaskResponse{
				Status: a2a.TaskStatus{
					State:    a2a.TaskStateWorking,
					Progress: &a2a.Progress{Percentage: 10, Message: "started"},
				},
			}), nil
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return a2a.NewTaskResponse(&a2a.TaskResponse{
			ID: msg.TaskID,
			Status: a2a.TaskStatus{
				State:    a2a.TaskStateCompleted,
				Progress: &a2a.Progress{Percentage: 100, Message: "done"},
			},
			Artifacts: []a2a.Artifact{{ArtifactID: "out", Parts: []a2a.Part{a2a.NewTextPart(strings.ToUpper(msg.Text()))}}},
		}), nil
	})
	srv := newTestServer(t, h)

	_, events := streamText(t, srv, "long job")
	if len(events) != 2 {
		t.Fatalf("got %d frames, want 2", len(events))
	}
	last := events[1]
	if !last.Final || last.Status.State != a2a.TaskStateWorking {
		t.Errorf("last frame = %s final=%v, want working final=true", last.Status.State, last.Final)
	}
	if got := getTask(t, srv, last.TaskID).Status.State; got != a2a.TaskStateWorking {
		t.Errorf("state before release = %s, want %s", got, a2a.TaskStateWorking)
	}

	close(release)
	done := waitForState(t, srv, last.TaskID, a2a.TaskStateCompleted)
	wantArtifacts := []a2a.Artifact{{ArtifactID: "out", Parts: []a2a.Part{a2a.NewTextPart("LONG JOB")}}}
	if diff := cmp.Diff(wantArtifacts, done.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
	if err := srv.Dispatcher().Wait(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestMessageStreamHandlerError(t *testing.T) {
	for name, h := range map[string]a2a.HandlerFunc{
		"error": func(context.Context, *a2a.Message) (*a2a.Response, error) {
			return nil, errors.New("agent exploded")
		},
		"panic": func(context.Context, *a2a.Message) (*a2a.Response, error) {
			panic("boom")
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, h)
			_, events := streamText(t, srv, "hi")

			var finals int
			for _, ev := range events {
				if ev.Final {
					finals++
				}
			}
			if finals != 1 {
				t.Fatalf("got %d final frames, want exactly 1", finals)
			}
			last := events[len(events)-1]
			if !last.Final || last.Status.State != a2a.TaskStateError {
				t.Errorf("last frame = %s final=%v, want error final=true", last.Status.State, last.Final)
			}
			if last.Status.Message == nil || last.Status.Message.Text() == "" {
				t.Error("error frame has no human readable message")
			}
		})
	}
}

func TestMessageStreamInvalidParams(t *testing.T) {
	srv := newTestServer(t, echoHandler())
	code, resp := post(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/stream","params":{"message":{"parts":[]}}}`)
	if code != http.StatusInternalServerError || resp.Error == nil || resp.Error.Code != a2a.InvalidParamsErrorCode {
		t.Errorf("got %d %+v, want 500 and code %d", code, resp.Error, a2a.InvalidParamsErrorCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, echoHandler(), WithRateLimit(rate.Every(time.Hour), 1))

	if code, _ := sendText(t, srv, "hi"); code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
	code, resp := sendText(t, srv, "hi")
	if code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if resp.Error == nil {
		t.Error("rate limited response has no error")
	}
}

func TestBearerTokenReachesHandler(t *testing.T) {
	var seen atomic.Value
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		seen.Store(auth.UserFromContext(ctx))
		return a2a.NewMessageResponse("reply-1", msg.ContextID, a2a.NewTextPart("ok")), nil
	})
	srv := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(rpcBody(t, 1, a2a.MethodMessageSend, a2a.MessageSendParams{
		Message: a2a.Message{Role: a2a.RoleUser, MessageID: "m1", Parts: []a2a.Part{a2a.NewTextPart("hi")}},
	})))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	u, ok := seen.Load().(auth.TokenUser)
	if !ok {
		t.Fatalf("handler saw %T, want auth.TokenUser", seen.Load())
	}
	if got := u.Token.Value(); got != "secret-token" {
		t.Errorf("token = %q, want secret-token", got)
	}
}

func TestEmptyBearerIsUnauthenticated(t *testing.T) {
	var seen atomic.Value
	h := a2a.HandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Response, error) {
		seen.Store(auth.UserFromContext(ctx))
		return a2a.NewMessageResponse("reply-1", msg.ContextID, a2a.NewTextPart("ok")), nil
	})
	srv := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(rpcBody(t, 1, a2a.MethodMessageSend, a2a.MessageSendParams{
		Message: a2a.Message{Role: a2a.RoleUser, MessageID: "m1", Parts: []a2a.Part{a2a.NewTextPart("hi")}},
	})))
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	u, ok := seen.Load().(auth.User)
	if !ok {
		t.Fatalf("handler saw %T, want an auth.User", seen.Load())
	}
	if u.IsAuthenticated() {
		t.Errorf("handler saw authenticated %T for an empty credential", u)
	}
}

func TestH2C(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, echoHandler(), WithH2C()))
	defer ts.Close()

	hc := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, err := hc.Get(ts.URL + a2a.AgentCardWellKnownPath)
	if err != nil {
		t.Fatalf("GET over h2c: %v", err)
	}
	defer resp.Body.Close()

	if resp.ProtoMajor != 2 {
		t.Errorf("protocol = %s, want HTTP/2", resp.Proto)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, echoHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	srv := newTestServer(t, echoHandler())
	ctx, cancel := context.WithCancel(t.Context())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s%s", ln.Addr(), a2a.AgentCardWellKnownPath)
	var resp *http.Response
	for range 50 {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
