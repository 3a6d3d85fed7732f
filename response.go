// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
)

// Response is the result of a [Handler]: either an immediate message reply
// or a task. Exactly one of Message and Task is set.
type Response struct {
	Message *MessageResponse
	Task    *TaskResponse
}

// NewMessageResponse returns a message-kind [Response].
func NewMessageResponse(messageID, contextID string, parts ...Part) *Response {
	return &Response{Message: &MessageResponse{
		Kind:      KindMessage,
		MessageID: messageID,
		ContextID: contextID,
		Parts:     parts,
	}}
}

// NewTaskResponse returns a task-kind [Response].
func NewTaskResponse(task *TaskResponse) *Response {
	task.Kind = KindTask
	return &Response{Task: task}
}

// Kind reports which variant is set.
func (r *Response) Kind() Kind {
	switch {
	case r == nil:
		return ""
	case r.Task != nil:
		return KindTask
	case r.Message != nil:
		return KindMessage
	}
	return ""
}

// Validate ensures exactly one variant is set.
func (r *Response) Validate() error {
	if r == nil {
		return errors.New("nil response")
	}
	if (r.Message == nil) == (r.Task == nil) {
		return errors.New("response must carry exactly one of message or task")
	}
	if r.Task != nil && !r.Task.Status.State.Valid() {
		return fmt.Errorf("invalid task state %q", r.Task.Status.State)
	}
	return nil
}

// MarshalJSON implements [json.Marshaler].
func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Task != nil:
		t := *r.Task
		t.Kind = KindTask
		return json.Marshal(t)
	case r.Message != nil:
		m := *r.Message
		m.Kind = KindMessage
		return json.Marshal(m)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (r *Response) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case KindTask:
		var t TaskResponse
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		*r = Response{Task: &t}
	case KindMessage:
		var m MessageResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*r = Response{Message: &m}
	default:
		return fmt.Errorf("unknown response kind %q", probe.Kind)
	}
	return nil
}
