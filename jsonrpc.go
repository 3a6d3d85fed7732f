// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// JSONRPCVersion is the only accepted value of the "jsonrpc" member.
const JSONRPCVersion = "2.0"

// A2A RPC method names.
const (
	// MethodMessageSend submits a message and returns a message or a task.
	MethodMessageSend = "message/send"
	// MethodMessageStream submits a message and streams status frames.
	MethodMessageStream = "message/stream"
	// MethodTasksGet returns a task snapshot.
	MethodTasksGet = "tasks/get"
	// MethodTasksCancel cancels a task.
	MethodTasksCancel = "tasks/cancel"
)

// ID is a JSON-RPC request identifier: a string, a number or null.
// The raw token is kept so responses echo it byte for byte.
type ID struct {
	raw jsontext.Value
}

// NewNumberID returns a numeric [ID].
func NewNumberID(n int64) ID {
	return ID{raw: jsontext.Value(strconv.FormatInt(n, 10))}
}

// NewStringID returns a string [ID].
func NewStringID(s string) ID {
	v, _ := json.Marshal(s)
	return ID{raw: v}
}

// IsZero reports whether the id is absent or null.
func (id ID) IsZero() bool {
	return len(id.raw) == 0 || bytes.Equal(id.raw, []byte("null"))
}

// Equal reports whether both ids carry the same token.
func (id ID) Equal(other ID) bool {
	if id.IsZero() || other.IsZero() {
		return id.IsZero() == other.IsZero()
	}
	return bytes.Equal(id.raw, other.raw)
}

// String returns the id as text, without quotes for strings.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// MarshalJSON implements [json.Marshaler].
func (id ID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (id *ID) UnmarshalJSON(data []byte) error {
	switch jsontext.Value(data).Kind() {
	case '"', '0', 'n':
		id.raw = bytes.Clone(data)
		return nil
	}
	return errors.New("id must be a string, a number or null")
}

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      ID             `json:"id"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
}

// NewRequest builds a request envelope, encoding params.
func NewRequest(id ID, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// Validate checks the envelope, not the params.
func (r *Request) Validate() error {
	if r.JSONRPC != JSONRPCVersion {
		return errors.New(`jsonrpc must be "2.0"`)
	}
	if r.Method == "" {
		return errors.New("method cannot be empty")
	}
	return nil
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. Result and Error are
// mutually exclusive on the wire; a nil Result with a nil Error encodes as
// "result": null.
type JSONRPCResponse struct {
	JSONRPC string
	ID      ID
	Result  jsontext.Value
	Error   *Error
}

// NewResultResponse encodes result into a success response.
func NewResultResponse(id ID, result any) (*JSONRPCResponse, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: raw}, nil
}

// NewErrorResponse returns an error response.
func NewErrorResponse(id ID, err *Error) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

type successWire struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      ID             `json:"id"`
	Result  jsontext.Value `json:"result"`
}

type errorWire struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Error   *Error `json:"error"`
}

type responseWire struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      ID             `json:"id"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *Error         `json:"error,omitzero"`
}

// MarshalJSON implements [json.Marshaler].
func (r JSONRPCResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(errorWire{JSONRPC: r.JSONRPC, ID: r.ID, Error: r.Error})
	}
	result := r.Result
	if len(result) == 0 {
		result = jsontext.Value("null")
	}
	return json.Marshal(successWire{JSONRPC: r.JSONRPC, ID: r.ID, Result: result})
}

// UnmarshalJSON implements [json.Unmarshaler].
func (r *JSONRPCResponse) UnmarshalJSON(data []byte) error {
	var w responseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Error != nil && len(w.Result) > 0 && !bytes.Equal(w.Result, []byte("null")) {
		return errors.New("response carries both result and error")
	}
	*r = JSONRPCResponse{JSONRPC: w.JSONRPC, ID: w.ID, Result: w.Result, Error: w.Error}
	return nil
}

// DecodeResult decodes the result into v. It returns the response error if set.
func (r *JSONRPCResponse) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 || bytes.Equal(r.Result, []byte("null")) {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message  Message        `json:"message"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Validate implements structural validation before dispatch.
func (p *MessageSendParams) Validate() error {
	return p.Message.Validate()
}

// TaskIDParams are the params of tasks/get and tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// Validate implements structural validation before dispatch.
func (p *TaskIDParams) Validate() error {
	if p.ID == "" {
		return errors.New("task id cannot be empty")
	}
	return nil
}
