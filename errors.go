// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// JSONParseErrorCode indicates invalid JSON payload.
	JSONParseErrorCode = -32700
	// InvalidRequestErrorCode indicates an invalid request envelope.
	InvalidRequestErrorCode = -32600
	// MethodNotFoundErrorCode indicates the method does not exist.
	MethodNotFoundErrorCode = -32601
	// InvalidParamsErrorCode indicates invalid method parameters.
	InvalidParamsErrorCode = -32602
	// InternalErrorCode indicates an internal server error.
	InternalErrorCode = -32603
)

// A2A specific error codes.
const (
	// ServerErrorCode is the generic processing error, also used for unknown tasks.
	ServerErrorCode = -32000
	// TaskNotCancelableErrorCode indicates the task is in a final state and cannot be canceled.
	TaskNotCancelableErrorCode = -32002
)

// Error taxonomy. Errors returned by this module wrap one of these so callers
// can classify them with [errors.Is].
var (
	// ErrMethodNotFound reports an unknown RPC method.
	ErrMethodNotFound = errors.New("method not found")
	// ErrInvalidRequest reports malformed params or message shape.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTaskNotFound reports an operation on an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotCancelable reports a cancel on a task already in a terminal state.
	ErrTaskNotCancelable = errors.New("task cannot be canceled")
	// ErrHandlerFailure reports that the injected business logic failed.
	ErrHandlerFailure = errors.New("handler failure")
	// ErrTransport reports a network-level failure on the client side.
	ErrTransport = errors.New("transport failure")
)

const taskNotFoundMessage = "Task not found"

// Error is a JSON-RPC 2.0 error object. It implements error so a response
// error can be returned to callers unchanged.
type Error struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data contains optional additional error details.
	Data any `json:"data,omitzero"`
}

var _ error = (*Error)(nil)

// NewError returns an [Error].
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the taxonomy sentinel matching the code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrMethodNotFound:
		return e.Code == MethodNotFoundErrorCode
	case ErrInvalidRequest:
		return e.Code == InvalidParamsErrorCode || e.Code == InvalidRequestErrorCode
	case ErrTaskNotCancelable:
		return e.Code == TaskNotCancelableErrorCode
	case ErrTaskNotFound:
		return e.Code == ServerErrorCode && e.Message == taskNotFoundMessage
	}
	return false
}

// HTTPStatus mirrors the error class for intermediaries that do not read
// JSON-RPC bodies.
func (e *Error) HTTPStatus() int {
	if e.Code == MethodNotFoundErrorCode {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// NewJSONParseError creates a new parse error.
func NewJSONParseError() *Error {
	return NewError(JSONParseErrorCode, "Invalid JSON payload")
}

// NewInvalidRequestError creates a new envelope validation error.
func NewInvalidRequestError(detail string) *Error {
	return &Error{Code: InvalidRequestErrorCode, Message: "Invalid request", Data: detail}
}

// NewMethodNotFoundError creates a new method-not-found error.
func NewMethodNotFoundError(method string) *Error {
	return &Error{Code: MethodNotFoundErrorCode, Message: "Method not found", Data: method}
}

// NewInvalidParamsError creates a new params validation error.
func NewInvalidParamsError(detail string) *Error {
	return &Error{Code: InvalidParamsErrorCode, Message: "Invalid params", Data: detail}
}

// NewTaskNotFoundError creates a new task-not-found error.
func NewTaskNotFoundError() *Error {
	return NewError(ServerErrorCode, taskNotFoundMessage)
}

// NewTaskNotCancelableError creates a new task-not-cancelable error.
func NewTaskNotCancelableError() *Error {
	return NewError(TaskNotCancelableErrorCode, "Task cannot be canceled")
}

// ErrorFrom maps err to its wire form.
func ErrorFrom(err error) *Error {
	var rpcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, ErrMethodNotFound):
		return NewError(MethodNotFoundErrorCode, "Method not found")
	case errors.Is(err, ErrInvalidRequest):
		return NewInvalidParamsError(err.Error())
	case errors.Is(err, ErrTaskNotFound):
		return NewTaskNotFoundError()
	case errors.Is(err, ErrTaskNotCancelable):
		return NewTaskNotCancelableError()
	case errors.Is(err, ErrHandlerFailure):
		return NewError(ServerErrorCode, handlerMessage(err))
	}
	return NewError(ServerErrorCode, err.Error())
}

// HandlerError wraps a failure of the injected [Handler].
type HandlerError struct {
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failure: %v", e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Is makes every HandlerError match [ErrHandlerFailure].
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailure
}

// handlerMessage returns the handler's own message when available, which is
// what the peer should see.
func handlerMessage(err error) string {
	var he *HandlerError
	if errors.As(err, &he) && he.Err != nil {
		return he.Err.Error()
	}
	return err.Error()
}
