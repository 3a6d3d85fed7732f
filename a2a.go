// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the wire types, JSON-RPC envelope and error taxonomy of
// the Agent-to-Agent (A2A) protocol, together with the Handler contract that
// agent implementations satisfy.
//
// The server side lives in package server, the peer side in package client.
package a2a

import "slices"

// Version is the protocol revision implemented by this module.
const Version = "0.2.0"

// AgentCardWellKnownPath is the discovery path of the [AgentCard].
const AgentCardWellKnownPath = "/.well-known/agent.json"

// TaskState represents the state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been accepted but not registered yet.
	// It only appears on the first frame of a stream.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task is being worked on.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the agent waits for more input.
	TaskStateInputRequired TaskState = "input-required"

	// TaskStateCompleted indicates the task has been completed.
	TaskStateCompleted TaskState = "completed"

	// TaskStateError indicates the task has failed.
	TaskStateError TaskState = "error"

	// TaskStateCanceled indicates the task has been canceled.
	TaskStateCanceled TaskState = "canceled"
)

// transitions is the task state graph. Terminal states have no outgoing edge.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateCompleted, TaskStateError, TaskStateCanceled, TaskStateInputRequired},
	TaskStateWorking:       {TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateError, TaskStateCanceled},
	TaskStateInputRequired: {TaskStateInputRequired, TaskStateWorking},
}

// Valid reports whether s is a known state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateError, TaskStateCanceled:
		return true
	}
	return false
}

// Terminal reports whether s is absorbing.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateError || s == TaskStateCanceled
}

// CanTransition reports whether the state graph has an edge from s to next.
func (s TaskState) CanTransition(next TaskState) bool {
	return slices.Contains(transitions[s], next)
}

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Kind discriminates the objects carried in a result.
type Kind string

const (
	KindMessage      Kind = "message"
	KindTask         Kind = "task"
	KindStatusUpdate Kind = "status-update"
)

// PartKind discriminates the content of a [Part].
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)
