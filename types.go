// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
)

// FileContent is the payload of a file [Part]. Either Bytes or URI is set.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	Bytes    []byte `json:"bytes,omitzero"`
	URI      string `json:"uri,omitzero"`
}

// Part is one typed piece of content of a [Message] or [Artifact].
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitzero"`
	File     *FileContent   `json:"file,omitzero"`
	Data     map[string]any `json:"data,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// NewTextPart returns a text [Part].
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewDataPart returns a structured data [Part].
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// NewFilePart returns a file [Part].
func NewFilePart(file FileContent) Part {
	return Part{Kind: PartKindFile, File: &file}
}

// UnmarshalJSON implements [json.Unmarshaler].
//
// Peers speaking the older revision of the protocol tag parts with "type"
// instead of "kind"; both are accepted.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind     PartKind       `json:"kind,omitzero"`
		Type     PartKind       `json:"type,omitzero"`
		Text     string         `json:"text,omitzero"`
		File     *FileContent   `json:"file,omitzero"`
		Data     map[string]any `json:"data,omitzero"`
		Metadata map[string]any `json:"metadata,omitzero"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Part{
		Kind:     raw.Kind,
		Text:     raw.Text,
		File:     raw.File,
		Data:     raw.Data,
		Metadata: raw.Metadata,
	}
	if p.Kind == "" {
		p.Kind = raw.Type
	}
	return nil
}

// Validate ensures the Part is well formed.
func (p Part) Validate() error {
	switch p.Kind {
	case PartKindText:
		return nil
	case PartKindFile:
		if p.File == nil {
			return errors.New("file part without file content")
		}
		if len(p.File.Bytes) == 0 && p.File.URI == "" {
			return errors.New("file part needs bytes or uri")
		}
		return nil
	case PartKindData:
		if p.Data == nil {
			return errors.New("data part without data")
		}
		return nil
	case "":
		return errors.New("part kind cannot be empty")
	default:
		return fmt.Errorf("unknown part kind %q", p.Kind)
	}
}

func (p Part) clone() Part {
	if p.File != nil {
		f := *p.File
		f.Bytes = slices.Clone(f.Bytes)
		p.File = &f
	}
	p.Data = maps.Clone(p.Data)
	p.Metadata = maps.Clone(p.Metadata)
	return p
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = p.clone()
	}
	return out
}

// Artifact is a structured result attached to a task.
type Artifact struct {
	ArtifactID  string `json:"artifactId"`
	Name        string `json:"name,omitzero"`
	Description string `json:"description,omitzero"`
	Parts       []Part `json:"parts"`
}

// Validate ensures the Artifact is well formed.
func (a Artifact) Validate() error {
	if a.ArtifactID == "" {
		return errors.New("artifact ID cannot be empty")
	}
	for i, p := range a.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("artifact part %d: %w", i, err)
		}
	}
	return nil
}

// CloneArtifacts returns a deep copy of artifacts.
func CloneArtifacts(artifacts []Artifact) []Artifact {
	if artifacts == nil {
		return nil
	}
	out := make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		a.Parts = cloneParts(a.Parts)
		out[i] = a
	}
	return out
}

// Message is one turn of a conversation.
type Message struct {
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId"`
	ContextID string         `json:"contextId,omitzero"`
	TaskID    string         `json:"taskId,omitzero"`
	History   []Message      `json:"history,omitzero"`
	Artifacts []Artifact     `json:"artifacts,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the Message is acceptable for dispatch.
func (m *Message) Validate() error {
	switch m.Role {
	case "", RoleUser, RoleAgent:
	default:
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return errors.New("message must contain at least one part")
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("message part %d: %w", i, err)
		}
	}
	return nil
}

// Text concatenates the text parts of the message, one per line.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Kind != PartKindText {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Parts = cloneParts(m.Parts)
	if m.History != nil {
		h := make([]Message, len(m.History))
		for i, hm := range m.History {
			h[i] = hm.Clone()
		}
		m.History = h
	}
	m.Artifacts = CloneArtifacts(m.Artifacts)
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// Progress is the completion marker of a task.
type Progress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// TaskStatus is a point-in-time view of a task's state.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Progress  *Progress `json:"progress,omitzero"`
	Message   *Message  `json:"message,omitzero"`
	// Reason is a machine readable code set on forced transitions.
	Reason string `json:"reason,omitzero"`
}

// Task is the server-side record of a unit of long-running work.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	State     TaskState  `json:"state"`
	Progress  *Progress  `json:"progress,omitzero"`
	Result    []Artifact `json:"result,omitzero"`
	Reason    string     `json:"reason,omitzero"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Progress != nil {
		p := *t.Progress
		c.Progress = &p
	}
	c.Result = CloneArtifacts(t.Result)
	return &c
}

// Snapshot renders the task as a task-shaped response. The status timestamp
// is the instant the current status was recorded.
func (t *Task) Snapshot() *TaskResponse {
	status := TaskStatus{
		State:     t.State,
		Timestamp: t.UpdatedAt,
		Reason:    t.Reason,
	}
	if t.Progress != nil {
		p := *t.Progress
		status.Progress = &p
	}
	return &TaskResponse{
		Kind:      KindTask,
		ID:        t.ID,
		ContextID: t.ContextID,
		Status:    status,
		Artifacts: CloneArtifacts(t.Result),
	}
}

// TaskResponse is the task-kind result of a handler or of tasks/get.
type TaskResponse struct {
	Kind      Kind       `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitzero"`
	History   []Message  `json:"history,omitzero"`
}

// MessageResponse is the immediate-reply result of a handler.
type MessageResponse struct {
	Kind      Kind   `json:"kind"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId"`
	Parts     []Part `json:"parts"`
}

// StatusUpdateEvent is the payload of one streaming frame.
type StatusUpdateEvent struct {
	Kind      Kind       `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitzero"`
	Artifacts []Artifact `json:"artifacts,omitzero"`
	Final     bool       `json:"final"`
}
