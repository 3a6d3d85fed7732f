// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"strings"
)

// AgentCardSchemaVersion identifies the one AgentCard schema this module
// reads and writes.
const AgentCardSchemaVersion = "a2akit.card/v1"

// AgentCard is the static capability descriptor of an agent, served at
// [AgentCardWellKnownPath].
type AgentCard struct {
	SchemaVersion      string            `json:"schemaVersion" yaml:"schemaVersion"`
	Name               string            `json:"name" yaml:"name"`
	Description        string            `json:"description,omitzero" yaml:"description"`
	URL                string            `json:"url" yaml:"url"`
	Version            string            `json:"version" yaml:"version"`
	Provider           *AgentProvider    `json:"provider,omitzero" yaml:"provider"`
	Capabilities       AgentCapabilities `json:"capabilities" yaml:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes" yaml:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes" yaml:"defaultOutputModes"`
	Security           *SecurityScheme   `json:"security,omitzero" yaml:"security"`
	Skills             []AgentSkill      `json:"skills" yaml:"skills"`
	Endpoints          Endpoints         `json:"endpoints" yaml:"endpoints"`
}

// AgentProvider represents the service provider of an agent.
type AgentProvider struct {
	Organization string `json:"organization" yaml:"organization"`
	URL          string `json:"url,omitzero" yaml:"url"`
}

// AgentCapabilities lists the optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming" yaml:"streaming"`
	PushNotifications      bool `json:"pushNotifications" yaml:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory" yaml:"stateTransitionHistory"`
}

// SecurityScheme describes how callers authenticate. Only bearer tokens are
// passed through; the server does not enforce them.
type SecurityScheme struct {
	Type         string `json:"type" yaml:"type"`
	Scheme       string `json:"scheme" yaml:"scheme"`
	BearerFormat string `json:"bearerFormat,omitzero" yaml:"bearerFormat"`
	Description  string `json:"description,omitzero" yaml:"description"`
}

// AgentSkill describes a unit of capability an agent can perform.
type AgentSkill struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitzero" yaml:"description"`
	Tags        []string `json:"tags,omitzero" yaml:"tags"`
	Examples    []string `json:"examples,omitzero" yaml:"examples"`
	InputModes  []string `json:"inputModes,omitzero" yaml:"inputModes"`
	OutputModes []string `json:"outputModes,omitzero" yaml:"outputModes"`
}

// Endpoints lists the paths the agent serves.
type Endpoints struct {
	Base      string `json:"base" yaml:"base"`
	AgentCard string `json:"agentCard" yaml:"agentCard"`
}

// DefaultEndpoints returns the paths served by package server.
func DefaultEndpoints() Endpoints {
	return Endpoints{Base: "/", AgentCard: AgentCardWellKnownPath}
}

// Normalize fills defaults that every served card carries.
func (c *AgentCard) Normalize() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = AgentCardSchemaVersion
	}
	if c.Endpoints.Base == "" {
		c.Endpoints.Base = "/"
	}
	if c.Endpoints.AgentCard == "" {
		c.Endpoints.AgentCard = AgentCardWellKnownPath
	}
	if len(c.DefaultInputModes) == 0 {
		c.DefaultInputModes = []string{"text"}
	}
	if len(c.DefaultOutputModes) == 0 {
		c.DefaultOutputModes = []string{"text"}
	}
}

// Validate ensures the AgentCard is servable.
func (c *AgentCard) Validate() error {
	if c.SchemaVersion != AgentCardSchemaVersion {
		return fmt.Errorf("unsupported agent card schema %q", c.SchemaVersion)
	}
	if c.Name == "" {
		return errors.New("agent card missing required field: name")
	}
	if c.Version == "" {
		return errors.New("agent card missing required field: version")
	}
	for i, skill := range c.Skills {
		if skill.ID == "" {
			return fmt.Errorf("skill #%d missing required field: id", i+1)
		}
		if skill.Name == "" {
			return fmt.Errorf("skill #%d missing required field: name", i+1)
		}
	}
	if err := validatePath(c.Endpoints.Base); err != nil {
		return fmt.Errorf("agent card endpoints.base: %w", err)
	}
	if err := validatePath(c.Endpoints.AgentCard); err != nil {
		return fmt.Errorf("agent card endpoints.agentCard: %w", err)
	}
	if c.Security != nil && c.Security.Type == "" {
		return errors.New("agent card security scheme needs a type")
	}
	return nil
}

// validatePath accepts an empty path, which [AgentCard.Normalize] defaults,
// or a literal absolute path.
func validatePath(p string) error {
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must start with /", p)
	}
	if i := strings.IndexAny(p, "{}?# \t\r\n"); i >= 0 {
		return fmt.Errorf("path %q contains %q", p, p[i])
	}
	return nil
}

// FindSkill finds a skill by ID.
func (c *AgentCard) FindSkill(skillID string) (*AgentSkill, bool) {
	for i := range c.Skills {
		if c.Skills[i].ID == skillID {
			return &c.Skills[i], true
		}
	}
	return nil, false
}
