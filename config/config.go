// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration of the a2a binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-a2a/a2akit"
)

// Task store drivers.
const (
	TaskDriverMemory = "memory"
	TaskDriverSQLite = "sqlite"
	TaskDriverMySQL  = "mysql"
)

// Conversation ledger drivers.
const (
	ConversationDriverMemory = "memory"
	ConversationDriverRedis  = "redis"
)

// DefaultPort is the port served when none is configured.
const DefaultPort = 41241

// Config is the complete configuration of an agent server and its chat client.
type Config struct {
	Port           int           `yaml:"port"`
	LogLevel       string        `yaml:"logLevel"`
	AgentCard      a2a.AgentCard `yaml:"agentCard"`
	Storage        Storage       `yaml:"storage"`
	HandlerTimeout time.Duration `yaml:"handlerTimeout"`
	RateLimit      RateLimit     `yaml:"rateLimit"`
	// H2C accepts cleartext HTTP/2 next to HTTP/1.1.
	H2C    bool   `yaml:"h2c"`
	Client Client `yaml:"client"`
}

// Storage selects the task store and the conversation ledger.
type Storage struct {
	Tasks         TaskStorage         `yaml:"tasks"`
	Conversations ConversationStorage `yaml:"conversations"`
}

// TaskStorage configures the task store.
type TaskStorage struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ConversationStorage configures the conversation ledger.
type ConversationStorage struct {
	Driver    string `yaml:"driver"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// RateLimit bounds the RPC request rate. A zero RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Client configures the outbound side.
type Client struct {
	BaseURL string `yaml:"baseURL"`
	// Token is sent as a bearer token. It is passed through, never verified.
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		LogLevel: "info",
		AgentCard: a2a.AgentCard{
			Name:        "Echo Agent",
			Description: "Echoes messages back; long messages become tasks.",
			URL:         "http://localhost:" + strconv.Itoa(DefaultPort),
			Version:     "1.0.0",
			Skills: []a2a.AgentSkill{{
				ID:          "echo",
				Name:        "Echo",
				Description: "Replies with the text it receives.",
				Tags:        []string{"echo"},
				Examples:    []string{"hello"},
			}},
		},
		Storage: Storage{
			Tasks:         TaskStorage{Driver: TaskDriverMemory},
			Conversations: ConversationStorage{Driver: ConversationDriverMemory},
		},
		Client: Client{
			BaseURL:      "http://localhost:" + strconv.Itoa(DefaultPort),
			PollInterval: time.Second,
		},
	}
}

// Load reads the YAML file at path over [Default]. Environment references
// such as ${A2A_TOKEN} are expanded before parsing. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(content); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is like [Load] on in-memory YAML.
func Parse(content []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(content); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(content []byte) error {
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(content))))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	card := c.AgentCard
	card.Normalize()
	if err := card.Validate(); err != nil {
		return fmt.Errorf("agentCard: %w", err)
	}

	switch c.Storage.Tasks.Driver {
	case TaskDriverMemory:
	case TaskDriverSQLite, TaskDriverMySQL:
		if c.Storage.Tasks.DSN == "" {
			return fmt.Errorf("storage.tasks: driver %q needs a dsn", c.Storage.Tasks.Driver)
		}
	default:
		return fmt.Errorf("storage.tasks: unknown driver %q", c.Storage.Tasks.Driver)
	}

	switch c.Storage.Conversations.Driver {
	case ConversationDriverMemory:
	case ConversationDriverRedis:
		if c.Storage.Conversations.Addr == "" {
			return errors.New("storage.conversations: driver redis needs an addr")
		}
	default:
		return fmt.Errorf("storage.conversations: unknown driver %q", c.Storage.Conversations.Driver)
	}

	if c.HandlerTimeout < 0 {
		return errors.New("handlerTimeout cannot be negative")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rateLimit cannot be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return errors.New("rateLimit.burst must be positive when rps is set")
	}
	if c.Client.PollInterval < 0 {
		return errors.New("client.pollInterval cannot be negative")
	}
	return nil
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("logLevel: %w", err)
	}
	return level, nil
}
