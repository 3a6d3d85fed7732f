// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the peer side of the A2A protocol: it discovers an
// agent's card and invokes its JSON-RPC methods.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/auth"
)

// Client talks to one remote agent. It is safe for concurrent use.
type Client struct {
	baseURL    string
	rpcURL     string
	httpClient *http.Client
	token      auth.BearerToken
	logger     *slog.Logger
	nextID     atomic.Int64

	cardMu sync.Mutex
	card   *a2a.AgentCard
}

// New returns a client for the agent served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q: missing host", baseURL)
	}

	base := strings.TrimRight(u.String(), "/")
	c := &Client{
		baseURL:    base,
		rpcURL:     base + "/",
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the agent's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// AgentCard fetches the agent card on first use and returns the memoized
// copy afterwards. A failed fetch is not cached.
func (c *Client) AgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	c.cardMu.Lock()
	defer c.cardMu.Unlock()

	if c.card != nil {
		card := *c.card
		return &card, nil
	}

	card, err := c.fetchAgentCard(ctx)
	if err != nil {
		return nil, err
	}
	c.card = card
	cp := *card
	return &cp, nil
}

func (c *Client) fetchAgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	const op = "fetch agent card"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+a2a.AgentCardWellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errUnexpectedStatus}
	}

	var card a2a.AgentCard
	if err := json.UnmarshalRead(resp.Body, &card); err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode agent card: %w", err)}
	}
	return &card, nil
}

// SendMessage sends msg with message/send. The role is forced to user and a
// message id is minted when absent. A JSON-RPC error reply is returned as
// an [*a2a.Error].
func (c *Client) SendMessage(ctx context.Context, msg a2a.Message) (*a2a.Response, error) {
	params := a2a.MessageSendParams{Message: outbound(msg)}

	var resp a2a.Response
	if err := c.call(ctx, a2a.MethodMessageSend, params, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, &TransportError{Op: a2a.MethodMessageSend, Err: err}
	}
	return &resp, nil
}

// GetTaskStatus returns the current snapshot of a task.
func (c *Client) GetTaskStatus(ctx context.Context, id string) (*a2a.TaskResponse, error) {
	var t a2a.TaskResponse
	if err := c.call(ctx, a2a.MethodTasksGet, a2a.TaskIDParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelTask asks the agent to cancel a task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.call(ctx, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: id}, nil)
}

// outbound prepares a copy of msg for sending.
func outbound(msg a2a.Message) a2a.Message {
	msg = msg.Clone()
	msg.Role = a2a.RoleUser
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	return msg
}

// newRequest encodes a JSON-RPC request for method with a fresh id.
func (c *Client) newRequest(ctx context.Context, method string, params any) (*http.Request, a2a.ID, error) {
	id := a2a.NewNumberID(c.nextID.Add(1))
	rpcReq, err := a2a.NewRequest(id, method, params)
	if err != nil {
		return nil, id, fmt.Errorf("encode %s params: %w", method, err)
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, id, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, id, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return req, id, nil
}

// call performs one JSON-RPC round trip and decodes the result into result.
// A nil result discards it.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	req, id, err := c.newRequest(ctx, method, params)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.DebugContext(ctx, "a2a call", "method", method, "id", id.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	var rpcResp a2a.JSONRPCResponse
	if err := json.UnmarshalRead(resp.Body, &rpcResp); err != nil {
		return &TransportError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if !rpcResp.ID.Equal(id) {
		return &TransportError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("response id %q does not match request id %q", rpcResp.ID, id)}
	}
	if result == nil {
		return nil
	}
	if err := rpcResp.DecodeResult(result); err != nil {
		var rpcErr *a2a.Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return &TransportError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

var timeNow = time.Now

func (c *Client) authorize(req *http.Request) {
	if c.token.IsZero() {
		return
	}
	if c.token.Expired(timeNow()) {
		c.logger.WarnContext(req.Context(), "bearer token has expired", "url", req.URL.String())
	}
	req.Header.Set("Authorization", c.token.Header())
}
