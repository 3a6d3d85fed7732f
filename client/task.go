// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"time"

	"gopkg.in/cenkalti/backoff.v1"

	"github.com/go-a2a/a2akit"
)

// DefaultPollInterval is the interval used by [WaitForTask] when none is given.
const DefaultPollInterval = time.Second

var errTaskRunning = errors.New("task is not terminal yet")

// WaitForTask polls tasks/get every interval until the task reaches a
// terminal state and returns that snapshot.
//
// It has no deadline of its own: bound it with ctx. Transport failures are
// retried; JSON-RPC errors such as an unknown task end the wait. When ctx
// ends first, the last snapshot seen is returned with the context error.
func WaitForTask(ctx context.Context, c *Client, id string, interval time.Duration) (*a2a.TaskResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var last *a2a.TaskResponse
	poll := func() error {
		t, err := c.GetTaskStatus(ctx, id)
		if err != nil {
			if errors.Is(err, a2a.ErrTransport) && ctx.Err() == nil {
				c.logger.DebugContext(ctx, "poll task", "task_id", id, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		last = t
		if !t.Status.State.Terminal() {
			return errTaskRunning
		}
		return nil
	}

	err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err == nil {
		return last, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}
	return last, err
}
