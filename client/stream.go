// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/r3labs/sse/v2"

	"github.com/go-a2a/a2akit"
)

// maxFrameBytes bounds one server-sent event.
const maxFrameBytes = 1 << 20

// Stream is an open message/stream call. Events is closed after the final
// frame, on error, or when the stream is closed; Err reports why.
type Stream struct {
	events chan *a2a.StatusUpdateEvent
	body   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Events returns the status frames in the order the agent sent them.
func (s *Stream) Events() <-chan *a2a.StatusUpdateEvent { return s.events }

// Err returns the error that ended the stream, or nil when it ended with a
// final frame. It is meaningful once Events is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close aborts the stream and waits for the reader to stop.
func (s *Stream) Close() error {
	s.cancel()
	err := s.body.Close()
	<-s.done
	return err
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// SendMessageStream sends msg with message/stream and returns the open
// stream of status frames. A JSON-RPC error reply received before the
// stream opens is returned as an [*a2a.Error].
func (c *Client) SendMessageStream(ctx context.Context, msg a2a.Message) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, id, err := c.newRequest(ctx, a2a.MethodMessageStream, a2a.MessageSendParams{Message: outbound(msg)})
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.DebugContext(ctx, "a2a stream", "id", id.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: a2a.MethodMessageStream, Err: err}
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		defer cancel()
		defer resp.Body.Close()
		return nil, rejectedStream(resp)
	}

	s := &Stream{
		events: make(chan *a2a.StatusUpdateEvent),
		body:   resp.Body,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(ctx, id)
	return s, nil
}

// rejectedStream decodes the JSON reply of a stream the agent refused to open.
func rejectedStream(resp *http.Response) error {
	var rpcResp a2a.JSONRPCResponse
	if err := json.UnmarshalRead(resp.Body, &rpcResp); err != nil {
		return &TransportError{Op: a2a.MethodMessageStream, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	return &TransportError{Op: a2a.MethodMessageStream, StatusCode: resp.StatusCode, Err: errors.New("agent did not open an event stream")}
}

func (s *Stream) read(ctx context.Context, id a2a.ID) {
	defer close(s.done)
	defer close(s.events)
	defer s.body.Close()

	reader := sse.NewEventStreamReader(s.body, maxFrameBytes)
	for {
		raw, err := reader.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				s.fail(ctx.Err())
				return
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.fail(&TransportError{Op: a2a.MethodMessageStream, Err: err})
			return
		}

		data := eventData(raw)
		if len(data) == 0 {
			continue
		}

		ev, err := decodeFrame(data, id)
		if err != nil {
			s.fail(err)
			return
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
		if ev.Final {
			return
		}
	}
}

// eventData joins the data lines of one raw event.
func eventData(raw []byte) []byte {
	var data [][]byte
	for line := range bytes.SplitSeq(raw, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		v, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = append(data, bytes.TrimPrefix(v, []byte(" ")))
	}
	return bytes.Join(data, []byte("\n"))
}

func decodeFrame(data []byte, id a2a.ID) (*a2a.StatusUpdateEvent, error) {
	var resp a2a.JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &TransportError{Op: a2a.MethodMessageStream, Err: fmt.Errorf("decode frame: %w", err)}
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if !resp.ID.Equal(id) {
		return nil, &TransportError{Op: a2a.MethodMessageStream, Err: fmt.Errorf("frame id %q does not match request id %q", resp.ID, id)}
	}
	var ev a2a.StatusUpdateEvent
	if err := resp.DecodeResult(&ev); err != nil {
		return nil, &TransportError{Op: a2a.MethodMessageStream, Err: fmt.Errorf("decode frame result: %w", err)}
	}
	return &ev, nil
}
