// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/conversation"
	"github.com/go-a2a/a2akit/task"
)

const (
	defaultMaxBodyBytes = 4 << 20
	shutdownTimeout     = 10 * time.Second
)

// Server is the HTTP gateway of an agent. It serves the AgentCard and the
// JSON-RPC endpoint.
type Server struct {
	card       a2a.AgentCard
	cardJSON   []byte
	dispatcher *Dispatcher
	handler    http.Handler

	logger         *slog.Logger
	tasks          *task.Manager
	conversations  *conversation.Manager
	handlerTimeout time.Duration
	limiter        *rate.Limiter
	cors           cors.Options
	maxBodyBytes   int64
	h2c            bool
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a new A2A server for the agent described by card whose
// business logic is handler.
func NewServer(card a2a.AgentCard, handler a2a.Handler, opts ...Option) (*Server, error) {
	s := &Server{
		logger: slog.Default(),
		cors: cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	card.Normalize()
	card.Capabilities.Streaming = true
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent card: %w", err)
	}
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encode agent card: %w", err)
	}
	s.card = card
	s.cardJSON = cardJSON

	s.dispatcher, err = NewDispatcher(handler, DispatcherConfig{
		Tasks:          s.tasks,
		Conversations:  s.conversations,
		Logger:         s.logger,
		HandlerTimeout: s.handlerTimeout,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	// discovery always answers at the well-known path
	mux.HandleFunc("GET "+a2a.AgentCardWellKnownPath, s.handleAgentCard)
	if card.Endpoints.AgentCard != a2a.AgentCardWellKnownPath {
		mux.HandleFunc("GET "+card.Endpoints.AgentCard, s.handleAgentCard)
	}
	mux.HandleFunc("POST "+card.Endpoints.Base, s.handleRPC)

	mws := []Middleware{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(s.cors),
		authMiddleware,
	}
	if s.limiter != nil {
		mws = append(mws, rateLimitMiddleware(s.limiter))
	}
	s.handler = chain(mux, mws...)
	if s.h2c {
		s.handler = h2c.NewHandler(s.handler, &http2.Server{})
	}

	return s, nil
}

// AgentCard returns a copy of the served card.
func (s *Server) AgentCard() a2a.AgentCard { return s.card }

// Dispatcher returns the RPC dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleAgentCard serves the agent card. The bytes are encoded once so every
// caller sees the same document.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.cardJSON)
}

// handleRPC handles all JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, a2a.ID{}, a2a.NewInvalidRequestError("request body too large"))
			return
		}
		s.writeError(w, a2a.ID{}, a2a.NewJSONParseError())
		return
	}

	if !jsontext.Value(body).IsValid() {
		s.writeError(w, a2a.ID{}, a2a.NewJSONParseError())
		return
	}
	var req a2a.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, a2a.ID{}, a2a.NewInvalidRequestError(err.Error()))
		return
	}

	ctx := r.Context()
	if s.dispatcher.IsStream(req.Method) {
		s.serveStream(ctx, w, &req)
		return
	}

	resp := s.dispatcher.Dispatch(ctx, &req)
	status := http.StatusOK
	if resp.Error != nil {
		status = resp.Error.HTTPStatus()
	}
	writeJSON(w, status, resp)
}

func (s *Server) serveStream(ctx context.Context, w http.ResponseWriter, req *a2a.Request) {
	events, rpcErr := s.dispatcher.OpenStream(ctx, req)
	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		s.logger.ErrorContext(ctx, "open event stream", "error", err)
		s.writeError(w, req.ID, a2a.NewError(a2a.InternalErrorCode, err.Error()))
		return
	}

	for ev := range events {
		resp, err := a2a.NewResultResponse(req.ID, ev)
		if err != nil {
			resp = a2a.NewErrorResponse(req.ID, a2a.NewError(a2a.InternalErrorCode, "Internal error"))
		}
		if err := sse.WriteResponse(resp); err != nil {
			s.logger.DebugContext(ctx, "write event", "task_id", ev.TaskID, "error", err)
			return
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, id a2a.ID, rpcErr *a2a.Error) {
	writeJSON(w, rpcErr.HTTPStatus(), a2a.NewErrorResponse(id, rpcErr))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.MarshalWrite(w, v)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully and waits for running continuations.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "a2a server listening", "addr", ln.Addr().String(), "agent", s.card.Name)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := s.dispatcher.Wait(shutdownCtx); err != nil {
		s.logger.WarnContext(ctx, "continuations still running at shutdown", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
