// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command a2a-server serves an echo agent over the A2A protocol.
//
// Short messages are echoed back immediately. Longer ones become tasks that
// complete in the background and can be polled with tasks/get.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/go-a2a/a2akit/auth"
	"github.com/go-a2a/a2akit/client"
	"github.com/go-a2a/a2akit/config"
	"github.com/go-a2a/a2akit/server"
)

func init() {
	// Enable the use of the random pool for UUID generation.
	uuid.EnableRandPool()
}

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		port       = flag.Int("port", 0, "port to listen on, overriding the configuration")
		workDelay  = flag.Duration("work-delay", 2*time.Second, "time the echo agent spends on a task")
	)
	flag.Parse()

	if err := run(*configPath, *port, *workDelay); err != nil {
		slog.Error("a2a-server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, workDelay time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks, closeTasks, err := openTaskManager(ctx, cfg.Storage.Tasks, logger)
	if err != nil {
		return err
	}
	defer closeTasks()

	conversations, closeConversations, err := openConversationManager(ctx, cfg.Storage.Conversations, logger)
	if err != nil {
		return err
	}
	defer closeConversations()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithTaskManager(tasks),
		server.WithConversationManager(conversations),
		server.WithHandlerTimeout(cfg.HandlerTimeout),
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, server.WithRateLimit(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst))
	}
	if cfg.H2C {
		opts = append(opts, server.WithH2C())
	}

	srv, err := server.NewServer(cfg.AgentCard, &echoAgent{delay: workDelay, logger: logger}, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr())
	})
	g.Go(func() error {
		return announce(gctx, cfg, logger)
	})
	return g.Wait()
}

// announce fetches the served card through the client once the listener is
// up, so a misconfigured card shows up in the logs right away.
func announce(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	c, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		client.WithLogger(logger),
		client.WithBearerToken(auth.NewBearerToken(cfg.Client.Token)),
	)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		card, err := c.AgentCard(ctx)
		if err == nil {
			logger.InfoContext(ctx, "agent ready",
				"agent", card.Name,
				"version", card.Version,
				"skills", len(card.Skills),
				"streaming", card.Capabilities.Streaming)
			return nil
		}
		if attempt == 50 {
			logger.WarnContext(ctx, "agent card not reachable", "error", err)
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
