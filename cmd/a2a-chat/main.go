// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command a2a-chat is an interactive client for an A2A agent.
//
// Each line read from stdin is sent as one message of a single
// conversation. Task replies are polled until they finish.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-a2a/a2akit"
	"github.com/go-a2a/a2akit/auth"
	"github.com/go-a2a/a2akit/client"
	"github.com/go-a2a/a2akit/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		baseURL    = flag.String("url", "", "agent base URL, overriding the configuration")
		token      = flag.String("token", "", "bearer token, overriding the configuration")
		stream     = flag.Bool("stream", false, "use message/stream instead of message/send")
		wait       = flag.Duration("wait", 2*time.Minute, "how long to wait for a task to finish")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}
	if *token != "" {
		cfg.Client.Token = *token
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := newSession(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	s.stream = *stream
	s.wait = *wait

	if err := s.run(ctx, os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is one conversation with an agent.
type session struct {
	c         *client.Client
	out       io.Writer
	contextID string
	stream    bool
	wait      time.Duration
	interval  time.Duration
}

func newSession(cfg *config.Config, out io.Writer) (*session, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c, err := client.New(cfg.Client.BaseURL,
		client.WithLogger(logger),
		client.WithBearerToken(auth.NewBearerToken(cfg.Client.Token)),
	)
	if err != nil {
		return nil, err
	}
	return &session{
		c:        c,
		out:      out,
		wait:     2 * time.Minute,
		interval: cfg.Client.PollInterval,
	}, nil
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	card, err := s.c.AgentCard(ctx)
	if err != nil {
		return fmt.Errorf("discover agent: %w", err)
	}
	fmt.Fprintf(s.out, "Connected to %s %s\n", card.Name, card.Version)
	for _, skill := range card.Skills {
		fmt.Fprintf(s.out, "  skill %s: %s\n", skill.ID, skill.Description)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		if err := s.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *session) send(ctx context.Context, text string) error {
	msg := a2a.Message{
		ContextID: s.contextID,
		Parts:     []a2a.Part{a2a.NewTextPart(text)},
	}
	if s.stream {
		return s.sendStream(ctx, msg)
	}

	resp, err := s.c.SendMessage(ctx, msg)
	if err != nil {
		return err
	}
	if resp.Message != nil {
		s.contextID = resp.Message.ContextID
		printParts(s.out, "agent", resp.Message.Parts)
		return nil
	}

	s.contextID = resp.Task.ContextID
	fmt.Fprintf(s.out, "task %s is %s\n", resp.Task.ID, resp.Task.Status.State)

	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	t, err := client.WaitForTask(waitCtx, s.c, resp.Task.ID, s.interval)
	if err != nil {
		return err
	}
	printTask(s.out, t)
	return nil
}

func (s *session) sendStream(ctx context.Context, msg a2a.Message) error {
	stream, err := s.c.SendMessageStream(ctx, msg)
	if err != nil {
		return err
	}
	defer stream.Close()

	for ev := range stream.Events() {
		s.contextID = ev.ContextID
		fmt.Fprintf(s.out, "task %s is %s\n", ev.TaskID, ev.Status.State)
		if ev.Final && ev.Status.Message != nil {
			printParts(s.out, "agent", ev.Status.Message.Parts)
		}
	}
	return stream.Err()
}

func printTask(w io.Writer, t *a2a.TaskResponse) {
	fmt.Fprintf(w, "task %s is %s", t.ID, t.Status.State)
	if p := t.Status.Progress; p != nil && p.Message != "" {
		fmt.Fprintf(w, ": %s", p.Message)
	}
	fmt.Fprintln(w)
	for _, a := range t.Artifacts {
		printParts(w, "artifact "+a.ArtifactID, a.Parts)
	}
}

func printParts(w io.Writer, from string, parts []a2a.Part) {
	for _, p := range parts {
		switch p.Kind {
		case a2a.PartKindText:
			fmt.Fprintf(w, "%s: %s\n", from, p.Text)
		case a2a.PartKindFile:
			name := "unnamed"
			if p.File != nil && p.File.Name != "" {
				name = p.File.Name
			}
			fmt.Fprintf(w, "%s: [file %s]\n", from, name)
		case a2a.PartKindData:
			fmt.Fprintf(w, "%s: [data with %d fields]\n", from, len(p.Data))
		}
	}
}
