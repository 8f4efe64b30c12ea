package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meshrouter/internal/config"
	"meshrouter/internal/router"
)

// serveRequest is one line of the wire protocol.
type serveRequest struct {
	Op     string         `json:"op"`
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	Text   string         `json:"text,omitempty"`
}

type serveResponse struct {
	Status   string               `json:"status"`
	Error    string               `json:"error,omitempty"`
	Calls    []router.EmittedCall `json:"calls,omitempty"`
	Workflow string               `json:"workflow,omitempty"`
	Matched  *bool                `json:"matched,omitempty"`
	Stats    *router.Stats        `json:"stats,omitempty"`
	Goals    []router.GoalAttempt `json:"goals,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sup, cleanup, err := buildSupervisor(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	logger.Info("serving", zap.String("addr", ln.Addr().String()))

	return serveLoop(ctx, ln, sup)
}

// serveLoop accepts connections until the context is canceled or the
// listener closes, then waits for the worker and all connection
// goroutines to finish.
func serveLoop(ctx context.Context, ln net.Listener, sup *router.Supervisor) error {
	ctx, cancel := context.WithCancel(ctx)
	unlisten := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer unlisten()

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	// The pipeline is single-in-flight; connections are accepted
	// concurrently but requests are serialized through the supervisor.
	// The worker exits with the context so shutdown leaks nothing.
	requests := make(chan func(), 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case fn := <-requests:
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, sup, requests)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, sup *router.Supervisor, requests chan<- func()) {
	defer conn.Close()
	// Cancellation unblocks an idle Scan by closing the connection.
	unhook := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer unhook()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req serveRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(serveResponse{Status: "error", Error: "malformed request: " + err.Error()})
			continue
		}

		done := make(chan serveResponse, 1)
		select {
		case requests <- func() { done <- handle(ctx, sup, req) }:
		case <-ctx.Done():
			return
		}
		select {
		case resp := <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := enc.Encode(resp); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func handle(ctx context.Context, sup *router.Supervisor, req serveRequest) serveResponse {
	switch req.Op {
	case "process":
		if req.Tool == "" {
			return serveResponse{Status: "error", Error: "process requires a tool name"}
		}
		calls := sup.Process(ctx, req.Tool, req.Params, req.Prompt)
		return serveResponse{Status: "ok", Calls: router.EmitPairs(calls)}

	case "set_goal":
		if req.Text == "" {
			return serveResponse{Status: "error", Error: "set_goal requires text"}
		}
		name, ok := sup.SetGoal(ctx, req.Text)
		return serveResponse{Status: "ok", Workflow: name, Matched: &ok}

	case "stats":
		st := sup.Stats()
		return serveResponse{Status: "ok", Stats: &st}

	case "goal_history":
		return serveResponse{Status: "ok", Goals: sup.GoalHistory()}

	default:
		return serveResponse{Status: "error", Error: "unknown op: " + req.Op}
	}
}

// runStats queries a running server over the wire protocol.
func runStats(cmd *cobra.Command, args []string) error {
	conn, err := net.DialTimeout("tcp", serverAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("no server at %s: %w", serverAddr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(serveRequest{Op: "stats"}); err != nil {
		return err
	}
	var resp serveResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("server error: %s", resp.Error)
	}
	st := resp.Stats
	fmt.Printf("total:      %d\n", st.Total)
	fmt.Printf("corrected:  %d\n", st.Corrected)
	fmt.Printf("expanded:   %d\n", st.Expanded)
	fmt.Printf("overridden: %d\n", st.Overridden)
	fmt.Printf("blocked:    %d\n", st.Blocked)
	return nil
}
