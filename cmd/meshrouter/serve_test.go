package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// go.opencensus.io (linked transitively via the genai client) starts a
// stats worker in its package init; it is not a leak from serveLoop.
var goleakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

func TestServeLoopStopsCleanlyOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOpts...)

	prev := logger
	logger = zap.NewNop()
	defer func() { logger = prev }()

	sup := testSupervisor(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- serveLoop(ctx, ln, sup) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(serveRequest{Op: "stats"}); err != nil {
		t.Fatal(err)
	}
	var resp serveResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("resp = %+v", resp)
	}

	// Cancellation must shut down the worker, the listener, and the
	// connection handlers without waiting on idle clients.
	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("serveLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveLoop did not return after cancel")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), 100*time.Millisecond); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}

func TestServeLoopStopsWhenListenerCloses(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOpts...)

	prev := logger
	logger = zap.NewNop()
	defer func() { logger = prev }()

	sup := testSupervisor(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- serveLoop(context.Background(), ln, sup) }()

	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("serveLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveLoop did not return after listener close")
	}
}
