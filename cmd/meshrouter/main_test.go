package main

import (
	"context"
	"testing"
	"time"

	"meshrouter/internal/backend"
	"meshrouter/internal/correction"
	"meshrouter/internal/firewall"
	"meshrouter/internal/intercept"
	"meshrouter/internal/override"
	"meshrouter/internal/pattern"
	"meshrouter/internal/router"
	"meshrouter/internal/scene"
	"meshrouter/internal/workflow"
)

// testSupervisor wires a pipeline against an unreachable backend; the
// analyzer degrades to an empty snapshot, which is enough for protocol
// tests.
func testSupervisor(t *testing.T) *router.Supervisor {
	t.Helper()
	fw, err := firewall.New()
	if err != nil {
		t.Fatal(err)
	}
	client := backend.NewTCPClient(backend.TCPClientConfig{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		ConnectTimeout: 50 * time.Millisecond,
		CommandTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return router.New(router.Deps{
		Interceptor: intercept.New(""),
		Analyzer:    scene.NewAnalyzer(client, time.Second),
		Detector:    pattern.NewDetector(0),
		Corrector:   correction.NewEngine(correction.DefaultOptions()),
		Overrides:   override.NewEngine(),
		Registry:    workflow.NewRegistry(),
		Firewall:    fw,
	}, router.DefaultOptions())
}

func TestHandleProcess(t *testing.T) {
	sup := testSupervisor(t)
	resp := handle(context.Background(), sup, serveRequest{
		Op:   "process",
		Tool: "render_frame",
	})
	if resp.Status != "ok" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Calls) != 1 || resp.Calls[0].Tool != "render_frame" {
		t.Errorf("calls = %+v", resp.Calls)
	}
}

func TestHandleProcessRequiresTool(t *testing.T) {
	resp := handle(context.Background(), testSupervisor(t), serveRequest{Op: "process"})
	if resp.Status != "error" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleSetGoalAndStats(t *testing.T) {
	sup := testSupervisor(t)

	resp := handle(context.Background(), sup, serveRequest{Op: "set_goal", Text: "build tower"})
	if resp.Status != "ok" || resp.Workflow != "build_tower" || resp.Matched == nil || !*resp.Matched {
		t.Fatalf("resp = %+v", resp)
	}

	handle(context.Background(), sup, serveRequest{Op: "process", Tool: "render_frame"})

	resp = handle(context.Background(), sup, serveRequest{Op: "stats"})
	if resp.Status != "ok" || resp.Stats == nil || resp.Stats.Total != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	resp = handle(context.Background(), sup, serveRequest{Op: "goal_history"})
	if resp.Status != "ok" || len(resp.Goals) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleUnknownOp(t *testing.T) {
	resp := handle(context.Background(), testSupervisor(t), serveRequest{Op: "teleport"})
	if resp.Status != "error" {
		t.Errorf("resp = %+v", resp)
	}
}
