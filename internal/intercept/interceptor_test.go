package intercept

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInterceptPersistsAndRecalls(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ic := New(dbPath)
	defer ic.Close()

	if !ic.Persistent() {
		t.Fatal("expected persistent interceptor")
	}

	first := ic.Intercept("session-a", "mesh_extrude_region", map[string]any{"depth": 1.5}, "extrude the top")
	time.Sleep(5 * time.Millisecond)
	second := ic.Intercept("session-a", "mesh_bevel", map[string]any{"offset": 0.1}, "")
	ic.Intercept("session-b", "modeling_create_primitive", nil, "")

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("calls must get distinct ids: %q vs %q", first.ID, second.ID)
	}

	calls, err := ic.Recent("session-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("session-a calls = %d, want 2", len(calls))
	}
	if calls[0].Tool != "mesh_bevel" {
		t.Errorf("newest first, got %s", calls[0].Tool)
	}
	if calls[1].Params["depth"] != 1.5 {
		t.Errorf("params round-trip: %v", calls[1].Params)
	}
	if calls[1].Prompt != "extrude the top" {
		t.Errorf("prompt round-trip: %q", calls[1].Prompt)
	}

	all, err := ic.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all calls = %d, want 3", len(all))
	}

	counts, err := ic.CountBySession()
	if err != nil {
		t.Fatal(err)
	}
	if counts["session-a"] != 2 || counts["session-b"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestInterceptorWithoutDatabase(t *testing.T) {
	ic := New("")
	defer ic.Close()

	if ic.Persistent() {
		t.Fatal("expected non-persistent interceptor")
	}
	call := ic.Intercept("s1", "mesh_delete", nil, "")
	if call.ID == "" || call.Tool != "mesh_delete" {
		t.Errorf("stamping must work without persistence: %+v", call)
	}
	if calls, err := ic.Recent("s1", 5); err != nil || calls != nil {
		t.Errorf("Recent = (%v, %v), want (nil, nil)", calls, err)
	}
}
