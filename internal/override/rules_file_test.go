package override

import (
	"os"
	"path/filepath"
	"testing"

	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

func TestLoadFileRegistersRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	doc := `rules:
  - name: apply_over_transform
    trigger_tool: modeling_transform
    reason: destructive transforms should go through apply
    replacements:
      - tool: modeling_transform
        inherit: [scale, rotation]
      - tool: modeling_apply_transform
        params:
          scale: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine()
	if err := e.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	call := toolcall.NewIntercepted("s1", "modeling_transform",
		map[string]any{"scale": []float64{2, 2, 2}, "location": []float64{1, 0, 0}}, "")
	d := e.CheckOverride(call, scene.EmptySnapshot(), nil)
	if !d.ShouldOverride || d.RuleName != "apply_over_transform" {
		t.Fatalf("decision = %+v", d)
	}
	if len(d.Calls) != 2 {
		t.Fatalf("replacement calls = %d, want 2", len(d.Calls))
	}
	if _, ok := d.Calls[0].Params["scale"]; !ok {
		t.Errorf("inherit from file rule failed: %v", d.Calls[0].Params)
	}
	if _, leaked := d.Calls[0].Params["location"]; leaked {
		t.Error("non-declared param inherited")
	}
	if d.Calls[1].Params["scale"] != true {
		t.Errorf("static params from file rule = %v", d.Calls[1].Params)
	}
	if len(d.Reasons) != 1 {
		t.Errorf("reasons = %v", d.Reasons)
	}
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	e := NewEngine()
	if err := e.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should be tolerated: %v", err)
	}
}

func TestLoadFileRejectsIncompleteRules(t *testing.T) {
	dir := t.TempDir()
	bad := []string{
		"rules:\n  - trigger_tool: x\n    replacements: [{tool: y}]\n",
		"rules:\n  - name: r\n    replacements: [{tool: y}]\n",
		"rules:\n  - name: r\n    trigger_tool: x\n",
		"rules:\n  - name: r\n    trigger_tool: x\n    replacements: [{}]\n",
	}
	for i, doc := range bad {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := NewEngine().LoadFile(path); err == nil {
			t.Errorf("doc %d accepted, want validation error", i)
		}
	}
}
