package pattern

import (
	"testing"

	"meshrouter/internal/scene"
)

func snapshotFor(dims [3]float64, kind string) *scene.SceneSnapshot {
	props := scene.CalculateProportions(dims[:])
	snap := scene.EmptySnapshot()
	snap.Mode = scene.ModeObject
	snap.ActiveObject = "Shape"
	snap.Objects = []scene.ObjectInfo{{
		ID:         "Shape",
		Kind:       kind,
		Dimensions: dims,
		Active:     true,
	}}
	snap.Proportions = &props
	return snap
}

func TestDetectTowerHighConfidence(t *testing.T) {
	d := NewDetector(0)
	best := d.BestMatch(snapshotFor([3]float64{0.3, 0.3, 3.0}, "MESH"))
	if best == nil {
		t.Fatal("expected a best match for tower proportions")
	}
	if best.Archetype != ArchetypeTower {
		t.Fatalf("archetype = %s, want tower", best.Archetype)
	}
	if best.Confidence <= 0.7 {
		t.Errorf("tower confidence = %.2f, want > 0.7", best.Confidence)
	}
	if best.SuggestedWorkflow != "build_tower" {
		t.Errorf("suggested workflow = %q, want build_tower", best.SuggestedWorkflow)
	}
}

func TestDetectPhoneHighConfidence(t *testing.T) {
	d := NewDetector(0)
	best := d.BestMatch(snapshotFor([3]float64{0.4, 0.8, 0.05}, "MESH"))
	if best == nil {
		t.Fatal("expected a best match for phone proportions")
	}
	if best.Archetype != ArchetypePhone {
		t.Fatalf("archetype = %s, want phone", best.Archetype)
	}
	if best.Confidence <= 0.7 {
		t.Errorf("phone confidence = %.2f, want > 0.7", best.Confidence)
	}
}

func TestDetectTableConfidence(t *testing.T) {
	d := NewDetector(0)
	results := d.Detect(snapshotFor([3]float64{2.0, 1.5, 0.1}, "MESH"))
	var table *DetectionResult
	for i := range results {
		if results[i].Archetype == ArchetypeTable {
			table = &results[i]
			break
		}
	}
	if table == nil {
		t.Fatal("table archetype missing from results")
	}
	if table.Confidence <= 0.5 {
		t.Errorf("table confidence = %.2f, want > 0.5", table.Confidence)
	}
	if results[0].Archetype != ArchetypeTable {
		t.Errorf("best archetype = %s, want table", results[0].Archetype)
	}
}

func TestDetectCubeIsBox(t *testing.T) {
	d := NewDetector(0)
	best := d.BestMatch(snapshotFor([3]float64{2, 2, 2}, "MESH"))
	if best == nil {
		t.Fatal("expected a best match for a cube")
	}
	if best.Archetype != ArchetypeBox {
		t.Errorf("archetype = %s, want box", best.Archetype)
	}
}

func TestDetectSortedDescending(t *testing.T) {
	d := NewDetector(0)
	results := d.Detect(snapshotFor([3]float64{0.5, 0.5, 0.05}, "CYLINDER"))
	if len(results) < 2 {
		t.Fatalf("expected multiple candidates, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Confidence > results[i-1].Confidence {
			t.Fatalf("results not sorted: %.2f before %.2f", results[i-1].Confidence, results[i].Confidence)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector(0)
	snap := snapshotFor([3]float64{0.3, 0.3, 3.0}, "CYLINDER")
	first := d.Detect(snap)
	for i := 0; i < 10; i++ {
		again := d.Detect(snap)
		if len(again) != len(first) {
			t.Fatalf("run %d: result count changed", i)
		}
		for j := range again {
			if again[j].Archetype != first[j].Archetype || again[j].Confidence != first[j].Confidence {
				t.Fatalf("run %d: result %d differs", i, j)
			}
		}
	}
}

func TestBestMatchBelowThresholdIsNil(t *testing.T) {
	d := NewDetector(0.99)
	// Plank-ish shape that matches some rules but cannot reach 0.99.
	if best := d.BestMatch(snapshotFor([3]float64{4, 1, 0.5}, "MESH")); best != nil {
		t.Errorf("expected nil below threshold, got %s %.2f", best.Archetype, best.Confidence)
	}
}

func TestDetectNilProportions(t *testing.T) {
	d := NewDetector(0)
	snap := scene.EmptySnapshot()
	if results := d.Detect(snap); results != nil {
		t.Errorf("expected nil results without proportions, got %d", len(results))
	}
	if d.BestMatch(nil) != nil {
		t.Error("expected nil best match for nil snapshot")
	}
}
