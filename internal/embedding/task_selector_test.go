package embedding

import "testing"

func TestSelectTaskType(t *testing.T) {
	if got := SelectTaskType(ContentTypeWorkflowText, false); got != "RETRIEVAL_DOCUMENT" {
		t.Fatalf("SelectTaskType(workflow, doc)=%q, want RETRIEVAL_DOCUMENT", got)
	}
	if got := SelectTaskType(ContentTypeWorkflowText, true); got != "RETRIEVAL_QUERY" {
		t.Fatalf("SelectTaskType(workflow, query)=%q, want RETRIEVAL_QUERY", got)
	}
	if got := SelectTaskType(ContentTypeGoal, false); got != "RETRIEVAL_QUERY" {
		t.Fatalf("SelectTaskType(goal)=%q, want RETRIEVAL_QUERY", got)
	}
	if got := SelectTaskType(ContentType("other"), false); got != "SEMANTIC_SIMILARITY" {
		t.Fatalf("SelectTaskType(unknown)=%q, want SEMANTIC_SIMILARITY", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if sim, err := CosineSimilarity(a, a); err != nil || sim < 0.999 {
		t.Fatalf("identical vectors: sim=%v err=%v", sim, err)
	}
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("orthogonal vectors: sim=%v err=%v", sim, err)
	}
	if _, err := CosineSimilarity(a, []float32{1, 0}); err == nil {
		t.Fatal("dimension mismatch must error")
	}
	if sim, err := CosineSimilarity([]float32{0, 0, 0}, a); err != nil || sim != 0 {
		t.Fatalf("zero vector: sim=%v err=%v", sim, err)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Fatalf("Normalize([3,4]) = %v", v)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector changed: %v", zero)
	}
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},       // orthogonal
		{1, 0},       // identical
		{0.7, 0.7},   // diagonal
		{1, 0, 0, 0}, // wrong dimensions, skipped
	}
	results := FindTopK(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Index != 1 {
		t.Errorf("best index = %d, want 1", results[0].Index)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not sorted descending")
	}
}
