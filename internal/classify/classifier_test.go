package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"meshrouter/internal/vector"
	"meshrouter/internal/workflow"
)

// fakeEngine produces deterministic pseudo-embeddings from token
// overlap so semantic tests run without a model.
type fakeEngine struct{}

func (fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	// Hash tokens into a fixed number of buckets.
	vec := make([]float32, 32)
	for _, tok := range tokenize(text) {
		h := 0
		for _, r := range tok {
			h = h*31 + int(r)
		}
		if h < 0 {
			h = -h
		}
		vec[h%32]++
	}
	return vec, nil
}

func (e fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := e.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (fakeEngine) Dimensions() int { return 32 }
func (fakeEngine) Name() string    { return "fake" }

func sampleTools() []ToolDoc {
	return []ToolDoc{
		{Name: "mesh_extrude_region", Description: "extrude the selected faces outward along their normals"},
		{Name: "mesh_bevel", Description: "bevel selected edges with a rounded profile"},
		{Name: "modeling_create_primitive", Description: "create a primitive object such as a cube sphere or cylinder"},
		{Name: "modeling_transform", Description: "move rotate or scale the active object"},
	}
}

func TestStatisticalToolClassification(t *testing.T) {
	c := New(vector.NewStore(""), nil)
	if c.SemanticAvailable() {
		t.Fatal("no engine configured")
	}
	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatal(err)
	}

	intents, err := c.ClassifyTool(context.Background(), "bevel the edges", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(intents) == 0 || intents[0].ID != "mesh_bevel" {
		t.Fatalf("intents = %+v, want mesh_bevel first", intents)
	}

	intents, _ = c.ClassifyTool(context.Background(), "create a cube", 3)
	if len(intents) == 0 || intents[0].ID != "modeling_create_primitive" {
		t.Fatalf("intents = %+v, want modeling_create_primitive first", intents)
	}
}

func TestStatisticalRankingIsStable(t *testing.T) {
	c := New(vector.NewStore(""), nil)
	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatal(err)
	}
	first, _ := c.ClassifyTool(context.Background(), "scale the object", 4)
	for i := 0; i < 10; i++ {
		again, _ := c.ClassifyTool(context.Background(), "scale the object", 4)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: ranking changed at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestSemanticToolClassification(t *testing.T) {
	store := vector.NewStore("")
	c := New(store, fakeEngine{})
	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatal(err)
	}
	if store.Count(vector.NamespaceTools) != len(sampleTools()) {
		t.Fatalf("tools indexed = %d", store.Count(vector.NamespaceTools))
	}

	intents, err := c.ClassifyTool(context.Background(), "bevel selected edges with a rounded profile", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(intents) == 0 || intents[0].ID != "mesh_bevel" {
		t.Fatalf("intents = %+v, want mesh_bevel first", intents)
	}
}

func TestWorkflowIndexingAndClassification(t *testing.T) {
	store := vector.NewStore("")
	c := New(store, fakeEngine{})
	registry := workflow.NewRegistry()
	if err := c.IndexWorkflows(context.Background(), registry); err != nil {
		t.Fatal(err)
	}

	// Every workflow owns one record per text variant.
	towerVariants := 0
	for _, def := range registry.All() {
		if def.Name == "build_tower" {
			towerVariants = 1 + 1 + len(def.Keywords) + len(def.Phrases)
		}
	}
	results := store.Search(mustEmbed(t, "make a tall tower"), vector.NamespaceWorkflows, 100, -1.0,
		map[string]string{vector.MetadataWorkflow: "build_tower"})
	if len(results) != towerVariants {
		t.Fatalf("tower records = %d, want %d", len(results), towerVariants)
	}

	hits, err := c.ClassifyWorkflow(context.Background(), "make a tall tower", 3, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].WorkflowID != "build_tower" {
		t.Fatalf("hits = %+v, want build_tower first", hits)
	}
	seen := map[string]bool{}
	for _, h := range hits {
		if seen[h.WorkflowID] {
			t.Fatalf("duplicate workflow %s", h.WorkflowID)
		}
		seen[h.WorkflowID] = true
	}
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := fakeEngine{}.Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestStatisticalWorkflowFallback(t *testing.T) {
	c := New(vector.NewStore(""), nil)
	if err := c.IndexWorkflows(context.Background(), workflow.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	hits, err := c.ClassifyWorkflow(context.Background(), "flatten the object down", 3, 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].WorkflowID != "flatten_object" {
		t.Fatalf("hits = %+v, want flatten_object first", hits)
	}
	for _, h := range hits {
		if h.SourceWeight != 1.0 || h.LanguageBoost != 1.0 {
			t.Errorf("fallback hit carries weights: %+v", h)
		}
	}
}

func TestClassifyRunsBothRankings(t *testing.T) {
	c := New(vector.NewStore(""), nil)
	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatal(err)
	}
	if err := c.IndexWorkflows(context.Background(), workflow.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	got, err := c.Classify(context.Background(), "build a tower of cubes", 3, 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Workflows) == 0 {
		t.Error("workflow ranking empty")
	}
	if len(got.Tools) == 0 {
		t.Error("tool ranking empty")
	}
}

// downEngine always fails, optionally failing its health probe too.
type downEngine struct {
	healthErr error
}

func (e downEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (e downEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func (downEngine) Dimensions() int { return 32 }
func (downEngine) Name() string    { return "down" }

func (e downEngine) HealthCheck(context.Context) error { return e.healthErr }

func TestUnhealthyEngineDegradesToStatistical(t *testing.T) {
	c := New(vector.NewStore(""), downEngine{healthErr: errors.New("connection refused")})
	if err := c.IndexWorkflows(context.Background(), workflow.NewRegistry()); err != nil {
		t.Fatalf("indexing must degrade, not error: %v", err)
	}
	if c.SemanticAvailable() {
		t.Fatal("unhealthy engine should demote the classifier")
	}
	hits, err := c.ClassifyWorkflow(context.Background(), "flatten the object down", 3, 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].WorkflowID != "flatten_object" {
		t.Fatalf("hits = %+v, want statistical flatten_object first", hits)
	}
}

func TestEmbedFailureDuringIndexingDegrades(t *testing.T) {
	// No health probe: the failure surfaces on the first Embed call.
	c := New(vector.NewStore(""), downEngine{})
	if err := c.IndexWorkflows(context.Background(), workflow.NewRegistry()); err != nil {
		t.Fatalf("indexing must degrade, not error: %v", err)
	}
	if c.SemanticAvailable() {
		t.Fatal("embed failure should demote the classifier")
	}
	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatalf("tool indexing after demotion must stay statistical: %v", err)
	}
	intents, err := c.ClassifyTool(context.Background(), "bevel the edges", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(intents) == 0 || intents[0].ID != "mesh_bevel" {
		t.Fatalf("intents = %+v, want statistical mesh_bevel first", intents)
	}
}

// taskEngine records the task type of every embed request.
type taskEngine struct {
	fakeEngine
	tasks *[]string
}

func (e taskEngine) EmbedForTask(ctx context.Context, text, taskType string) ([]float32, error) {
	*e.tasks = append(*e.tasks, taskType)
	return e.Embed(ctx, text)
}

func TestTaskTypesDocumentAtIndexQueryAtClassify(t *testing.T) {
	var tasks []string
	c := New(vector.NewStore(""), taskEngine{tasks: &tasks})

	if err := c.IndexTools(context.Background(), sampleTools()); err != nil {
		t.Fatal(err)
	}
	if err := c.IndexWorkflows(context.Background(), workflow.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task != "RETRIEVAL_DOCUMENT" {
			t.Fatalf("index-time task = %q, want RETRIEVAL_DOCUMENT", task)
		}
	}

	tasks = tasks[:0]
	if _, err := c.ClassifyTool(context.Background(), "bevel the edges", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ClassifyWorkflow(context.Background(), "make a tall tower", 2, 0.0); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("query embeds = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task != "RETRIEVAL_QUERY" {
			t.Fatalf("classify-time task = %q, want RETRIEVAL_QUERY", task)
		}
	}
}

func TestTokenizeDropsNoise(t *testing.T) {
	toks := tokenize("Make, a TALL tower! x")
	joined := strings.Join(toks, " ")
	if joined != "make tall tower" {
		t.Errorf("tokenize = %q", joined)
	}
}
