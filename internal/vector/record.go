// Package vector is the embedding store behind intent classification.
// Records live in mutually exclusive namespaces and persist to sqlite;
// when the index is unavailable every operation falls back to an
// in-memory linear scan with identical semantics.
package vector

// Namespace partitions the store. A record belongs to exactly one.
type Namespace string

const (
	NamespaceTools     Namespace = "TOOLS"
	NamespaceWorkflows Namespace = "WORKFLOWS"
	// NamespaceParameters is reserved for per-parameter examples; no
	// component writes to it yet.
	NamespaceParameters Namespace = "PARAMETERS"
)

// Source weights for workflow text variants. A user phrase is the
// strongest signal, the workflow's own name the weakest.
const (
	WeightPhrase      = 1.0
	WeightKeyword     = 0.8
	WeightDescription = 0.6
	WeightName        = 0.5
)

// Language boost applied during weighted search.
const (
	sameLanguageBoost  = 1.0
	crossLanguageBoost = 0.9
)

// MetadataWorkflow is the metadata key linking a record to its workflow.
const MetadataWorkflow = "workflow"

// Record is one stored embedding. A workflow owns several records, one
// per text variant, each tagged with that variant's source weight and
// detected language. (namespace, id) is unique; upsert replaces.
type Record struct {
	ID           string            `json:"id"`
	Namespace    Namespace         `json:"namespace"`
	Vector       []float32         `json:"-"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SourceWeight float64           `json:"source_weight"`
	Language     string            `json:"language"`
}

// SearchResult is one standard-search hit.
type SearchResult struct {
	Record Record
	Score  float64
}

// WeightedSearchResult is one weighted workflow hit: the single best
// variant of one workflow. FinalScore = RawScore * SourceWeight *
// LanguageBoost.
type WeightedSearchResult struct {
	WorkflowID    string
	Record        Record
	RawScore      float64
	SourceWeight  float64
	LanguageBoost float64
	FinalScore    float64
}
