// Package classify turns free text into ranked tool and workflow
// intents. The primary path embeds the text and searches the vector
// store; without an embedding engine the tool classifier degrades to a
// TF-IDF bag-of-words ranking over the same corpus.
package classify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"meshrouter/internal/embedding"
	"meshrouter/internal/logging"
	"meshrouter/internal/vector"
	"meshrouter/internal/workflow"
)

// Intent is one ranked classification result.
type Intent struct {
	ID    string
	Score float64
}

// ToolDoc is one tool made searchable by description.
type ToolDoc struct {
	Name        string
	Description string
}

// Classifier resolves text to tool and workflow intents. The embedding
// engine may be nil; everything then runs on the TF-IDF fallback. An
// engine that fails its health probe or errors during bulk indexing is
// demoted the same way rather than surfacing the failure.
type Classifier struct {
	store  *vector.Store
	engine embedding.Engine

	// degraded marks an engine that was configured but found unusable
	// at index time. Set only during Index*, before concurrent reads.
	degraded bool

	toolIndex     *tfidfIndex
	workflowIndex *tfidfIndex
}

// New builds a classifier over a store and an optional engine.
func New(store *vector.Store, engine embedding.Engine) *Classifier {
	return &Classifier{
		store:         store,
		engine:        engine,
		toolIndex:     newTFIDFIndex(),
		workflowIndex: newTFIDFIndex(),
	}
}

// SemanticAvailable reports whether the embedding path is usable.
func (c *Classifier) SemanticAvailable() bool {
	return c.engine != nil && !c.degraded
}

// semanticUsable probes the engine's health before bulk indexing. A
// failed probe demotes the classifier to the statistical fallback.
func (c *Classifier) semanticUsable(ctx context.Context) bool {
	if !c.SemanticAvailable() {
		return false
	}
	hc, ok := c.engine.(embedding.HealthChecker)
	if !ok {
		return true
	}
	if err := hc.HealthCheck(ctx); err != nil {
		logging.Get(logging.CategoryClassify).Warn(
			"embedding engine %s unhealthy, using statistical fallback: %v", c.engine.Name(), err)
		c.degraded = true
		return false
	}
	return true
}

// demote records an engine failure discovered mid-indexing.
func (c *Classifier) demote(err error) {
	logging.Get(logging.CategoryClassify).Warn(
		"embedding failed, using statistical fallback: %v", err)
	c.degraded = true
}

// embed routes through the engine's task-typed path when it has one,
// so GenAI indexes corpus text as documents and classifies live text
// as queries.
func (c *Classifier) embed(ctx context.Context, text string, contentType embedding.ContentType, isQuery bool) ([]float32, error) {
	if tt, ok := c.engine.(embedding.TaskTyped); ok {
		return tt.EmbedForTask(ctx, text, embedding.SelectTaskType(contentType, isQuery))
	}
	return c.engine.Embed(ctx, text)
}

// IndexTools makes tools searchable. With an engine the descriptions
// are embedded into the TOOLS namespace; the TF-IDF index is always
// built so the fallback stays warm.
func (c *Classifier) IndexTools(ctx context.Context, tools []ToolDoc) error {
	c.toolIndex = newTFIDFIndex()
	for _, tool := range tools {
		c.toolIndex.add(tool.Name, tool.Name+" "+tool.Description)
	}
	c.toolIndex.finish()

	if !c.semanticUsable(ctx) {
		logging.Classify("indexed %d tools (statistical only)", len(tools))
		return nil
	}

	records := make([]vector.Record, 0, len(tools))
	for _, tool := range tools {
		vec, err := c.embed(ctx, tool.Description, embedding.ContentTypeToolDescription, false)
		if err != nil {
			c.demote(fmt.Errorf("embedding tool %s: %w", tool.Name, err))
			return nil
		}
		records = append(records, vector.Record{
			ID:        tool.Name,
			Namespace: vector.NamespaceTools,
			Vector:    embedding.Normalize(vec),
			Text:      tool.Description,
			Language:  vector.DetectLanguage(tool.Description),
		})
	}
	if _, err := c.store.Upsert(records); err != nil {
		return err
	}
	logging.Classify("indexed %d tools (semantic + statistical)", len(tools))
	return nil
}

// IndexWorkflows embeds every text variant of every workflow: sample
// phrases, trigger keywords, description, and name, each with its
// source weight and detected language.
func (c *Classifier) IndexWorkflows(ctx context.Context, registry *workflow.Registry) error {
	defs := registry.All()

	c.workflowIndex = newTFIDFIndex()
	for _, def := range defs {
		text := def.Name + " " + def.Description
		for _, kw := range def.Keywords {
			text += " " + kw
		}
		for _, p := range def.Phrases {
			text += " " + p
		}
		c.workflowIndex.add(def.Name, text)
	}
	c.workflowIndex.finish()

	if !c.semanticUsable(ctx) {
		logging.Classify("indexed %d workflows (statistical only)", len(defs))
		return nil
	}

	var records []vector.Record
	for _, def := range defs {
		for _, variant := range workflowVariants(def) {
			vec, err := c.embed(ctx, variant.text, embedding.ContentTypeWorkflowText, false)
			if err != nil {
				c.demote(fmt.Errorf("embedding workflow %s: %w", def.Name, err))
				return nil
			}
			records = append(records, vector.Record{
				ID:           variant.id,
				Namespace:    vector.NamespaceWorkflows,
				Vector:       embedding.Normalize(vec),
				Text:         variant.text,
				Metadata:     map[string]string{vector.MetadataWorkflow: def.Name},
				SourceWeight: variant.weight,
				Language:     vector.DetectLanguage(variant.text),
			})
		}
	}
	if _, err := c.store.Upsert(records); err != nil {
		return err
	}
	logging.Classify("indexed %d workflows as %d records", len(defs), len(records))
	return nil
}

type textVariant struct {
	id     string
	text   string
	weight float64
}

func workflowVariants(def workflow.Definition) []textVariant {
	variants := []textVariant{
		{id: def.Name + ":name", text: def.Name, weight: vector.WeightName},
	}
	if def.Description != "" {
		variants = append(variants, textVariant{
			id: def.Name + ":description", text: def.Description, weight: vector.WeightDescription,
		})
	}
	for i, kw := range def.Keywords {
		variants = append(variants, textVariant{
			id: fmt.Sprintf("%s:keyword:%d", def.Name, i), text: kw, weight: vector.WeightKeyword,
		})
	}
	for i, phrase := range def.Phrases {
		variants = append(variants, textVariant{
			id: fmt.Sprintf("%s:phrase:%d", def.Name, i), text: phrase, weight: vector.WeightPhrase,
		})
	}
	return variants
}

// ClassifyTool ranks tools for the text.
func (c *Classifier) ClassifyTool(ctx context.Context, text string, topK int) ([]Intent, error) {
	if !c.SemanticAvailable() {
		return c.statisticalTools(text, topK), nil
	}
	vec, err := c.embed(ctx, text, embedding.ContentTypeToolDescription, true)
	if err != nil {
		logging.Classify("embed failed, using statistical fallback: %v", err)
		return c.statisticalTools(text, topK), nil
	}
	results := c.store.Search(embedding.Normalize(vec), vector.NamespaceTools, topK, 0.0, nil)
	intents := make([]Intent, len(results))
	for i, r := range results {
		intents[i] = Intent{ID: r.Record.ID, Score: r.Score}
	}
	return intents, nil
}

func (c *Classifier) statisticalTools(text string, topK int) []Intent {
	hits := c.toolIndex.search(text, topK)
	intents := make([]Intent, len(hits))
	for i, h := range hits {
		intents[i] = Intent{ID: h.ID, Score: h.Score}
	}
	return intents
}

// ClassifyWorkflow ranks workflows for the text using the weighted
// multi-embedding search. Falls back to TF-IDF with a source weight of
// 1.0 and no language boost.
func (c *Classifier) ClassifyWorkflow(ctx context.Context, text string, topK int, minScore float64) ([]vector.WeightedSearchResult, error) {
	if !c.SemanticAvailable() {
		return c.statisticalWorkflows(text, topK, minScore), nil
	}
	vec, err := c.embed(ctx, text, embedding.ContentTypeGoal, true)
	if err != nil {
		logging.Classify("embed failed, using statistical fallback: %v", err)
		return c.statisticalWorkflows(text, topK, minScore), nil
	}
	language := vector.DetectLanguage(text)
	return c.store.SearchWeightedWorkflows(embedding.Normalize(vec), language, topK, minScore), nil
}

func (c *Classifier) statisticalWorkflows(text string, topK int, minScore float64) []vector.WeightedSearchResult {
	hits := c.workflowIndex.search(text, topK)
	results := make([]vector.WeightedSearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		results = append(results, vector.WeightedSearchResult{
			WorkflowID:    h.ID,
			RawScore:      h.Score,
			SourceWeight:  1.0,
			LanguageBoost: 1.0,
			FinalScore:    h.Score,
		})
	}
	return results
}

// Classification bundles both intent rankings for one text.
type Classification struct {
	Tools     []Intent
	Workflows []vector.WeightedSearchResult
}

// Classify runs tool and workflow classification concurrently.
func (c *Classifier) Classify(ctx context.Context, text string, topK int, minScore float64) (Classification, error) {
	var out Classification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tools, err := c.ClassifyTool(gctx, text, topK)
		out.Tools = tools
		return err
	})
	g.Go(func() error {
		workflows, err := c.ClassifyWorkflow(gctx, text, topK, minScore)
		out.Workflows = workflows
		return err
	})
	if err := g.Wait(); err != nil {
		return Classification{}, err
	}
	return out, nil
}
