// Package router runs the full decision pipeline for one intercepted
// tool call: scene analysis, pattern detection, correction, workflow
// triggering, override resolution, and firewall validation. The
// pipeline is synchronous and single-in-flight; callers needing
// concurrency must serialize access to one Supervisor or construct
// one per request.
package router

import (
	"context"
	"sync"
	"time"

	"meshrouter/internal/classify"
	"meshrouter/internal/correction"
	"meshrouter/internal/firewall"
	"meshrouter/internal/intercept"
	"meshrouter/internal/logging"
	"meshrouter/internal/override"
	"meshrouter/internal/pattern"
	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
	"meshrouter/internal/workflow"
)

// ============================================================================
// TYPES
// ============================================================================

// Stats counts pipeline outcomes. Corrected means the correction
// engine changed or prefixed the call; Blocked counts firewall blocks.
type Stats struct {
	Total      uint64
	Corrected  uint64
	Overridden uint64
	Expanded   uint64
	Blocked    uint64
}

// GoalMatchMethod records how a set-goal request was resolved.
type GoalMatchMethod string

const (
	GoalMatchKeyword  GoalMatchMethod = "keyword"
	GoalMatchSemantic GoalMatchMethod = "semantic"
	GoalMatchNone     GoalMatchMethod = "none"
)

// GoalAttempt is one set-goal resolution, matched or not. Kept for
// feedback analysis of which phrasings fail to resolve.
type GoalAttempt struct {
	Text      string
	Workflow  string
	Method    GoalMatchMethod
	Score     float64
	Timestamp time.Time
}

// EmittedCall is the transport-facing shape of one planned call.
type EmittedCall struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Options tunes the supervisor without swapping components.
type Options struct {
	// SessionID tags intercepted calls in the audit log.
	SessionID string

	// GoalThreshold is the minimum weighted semantic score a top-1
	// workflow match must clear before set-goal accepts it.
	GoalThreshold float64

	// Thresholds bucket semantic match scores for step trimming.
	Thresholds workflow.Thresholds
}

// DefaultOptions accepts semantic goal matches at the LOW confidence
// boundary.
func DefaultOptions() Options {
	return Options{
		SessionID:     "default",
		GoalThreshold: 0.60,
		Thresholds:    workflow.DefaultThresholds(),
	}
}

// Deps are the pipeline stages. All are required except Classifier,
// which may be nil when no semantic layer is configured; set-goal then
// resolves by keyword only.
type Deps struct {
	Interceptor *intercept.Interceptor
	Analyzer    *scene.Analyzer
	Detector    *pattern.Detector
	Corrector   *correction.Engine
	Overrides   *override.Engine
	Registry    *workflow.Registry
	Firewall    *firewall.Firewall
	Classifier  *classify.Classifier
}

// Supervisor orchestrates the per-call pipeline.
type Supervisor struct {
	opts Options

	interceptor *intercept.Interceptor
	analyzer    *scene.Analyzer
	detector    *pattern.Detector
	corrector   *correction.Engine
	overrides   *override.Engine
	registry    *workflow.Registry
	triggerer   *workflow.Triggerer
	expander    *workflow.Expander
	adapter     *workflow.Adapter
	firewall    *firewall.Firewall
	classifier  *classify.Classifier

	mu            sync.Mutex
	stats         Stats
	goalLog       []GoalAttempt
	semanticScore float64 // score of the pending semantic goal, 0 for keyword goals
}

// New wires a supervisor from its stages.
func New(deps Deps, opts Options) *Supervisor {
	if opts.GoalThreshold <= 0 {
		opts.GoalThreshold = DefaultOptions().GoalThreshold
	}
	if opts.Thresholds == (workflow.Thresholds{}) {
		opts.Thresholds = workflow.DefaultThresholds()
	}
	return &Supervisor{
		opts:        opts,
		interceptor: deps.Interceptor,
		analyzer:    deps.Analyzer,
		detector:    deps.Detector,
		corrector:   deps.Corrector,
		overrides:   deps.Overrides,
		registry:    deps.Registry,
		triggerer:   workflow.NewTriggerer(deps.Registry),
		expander:    workflow.NewExpander(),
		adapter:     workflow.NewAdapter(opts.Thresholds),
		firewall:    deps.Firewall,
		classifier:  deps.Classifier,
	}
}

// ============================================================================
// PIPELINE
// ============================================================================

// Process runs one call through the full pipeline and returns the
// ordered calls to execute. A firewall block truncates the list at the
// blocked call; an empty result means the very first call was blocked.
func (s *Supervisor) Process(ctx context.Context, tool string, params map[string]any, prompt string) []toolcall.CorrectedToolCall {
	timer := logging.StartTimer(logging.CategoryRouter, "process "+tool)
	defer timer.Stop()

	call := s.interceptor.Intercept(s.opts.SessionID, tool, params, prompt)
	snapshot := s.analyzer.Analyze(ctx, "")
	detected := s.detector.BestMatch(snapshot)

	corrected, prereqs := s.corrector.Correct(call, snapshot)

	semanticScore := s.pendingSemanticScore()
	chosen, expanded := s.chooseCalls(call, snapshot, detected, corrected, semanticScore)

	list := make([]toolcall.CorrectedToolCall, 0, len(prereqs)+len(chosen))
	list = append(list, prereqs...)
	list = append(list, chosen...)

	final, blockedAt := s.applyFirewall(list, snapshot)

	s.mu.Lock()
	s.stats.Total++
	if len(prereqs) > 0 || len(corrected.CorrectionsApplied) > 0 {
		s.stats.Corrected++
	}
	switch expanded {
	case chosenOverride:
		s.stats.Overridden++
	case chosenWorkflow:
		s.stats.Expanded++
	}
	if blockedAt >= 0 {
		s.stats.Blocked++
	}
	s.mu.Unlock()

	logging.Router("processed %s: %d planned, %d emitted, blocked_at=%d",
		tool, len(list), len(final), blockedAt)
	return final
}

type chosenKind int

const (
	chosenCorrected chosenKind = iota
	chosenWorkflow
	chosenOverride
)

// chooseCalls resolves which body of calls replaces the corrected
// call: a triggered workflow wins, then an override, then the single
// corrected call.
func (s *Supervisor) chooseCalls(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot,
	detected *pattern.DetectionResult, corrected toolcall.CorrectedToolCall, semanticScore float64,
) ([]toolcall.CorrectedToolCall, chosenKind) {
	if trig := s.triggerer.Trigger(call, snapshot, detected); trig != nil {
		if def, ok := s.registry.Get(trig.Workflow); ok {
			steps := def.Steps
			if trig.Source == workflow.SourceGoal && semanticScore > 0 {
				// Semantically matched goals go through step trimming;
				// keyword and pattern matches expand as declared.
				ad := s.adapter.Adapt(def, semanticScore)
				steps = ad.Steps
				logging.RouterDebug("adapted workflow %s at %s: %d steps removed",
					def.Name, ad.Level, ad.StepsRemoved)
			}
			s.clearSemanticScore()
			return s.expander.ExpandSteps(def.Name, steps, call), chosenWorkflow
		}
	}
	if s.triggerer.Pending() == "" {
		s.clearSemanticScore()
	}

	if dec := s.overrides.CheckOverride(call, snapshot, detected); dec.ShouldOverride {
		logging.Router("override %s replaced %s with %d calls", dec.RuleName, call.Tool, len(dec.Calls))
		return dec.Calls, chosenOverride
	}

	return []toolcall.CorrectedToolCall{corrected}, chosenCorrected
}

// applyFirewall validates the planned list against a simulated
// context and assembles the final list: auto-fix prerequisites are
// spliced in ahead of their call, modified calls replace the original,
// and a block truncates. Returns the index of the blocked call, or -1.
func (s *Supervisor) applyFirewall(list []toolcall.CorrectedToolCall, snapshot *scene.SceneSnapshot) ([]toolcall.CorrectedToolCall, int) {
	results := s.firewall.ValidateSequence(list, snapshot)
	final := make([]toolcall.CorrectedToolCall, 0, len(list))
	for i, res := range results {
		switch res.Action {
		case firewall.ResultBlock:
			logging.Get(logging.CategoryRouter).Warn("blocked %s: %s", list[i].Tool, res.Message)
			return final, i
		case firewall.ResultAutoFix:
			final = append(final, res.Prerequisites...)
			final = append(final, list[i])
		case firewall.ResultModify:
			if res.ModifiedCall != nil {
				final = append(final, *res.ModifiedCall)
			} else {
				final = append(final, list[i])
			}
		default:
			final = append(final, list[i])
		}
	}
	return final, -1
}

// ============================================================================
// GOALS
// ============================================================================

// SetGoal resolves free text to a workflow and arms it as the pending
// goal for the next processed call. Keyword match is attempted first,
// then a semantic top-1 match gated by GoalThreshold. Every attempt,
// matched or not, lands in the goal log.
func (s *Supervisor) SetGoal(ctx context.Context, text string) (string, bool) {
	if def, ok := s.registry.MatchKeyword(text); ok {
		s.triggerer.SetPending(def.Name)
		s.clearSemanticScore()
		s.recordGoal(text, def.Name, GoalMatchKeyword, 1.0)
		logging.Router("goal %q matched workflow %s by keyword", text, def.Name)
		return def.Name, true
	}

	if s.classifier != nil {
		hits, err := s.classifier.ClassifyWorkflow(ctx, text, 1, 0)
		if err == nil && len(hits) > 0 && hits[0].FinalScore >= s.opts.GoalThreshold {
			s.triggerer.SetPending(hits[0].WorkflowID)
			s.setSemanticScore(hits[0].FinalScore)
			s.recordGoal(text, hits[0].WorkflowID, GoalMatchSemantic, hits[0].FinalScore)
			logging.Router("goal %q matched workflow %s semantically (%.2f)",
				text, hits[0].WorkflowID, hits[0].FinalScore)
			return hits[0].WorkflowID, true
		}
		best := 0.0
		if err == nil && len(hits) > 0 {
			best = hits[0].FinalScore
		}
		s.recordGoal(text, "", GoalMatchNone, best)
		logging.Router("goal %q matched nothing (best %.2f)", text, best)
		return "", false
	}

	s.recordGoal(text, "", GoalMatchNone, 0)
	return "", false
}

// GoalHistory returns a copy of every recorded set-goal attempt.
func (s *Supervisor) GoalHistory() []GoalAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GoalAttempt, len(s.goalLog))
	copy(out, s.goalLog)
	return out
}

func (s *Supervisor) recordGoal(text, wf string, method GoalMatchMethod, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goalLog = append(s.goalLog, GoalAttempt{
		Text:      text,
		Workflow:  wf,
		Method:    method,
		Score:     score,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Supervisor) pendingSemanticScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.semanticScore
}

func (s *Supervisor) setSemanticScore(v float64) {
	s.mu.Lock()
	s.semanticScore = v
	s.mu.Unlock()
}

func (s *Supervisor) clearSemanticScore() {
	s.mu.Lock()
	s.semanticScore = 0
	s.mu.Unlock()
}

// ============================================================================
// OBSERVABILITY
// ============================================================================

// Stats returns a copy of the running counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// EmitPairs strips planned calls to the transport shape.
func EmitPairs(calls []toolcall.CorrectedToolCall) []EmittedCall {
	out := make([]EmittedCall, len(calls))
	for i, c := range calls {
		out[i] = EmittedCall{Tool: c.Tool, Params: c.Params}
	}
	return out
}
