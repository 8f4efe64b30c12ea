// Package toolcall defines the call records that flow through the
// routing pipeline: the raw intercepted call from the agent and the
// corrected call that is actually sent to the backend.
package toolcall

import (
	"time"

	"github.com/google/uuid"
)

// Synthetic prerequisite tools injected by the pipeline. They are
// understood by the backend adapter and never originate from the agent.
const (
	ToolSetMode    = "set_mode"
	ToolSelectAll  = "select_all"
	ToolSelectNone = "select_none"

	ParamMode = "mode"
)

// InterceptedToolCall is one tool invocation captured before routing.
type InterceptedToolCall struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Prompt    string         `json:"prompt,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewIntercepted stamps a fresh call record with a UUID and capture time.
func NewIntercepted(sessionID, tool string, params map[string]any, prompt string) InterceptedToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return InterceptedToolCall{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Tool:      tool,
		Params:    params,
		Prompt:    prompt,
		Timestamp: time.Now().UTC(),
	}
}

// CorrectedToolCall is a call after the correction stage. Injected calls
// (prerequisites such as mode switches) carry IsInjected and have no
// original backreference of their own beyond the call they support.
type CorrectedToolCall struct {
	Tool               string         `json:"tool"`
	Params             map[string]any `json:"params"`
	CorrectionsApplied []string       `json:"corrections_applied,omitempty"`
	IsInjected         bool           `json:"is_injected,omitempty"`
	OriginalID         string         `json:"original_id,omitempty"`
}

// Injected builds a prerequisite call tied to the original intercepted
// call, tagged with the correction that produced it.
func Injected(original InterceptedToolCall, tool string, params map[string]any, tag string) CorrectedToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return CorrectedToolCall{
		Tool:               tool,
		Params:             params,
		CorrectionsApplied: []string{tag},
		IsInjected:         true,
		OriginalID:         original.ID,
	}
}

// FromIntercepted wraps the intercepted call unchanged, cloning params
// so the correction stage can mutate them safely.
func FromIntercepted(original InterceptedToolCall) CorrectedToolCall {
	params := make(map[string]any, len(original.Params))
	for k, v := range original.Params {
		params[k] = v
	}
	return CorrectedToolCall{
		Tool:       original.Tool,
		Params:     params,
		OriginalID: original.ID,
	}
}
