package embedding

// =============================================================================
// TASK TYPE SELECTION
// =============================================================================

// ContentType classifies what kind of text is being embedded so the
// GenAI backend can pick the matching task type. Ollama ignores task
// types entirely.
type ContentType string

const (
	ContentTypeToolDescription ContentType = "tool_description" // indexed tool docs
	ContentTypeWorkflowText    ContentType = "workflow_text"    // names, keywords, phrases
	ContentTypeGoal            ContentType = "goal"             // free-text user goals
)

// SelectTaskType maps a content type to the GenAI task type that
// produces the best retrieval quality for it. Indexed corpus text is
// embedded as documents; live goal text as queries.
func SelectTaskType(contentType ContentType, isQuery bool) string {
	switch contentType {
	case ContentTypeToolDescription, ContentTypeWorkflowText:
		if isQuery {
			return "RETRIEVAL_QUERY"
		}
		return "RETRIEVAL_DOCUMENT"
	case ContentTypeGoal:
		return "RETRIEVAL_QUERY"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}
