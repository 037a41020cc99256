package orchestrator

import "strings"

// AgentSettings are per-request generation knobs. Zero values resolve to the
// configured defaults: an empty model name, a nil temperature and a zero
// max_tokens.
type AgentSettings struct {
	ModelName   string   `json:"model_name" validate:"max=256"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens" validate:"gte=0,lte=32768"`
}

// GenerationRequest is the transport-independent input of Generate.
type GenerationRequest struct {
	UserMessage      string        `json:"user_message" validate:"notblank,max=100000"`
	SystemPrompt     string        `json:"system_prompt" validate:"max=100000"`
	ContextJSON      string        `json:"context_json" validate:"max=200000"`
	AgentSettings    AgentSettings `json:"agent_settings"`
	StructuredOutput bool          `json:"structured_output"`
	OutputSchema     string        `json:"output_schema" validate:"max=20000"`
}

// GenerationResult is what a successful Generate returns.
type GenerationResult struct {
	Text              string
	Structured        map[string]any
	ParseError        bool
	LatencyMS         float64
	Model             string
	RunID             string
	Attempts          int
	PromptTokens      int
	CompletionTokens  int
	RetrievedSnippets int
	RetrievalEnabled  bool
}

// hasContext reports whether context_json carries any data worth injecting.
func hasContext(contextJSON string) bool {
	switch strings.TrimSpace(contextJSON) {
	case "", "{}", "[]", "null":
		return false
	}
	return true
}
