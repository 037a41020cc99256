package tracking

import (
	"context"
	"time"
)

// Status is the terminal state of a tracked run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// Params describe a generation at the moment its run is opened.
type Params struct {
	RunID            string  `json:"run_id"`
	Model            string  `json:"model_name"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	UserMessage      string  `json:"user_message"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	RetrievalEnabled bool    `json:"retrieval_enabled"`
	Structured       bool    `json:"structured"`
}

// Outcome is everything known once the generation finished.
type Outcome struct {
	Status            Status        `json:"status"`
	Prompt            string        `json:"prompt,omitempty"`
	Output            string        `json:"output,omitempty"`
	Error             string        `json:"error,omitempty"`
	Latency           time.Duration `json:"latency_ns"`
	RetrievedSnippets int           `json:"retrieved_snippets"`
}

// Backend persists runs. Implementations may fail; the Recorder absorbs
// every error so a tracking outage never reaches the caller.
type Backend interface {
	Name() string
	// StartRun creates the run and returns the backend's id for it.
	StartRun(ctx context.Context, p Params) (string, error)
	LogRun(ctx context.Context, runID string, p Params, o Outcome) error
	EndRun(ctx context.Context, runID string, status Status) error
}
