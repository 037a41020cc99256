package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrNoChoices is returned when a backend answers without any generated text.
var ErrNoChoices = errors.New("llm: no choices returned")

// Settings are the generation knobs of one request. Model must already be
// resolved to a non-empty name.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Request is what a Backend receives for a single attempt.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSON        bool // ask the backend for a JSON object
}

// Response is the outcome of a generation.
type Response struct {
	Text             string
	Model            string
	Latency          time.Duration
	PromptTokens     int
	CompletionTokens int
	Attempts         int
}

// StructuredResponse carries the raw response and, when the text parsed as a
// JSON object, its payload.
type StructuredResponse struct {
	Response
	Payload    map[string]any
	ParseError bool
}

// Backend performs exactly one call against a generation service.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Generator is the resilient client the orchestrator depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string, s Settings) (Response, error)
	GenerateStructured(ctx context.Context, prompt string, s Settings, schemaHint string) (StructuredResponse, error)
}

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("llm backend returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("llm backend returned %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// ErrRateLimited means the client-side rate limiter could not admit an
// attempt before the caller's deadline. It wraps context.DeadlineExceeded
// and is never retried.
var ErrRateLimited = errors.New("llm: rate limit wait would exceed the deadline")

// CallError is returned by Client once it gives up.
type CallError struct {
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsRetryable classifies err as transient (timeouts, connection failures,
// 5xx/429/408) or permanent (other 4xx, malformed responses, cancellation).
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrRateLimited) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
