package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
	maxErrorBody      = 4 << 10
)

// OllamaBackend calls POST /api/generate on an Ollama runtime. Its
// http.Client is the bounded connection pool shared by all requests.
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaBackend creates a backend whose transport allows at most maxConns
// concurrent connections to the runtime.
func NewOllamaBackend(baseURL string, maxConns int) *OllamaBackend {
	if maxConns <= 0 {
		maxConns = 16
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = maxConns
	transport.MaxIdleConnsPerHost = maxConns
	transport.IdleConnTimeout = 90 * time.Second
	return &OllamaBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

func (b *OllamaBackend) Name() string { return "ollama" }

// BaseURL is reported by the health endpoint.
func (b *OllamaBackend) BaseURL() string { return b.baseURL }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (b *OllamaBackend) Complete(ctx context.Context, req Request) (Response, error) {
	payload := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.JSON {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}
	return Response{
		Text:             out.Response,
		Model:            model,
		Latency:          time.Since(start),
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}
