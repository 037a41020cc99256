package rest

import (
	"context"
	"errors"
	"net/http"

	"ai-agent/internal/httputil"
	"ai-agent/internal/orchestrator"
)

// StatusClientClosedRequest is the de facto status for a request the client
// abandoned before the response was ready.
const StatusClientClosedRequest = 499

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type generateResponse struct {
	Text              string         `json:"text"`
	Structured        map[string]any `json:"structured,omitempty"`
	ParseError        bool           `json:"parse_error,omitempty"`
	LatencyMS         float64        `json:"latency_ms"`
	Model             string         `json:"model"`
	RunID             string         `json:"run_id"`
	Attempts          int            `json:"attempts"`
	Usage             usage          `json:"usage"`
	RetrievedSnippets int            `json:"retrieved_snippets"`
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	// A body that does not decode still goes through the orchestrator so the
	// failure is tracked; fields that did decode are kept for the run.
	var req orchestrator.GenerationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		err = s.svc.Reject(ctx, req, err)
		code := orchestrator.CodeOf(err)
		httputil.Fail(s.log, w, statusFor(code), string(code), messageOf(err), err)
		return
	}

	res, err := s.svc.Generate(ctx, req)
	if err != nil {
		code := orchestrator.CodeOf(err)
		httputil.Fail(s.log, w, statusFor(code), string(code), messageOf(err), err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, generateResponse{
		Text:              res.Text,
		Structured:        res.Structured,
		ParseError:        res.ParseError,
		LatencyMS:         res.LatencyMS,
		Model:             res.Model,
		RunID:             res.RunID,
		Attempts:          res.Attempts,
		Usage:             usage{PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens},
		RetrievedSnippets: res.RetrievedSnippets,
	})
}

func statusFor(code orchestrator.Code) int {
	switch code {
	case orchestrator.CodeInvalidRequest:
		return http.StatusBadRequest
	case orchestrator.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case orchestrator.CodeBackendRejected:
		return http.StatusBadGateway
	case orchestrator.CodeCancelled:
		return StatusClientClosedRequest
	case orchestrator.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var e *orchestrator.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
