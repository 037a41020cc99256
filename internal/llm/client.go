package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ai-agent/internal/logger"
	"ai-agent/internal/metrics"
	"ai-agent/internal/retry"
)

// Options tune a Client.
type Options struct {
	Policy    retry.Policy
	RateLimit float64 // attempts per second, 0 disables
	RateBurst int
	Metrics   *metrics.Metrics
}

// Client wraps a Backend with the retry policy and optional rate limiting.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	backend Backend
	policy  retry.Policy
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(backend Backend, log *slog.Logger, opts Options) *Client {
	c := &Client{
		backend: backend,
		policy:  opts.Policy,
		log:     log.With("component", "llm", "backend", backend.Name()),
		metrics: opts.Metrics,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Generate returns the backend's text for prompt, retrying transient failures.
func (c *Client) Generate(ctx context.Context, prompt string, s Settings) (Response, error) {
	return c.complete(ctx, Request{
		Model:       s.Model,
		Prompt:      prompt,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
}

// GenerateStructured asks for a JSON object and parses it. A response that
// does not parse is returned as raw text with ParseError set; only backend
// failures produce an error.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, s Settings, schemaHint string) (StructuredResponse, error) {
	resp, err := c.complete(ctx, Request{
		Model:       s.Model,
		Prompt:      StructuredPrompt(prompt, schemaHint),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return StructuredResponse{}, err
	}
	payload, err := ParseStructured(resp.Text)
	if err != nil {
		c.log.Warn("structured output parse failed", "err", err, "output_preview", logger.Truncate(resp.Text, 200))
		return StructuredResponse{Response: resp, ParseError: true}, nil
	}
	return StructuredResponse{Response: resp, Payload: payload}, nil
}

// complete runs the retry loop. req is never modified between attempts.
func (c *Client) complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	var out Response
	attempts, err := retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context, attempt int) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return err
				}
				c.metrics.ObserveAttempt("rate_limited")
				return fmt.Errorf("%w: %w: %w", ErrRateLimited, context.DeadlineExceeded, err)
			}
		}
		resp, err := c.backend.Complete(ctx, req)
		if err != nil {
			retryable := IsRetryable(err)
			if retryable {
				c.metrics.ObserveAttempt("retryable_error")
			} else {
				c.metrics.ObserveAttempt("fatal_error")
			}
			c.log.Warn("llm attempt failed", "attempt", attempt+1, "max_attempts", c.policy.MaxAttempts, "retryable", retryable, "err", err)
			return err
		}
		c.metrics.ObserveAttempt("success")
		out = resp
		return nil
	})
	if err != nil {
		return Response{}, &CallError{Attempts: attempts, Err: err}
	}
	out.Attempts = attempts
	out.Latency = time.Since(start)
	c.log.Info("llm response",
		"model", out.Model,
		"attempts", attempts,
		"output_len", len(out.Text),
		"completion_tokens", out.CompletionTokens,
		"latency_ms", out.Latency.Milliseconds(),
	)
	return out, nil
}
