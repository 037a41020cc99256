package tracking

import (
	"context"
	"log/slog"
)

// NopBackend discards everything.
type NopBackend struct{}

func (NopBackend) Name() string { return "none" }

func (NopBackend) StartRun(_ context.Context, p Params) (string, error) { return p.RunID, nil }

func (NopBackend) LogRun(context.Context, string, Params, Outcome) error { return nil }

func (NopBackend) EndRun(context.Context, string, Status) error { return nil }

// LogBackend writes runs to the structured logger.
type LogBackend struct {
	log *slog.Logger
}

func NewLogBackend(log *slog.Logger) *LogBackend {
	return &LogBackend{log: log.With("component", "tracking")}
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) StartRun(ctx context.Context, p Params) (string, error) {
	b.log.InfoContext(ctx, "run started",
		"run_id", p.RunID,
		"model_name", p.Model,
		"temperature", p.Temperature,
		"max_tokens", p.MaxTokens,
		"retrieval_enabled", p.RetrievalEnabled,
		"structured", p.Structured,
	)
	return p.RunID, nil
}

func (b *LogBackend) LogRun(ctx context.Context, runID string, _ Params, o Outcome) error {
	b.log.InfoContext(ctx, "run outcome",
		"run_id", runID,
		"latency_seconds", o.Latency.Seconds(),
		"output_length", len(o.Output),
		"retrieved_snippets", o.RetrievedSnippets,
		"error", o.Error,
	)
	return nil
}

func (b *LogBackend) EndRun(ctx context.Context, runID string, status Status) error {
	b.log.InfoContext(ctx, "run ended", "run_id", runID, "status", string(status))
	return nil
}
