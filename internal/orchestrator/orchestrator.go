package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ai-agent/internal/llm"
	"ai-agent/internal/metrics"
	"ai-agent/internal/retriever"
	"ai-agent/internal/telemetry"
	"ai-agent/internal/tracking"
)

// Service is the generation pipeline as seen by the transports.
type Service interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	// Reject records a request whose payload could not be decoded. req holds
	// whatever fields were readable. The returned error is always an
	// INVALID_REQUEST *Error.
	Reject(ctx context.Context, req GenerationRequest, cause error) error
}

// Options are the process-wide defaults applied to every request.
type Options struct {
	DefaultModel       string
	DefaultTemperature float64
	DefaultMaxTokens   int
	RAGEnabled         bool
	TopK               int
	RetrievalTimeout   time.Duration
}

// Orchestrator runs retrieval, prompt assembly, generation and tracking for
// one request at a time. It keeps no per-request state and is shared by all
// transports.
type Orchestrator struct {
	llm       llm.Generator
	retriever retriever.Retriever
	recorder  *tracking.Recorder
	validate  *validator.Validate
	log       *slog.Logger
	metrics   *metrics.Metrics
	opts      Options
}

func New(gen llm.Generator, r retriever.Retriever, rec *tracking.Recorder, log *slog.Logger, m *metrics.Metrics, opts Options) *Orchestrator {
	if !opts.RAGEnabled || r == nil {
		r = retriever.Disabled{}
	}
	return &Orchestrator{
		llm:       gen,
		retriever: r,
		recorder:  rec,
		validate:  newValidator(),
		log:       log.With("component", "orchestrator"),
		metrics:   m,
		opts:      opts,
	}
}

// Generate runs the full pipeline. Every call opens exactly one tracking run
// and closes it exactly once, whatever the outcome. Errors are always
// *Error.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	return o.run(ctx, req, nil)
}

// Reject goes through the same tracked path as Generate, failing at
// validation, so undecodable requests also produce exactly one run.
func (o *Orchestrator) Reject(ctx context.Context, req GenerationRequest, cause error) error {
	_, err := o.run(ctx, req, &Error{Code: CodeInvalidRequest, Message: "request body is not a valid generation request", Err: cause})
	return err
}

func (o *Orchestrator) run(ctx context.Context, req GenerationRequest, rejected *Error) (GenerationResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.Generate")
	defer span.End()

	settings := o.resolve(req.AgentSettings)
	run := o.recorder.Open(ctx, tracking.Params{
		Model:            settings.Model,
		Temperature:      settings.Temperature,
		MaxTokens:        settings.MaxTokens,
		UserMessage:      req.UserMessage,
		SystemPrompt:     req.SystemPrompt,
		RetrievalEnabled: o.opts.RAGEnabled,
		Structured:       req.StructuredOutput,
	})
	outcome := tracking.Outcome{Status: tracking.StatusFailure}
	defer func() { run.Close(outcome) }()

	var (
		res GenerationResult
		err error
	)
	if rejected != nil {
		err = rejected
	} else {
		res, err = o.generate(ctx, req, settings, &outcome)
	}
	outcome.Status = statusOf(err)
	o.metrics.ObserveGeneration(string(outcome.Status), outcome.Latency)

	span.SetAttributes(
		attribute.String("run_id", run.ID()),
		attribute.String("model", settings.Model),
		attribute.Int("retrieved_snippets", outcome.RetrievedSnippets),
	)
	if err != nil {
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		o.log.WarnContext(ctx, "generation failed",
			"run_id", run.ID(),
			"code", string(CodeOf(err)),
			"status", string(outcome.Status),
			"err", err,
		)
		return GenerationResult{}, err
	}

	res.RunID = run.ID()
	o.log.InfoContext(ctx, "generation completed",
		"run_id", res.RunID,
		"model", res.Model,
		"attempts", res.Attempts,
		"latency_ms", res.LatencyMS,
		"retrieved_snippets", res.RetrievedSnippets,
		"structured", req.StructuredOutput,
		"parse_error", res.ParseError,
	)
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, req GenerationRequest, s llm.Settings, outcome *tracking.Outcome) (GenerationResult, error) {
	if err := o.validateRequest(req); err != nil {
		return GenerationResult{}, err
	}

	var snippets []retriever.Snippet
	if o.opts.RAGEnabled {
		snippets = o.retrieve(ctx, req.UserMessage)
	}
	outcome.RetrievedSnippets = len(snippets)

	prompt := AssemblePrompt(req.SystemPrompt, req.ContextJSON, snippets, req.UserMessage)
	outcome.Prompt = prompt

	res := GenerationResult{
		Model:             s.Model,
		RetrievedSnippets: len(snippets),
		RetrievalEnabled:  o.opts.RAGEnabled,
	}

	start := time.Now()
	var (
		resp llm.Response
		err  error
	)
	if req.StructuredOutput {
		var sr llm.StructuredResponse
		sr, err = o.llm.GenerateStructured(ctx, prompt, s, req.OutputSchema)
		resp = sr.Response
		res.Structured = sr.Payload
		res.ParseError = sr.ParseError
	} else {
		resp, err = o.llm.Generate(ctx, prompt, s)
	}
	outcome.Latency = time.Since(start)
	if err != nil {
		return GenerationResult{}, classify(ctx, err)
	}

	outcome.Output = resp.Text
	res.Text = resp.Text
	res.LatencyMS = float64(outcome.Latency) / float64(time.Millisecond)
	res.Attempts = resp.Attempts
	res.PromptTokens = resp.PromptTokens
	res.CompletionTokens = resp.CompletionTokens
	if resp.Model != "" {
		res.Model = resp.Model
	}
	return res, nil
}

// retrieve never fails: errors degrade to an empty context.
func (o *Orchestrator) retrieve(ctx context.Context, query string) []retriever.Snippet {
	ctx, span := telemetry.Tracer().Start(ctx, "retriever.Retrieve")
	defer span.End()

	if o.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RetrievalTimeout)
		defer cancel()
	}
	snippets, err := o.retriever.Retrieve(ctx, query, o.opts.TopK)
	if err != nil {
		o.metrics.RetrievalError()
		span.RecordError(err)
		o.log.WarnContext(ctx, "retrieval failed, continuing without context", "err", err)
		return nil
	}
	span.SetAttributes(attribute.Int("snippets", len(snippets)))
	return snippets
}

func (o *Orchestrator) resolve(a AgentSettings) llm.Settings {
	s := llm.Settings{
		Model:       a.ModelName,
		Temperature: o.opts.DefaultTemperature,
		MaxTokens:   a.MaxTokens,
	}
	if s.Model == "" {
		s.Model = o.opts.DefaultModel
	}
	if a.Temperature != nil {
		s.Temperature = *a.Temperature
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = o.opts.DefaultMaxTokens
	}
	return s
}

func statusOf(err error) tracking.Status {
	if err == nil {
		return tracking.StatusSuccess
	}
	switch CodeOf(err) {
	case CodeCancelled, CodeDeadlineExceeded:
		return tracking.StatusCancelled
	default:
		return tracking.StatusFailure
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func (o *Orchestrator) validateRequest(req GenerationRequest) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Code: CodeInvalidRequest, Message: "invalid request", Err: err}
	}
	return &Error{Code: CodeInvalidRequest, Message: describe(verrs[0]), Err: err}
}

// describe renders a field error with the wire name of the field.
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "notblank", "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds maximum length %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
