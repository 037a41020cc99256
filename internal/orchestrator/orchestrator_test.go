package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ai-agent/internal/llm"
	"ai-agent/internal/logger"
	"ai-agent/internal/retriever"
	"ai-agent/internal/tracking"
)

const defaultModel = "qwen2.5:7b-instruct"

var defaultOptions = Options{
	DefaultModel:       defaultModel,
	DefaultTemperature: 0.7,
	DefaultMaxTokens:   2048,
	TopK:               5,
	RetrievalTimeout:   time.Second,
}

func ptr[T any](v T) *T { return &v }

// recordingBackend is a tracking backend that keeps every run in memory.
type recordingBackend struct {
	mu       sync.Mutex
	params   map[string]tracking.Params
	outcomes map[string]tracking.Outcome
	opened   map[string]int
	closed   map[string]int
	statuses map[string]tracking.Status
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		params:   map[string]tracking.Params{},
		outcomes: map[string]tracking.Outcome{},
		opened:   map[string]int{},
		closed:   map[string]int{},
		statuses: map[string]tracking.Status{},
	}
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) StartRun(_ context.Context, p tracking.Params) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params[p.RunID] = p
	b.opened[p.RunID]++
	return p.RunID, nil
}

func (b *recordingBackend) LogRun(_ context.Context, id string, _ tracking.Params, o tracking.Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[id] = o
	return nil
}

func (b *recordingBackend) EndRun(_ context.Context, id string, s tracking.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed[id]++
	b.statuses[id] = s
	return nil
}

// only returns the single run recorded so far.
func (b *recordingBackend) only(t *testing.T) (tracking.Params, tracking.Outcome, tracking.Status) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.opened, 1)
	for id := range b.opened {
		assert.Equal(t, 1, b.opened[id])
		assert.Equal(t, 1, b.closed[id])
		return b.params[id], b.outcomes[id], b.statuses[id]
	}
	return tracking.Params{}, tracking.Outcome{}, ""
}

// echoGenerator answers with the prompt it received.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string, s llm.Settings) (llm.Response, error) {
	return llm.Response{Text: prompt, Model: s.Model, Attempts: 1}, nil
}

func (echoGenerator) GenerateStructured(_ context.Context, prompt string, s llm.Settings, _ string) (llm.StructuredResponse, error) {
	return llm.StructuredResponse{Response: llm.Response{Text: prompt, Model: s.Model, Attempts: 1}, ParseError: true}, nil
}

func newOrchestrator(gen llm.Generator, r retriever.Retriever, b tracking.Backend, opts Options) *Orchestrator {
	rec := tracking.NewRecorder(b, time.Second, logger.Discard(), nil)
	return New(gen, r, rec, logger.Discard(), nil, opts)
}

func TestGenerateScenario(t *testing.T) {
	req := GenerationRequest{
		UserMessage:   "Explain quantum computing in 3 sentences.",
		SystemPrompt:  "You are a helpful science tutor.",
		ContextJSON:   "{}",
		AgentSettings: AgentSettings{ModelName: "", Temperature: ptr(0.7), MaxTokens: 512},
	}
	wantPrompt := "[System]\nYou are a helpful science tutor.\n\n[User]\nExplain quantum computing in 3 sentences."
	wantSettings := llm.Settings{Model: defaultModel, Temperature: 0.7, MaxTokens: 512}

	gen := new(llm.MockGenerator)
	gen.On("Generate", mock.Anything, wantPrompt, wantSettings).
		Run(func(mock.Arguments) { time.Sleep(time.Millisecond) }).
		Return(llm.Response{Text: "Quantum computers use qubits...", Model: defaultModel, Attempts: 1, CompletionTokens: 42}, nil).Once()
	ret := new(retriever.MockRetriever)
	tb := newRecordingBackend()

	res, err := newOrchestrator(gen, ret, tb, defaultOptions).Generate(context.Background(), req)

	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.Greater(t, res.LatencyMS, 0.0)
	assert.Equal(t, defaultModel, res.Model)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 42, res.CompletionTokens)
	assert.Zero(t, res.RetrievedSnippets)
	assert.False(t, res.RetrievalEnabled)
	assert.NotEmpty(t, res.RunID)
	gen.AssertNumberOfCalls(t, "Generate", 1)
	ret.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)

	params, outcome, status := tb.only(t)
	assert.Equal(t, tracking.StatusSuccess, status)
	assert.Equal(t, defaultModel, params.Model)
	assert.False(t, params.RetrievalEnabled)
	assert.Equal(t, wantPrompt, outcome.Prompt)
	assert.Equal(t, "Quantum computers use qubits...", outcome.Output)
	assert.Greater(t, outcome.Latency, time.Duration(0))
}

func TestGenerateResolvesDefaults(t *testing.T) {
	tests := []struct {
		name     string
		settings AgentSettings
		want     llm.Settings
	}{
		{"all defaults", AgentSettings{}, llm.Settings{Model: defaultModel, Temperature: 0.7, MaxTokens: 2048}},
		{"explicit zero temperature is kept", AgentSettings{Temperature: ptr(0.0)}, llm.Settings{Model: defaultModel, Temperature: 0, MaxTokens: 2048}},
		{"explicit values", AgentSettings{ModelName: "llama3", Temperature: ptr(1.5), MaxTokens: 64}, llm.Settings{Model: "llama3", Temperature: 1.5, MaxTokens: 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(llm.MockGenerator)
			gen.On("Generate", mock.Anything, mock.Anything, tt.want).Return(llm.Response{Text: "ok"}, nil).Once()

			_, err := newOrchestrator(gen, nil, tracking.NopBackend{}, defaultOptions).
				Generate(context.Background(), GenerationRequest{UserMessage: "hi", AgentSettings: tt.settings})

			require.NoError(t, err)
			gen.AssertExpectations(t)
		})
	}
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerationRequest
		wantMsg string
	}{
		{"empty message", GenerationRequest{}, "user_message is required"},
		{"blank message", GenerationRequest{UserMessage: "  \n\t"}, "user_message is required"},
		{"temperature too high", GenerationRequest{UserMessage: "hi", AgentSettings: AgentSettings{Temperature: ptr(2.5)}}, "agent_settings.temperature must be at most 2"},
		{"negative temperature", GenerationRequest{UserMessage: "hi", AgentSettings: AgentSettings{Temperature: ptr(-0.1)}}, "agent_settings.temperature must be at least 0"},
		{"negative max tokens", GenerationRequest{UserMessage: "hi", AgentSettings: AgentSettings{MaxTokens: -1}}, "agent_settings.max_tokens must be at least 0"},
		{"max tokens too large", GenerationRequest{UserMessage: "hi", AgentSettings: AgentSettings{MaxTokens: 40000}}, "agent_settings.max_tokens must be at most 32768"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(llm.MockGenerator)
			ret := new(retriever.MockRetriever)
			tb := newRecordingBackend()
			opts := defaultOptions
			opts.RAGEnabled = true

			_, err := newOrchestrator(gen, ret, tb, opts).Generate(context.Background(), tt.req)

			var genErr *Error
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, CodeInvalidRequest, genErr.Code)
			assert.Equal(t, tt.wantMsg, genErr.Message)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
			ret.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)

			_, _, status := tb.only(t)
			assert.Equal(t, tracking.StatusFailure, status)
		})
	}
}

func TestGenerateWithRetrieval(t *testing.T) {
	snippets := []retriever.Snippet{
		{Text: "second best", Source: "b", Score: 0.4},
		{Text: "best", Source: "a", Score: 0.9},
	}
	ret := new(retriever.MockRetriever)
	ret.On("Retrieve", mock.Anything, "what?", 5).Return(snippets, nil).Once()
	tb := newRecordingBackend()
	opts := defaultOptions
	opts.RAGEnabled = true

	res, err := newOrchestrator(echoGenerator{}, ret, tb, opts).Generate(context.Background(), GenerationRequest{UserMessage: "what?"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.RetrievedSnippets)
	assert.True(t, res.RetrievalEnabled)
	// Retrieval order is kept even when scores are not sorted.
	assert.Less(t, strings.Index(res.Text, "second best"), strings.Index(res.Text, "[2] (source=a"))
	assert.True(t, strings.HasSuffix(res.Text, "[User]\nwhat?"))

	params, outcome, _ := tb.only(t)
	assert.True(t, params.RetrievalEnabled)
	assert.Equal(t, 2, outcome.RetrievedSnippets)
}

func TestGenerateRetrievalFailureDegrades(t *testing.T) {
	tests := []struct {
		name string
		ret  func() retriever.Retriever
	}{
		{"error", func() retriever.Retriever {
			r := new(retriever.MockRetriever)
			r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("vector db down"))
			return r
		}},
		{"timeout", func() retriever.Retriever {
			r := new(retriever.MockRetriever)
			r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
				Return(nil, context.DeadlineExceeded)
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions
			opts.RAGEnabled = true
			opts.RetrievalTimeout = 10 * time.Millisecond
			tb := newRecordingBackend()

			res, err := newOrchestrator(echoGenerator{}, tt.ret(), tb, opts).Generate(context.Background(), GenerationRequest{UserMessage: "q"})

			require.NoError(t, err)
			assert.Equal(t, "[User]\nq", res.Text)
			assert.Zero(t, res.RetrievedSnippets)
			_, _, status := tb.only(t)
			assert.Equal(t, tracking.StatusSuccess, status)
		})
	}
}

func TestGenerateBackendFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   Code
		wantStatus tracking.Status
	}{
		{"retries exhausted", &llm.CallError{Attempts: 3, Err: &llm.StatusError{StatusCode: 503}}, CodeBackendUnavailable, tracking.StatusFailure},
		{"unclassified error", &llm.CallError{Attempts: 1, Err: fmt.Errorf("decode: %w", errors.New("unexpected EOF in body"))}, CodeBackendRejected, tracking.StatusFailure},
		{"budget exhausted", &llm.CallError{Attempts: 2, Err: context.DeadlineExceeded}, CodeBackendUnavailable, tracking.StatusFailure},
		{"rate limit cannot fit deadline", &llm.CallError{Attempts: 1, Err: fmt.Errorf("%w: %w", llm.ErrRateLimited, context.DeadlineExceeded)}, CodeDeadlineExceeded, tracking.StatusCancelled},
		{"model not found", &llm.CallError{Attempts: 1, Err: &llm.StatusError{StatusCode: 404, Body: "secret internals"}}, CodeBackendRejected, tracking.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(llm.MockGenerator)
			gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(llm.Response{}, tt.err).Once()
			tb := newRecordingBackend()

			_, err := newOrchestrator(gen, nil, tb, defaultOptions).Generate(context.Background(), GenerationRequest{UserMessage: "hi"})

			var genErr *Error
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.wantCode, genErr.Code)
			assert.NotContains(t, genErr.Message, "secret")
			assert.ErrorIs(t, err, tt.err)

			_, outcome, status := tb.only(t)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, outcome.Error)
		})
	}
}

func TestGenerateCancellation(t *testing.T) {
	t.Run("client disconnect", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		gen := new(llm.MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(llm.Response{}, &llm.CallError{Attempts: 1, Err: context.Canceled}).Once()
		tb := newRecordingBackend()

		_, err := newOrchestrator(gen, nil, tb, defaultOptions).Generate(ctx, GenerationRequest{UserMessage: "hi"})

		assert.Equal(t, CodeCancelled, CodeOf(err))
		_, _, status := tb.only(t)
		assert.Equal(t, tracking.StatusCancelled, status)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		gen := new(llm.MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return(llm.Response{}, &llm.CallError{Attempts: 0, Err: context.DeadlineExceeded}).Once()
		tb := newRecordingBackend()

		_, err := newOrchestrator(gen, nil, tb, defaultOptions).Generate(ctx, GenerationRequest{UserMessage: "hi"})

		assert.Equal(t, CodeDeadlineExceeded, CodeOf(err))
		_, _, status := tb.only(t)
		assert.Equal(t, tracking.StatusCancelled, status)
	})
}

func TestGenerateStructured(t *testing.T) {
	tests := []struct {
		name      string
		resp      llm.StructuredResponse
		wantParse bool
	}{
		{"parsed", llm.StructuredResponse{Response: llm.Response{Text: `{"a":1}`}, Payload: map[string]any{"a": 1.0}}, false},
		{"unparseable", llm.StructuredResponse{Response: llm.Response{Text: "nope"}, ParseError: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(llm.MockGenerator)
			gen.On("GenerateStructured", mock.Anything, "[User]\nhi", mock.Anything, `{"a":"number"}`).Return(tt.resp, nil).Once()

			res, err := newOrchestrator(gen, nil, tracking.NopBackend{}, defaultOptions).Generate(context.Background(),
				GenerationRequest{UserMessage: "hi", StructuredOutput: true, OutputSchema: `{"a":"number"}`})

			require.NoError(t, err)
			assert.Equal(t, tt.resp.Text, res.Text)
			assert.Equal(t, tt.resp.Payload, res.Structured)
			assert.Equal(t, tt.wantParse, res.ParseError)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGenerateConcurrentRequestsAreIsolated(t *testing.T) {
	const n = 50
	tb := newRecordingBackend()
	o := newOrchestrator(echoGenerator{}, nil, tb, defaultOptions)

	var wg sync.WaitGroup
	results := make([]GenerationResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Generate(context.Background(), GenerationRequest{
				UserMessage:   fmt.Sprintf("message-%03d", i),
				AgentSettings: AgentSettings{MaxTokens: i + 1},
			})
		}(i)
	}
	wg.Wait()

	tb.mu.Lock()
	defer tb.mu.Unlock()
	require.Len(t, tb.opened, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		id := results[i].RunID
		msg := fmt.Sprintf("message-%03d", i)
		assert.Equal(t, 1, tb.opened[id])
		assert.Equal(t, 1, tb.closed[id])
		assert.Equal(t, tracking.StatusSuccess, tb.statuses[id])
		assert.Equal(t, msg, tb.params[id].UserMessage)
		assert.Equal(t, i+1, tb.params[id].MaxTokens)
		assert.Equal(t, "[User]\n"+msg, tb.outcomes[id].Output)
	}
}

func TestRejectRecordsFailedRun(t *testing.T) {
	gen := new(llm.MockGenerator)
	ret := new(retriever.MockRetriever)
	tb := newRecordingBackend()
	cause := errors.New("json: cannot unmarshal string into Go struct field AgentSettings.agent_settings.temperature of type float64")

	err := newOrchestrator(gen, ret, tb, Options{DefaultModel: defaultModel, RAGEnabled: true, TopK: 3}).
		Reject(context.Background(), GenerationRequest{UserMessage: "hi"}, cause)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeInvalidRequest, e.Code)
	assert.NotContains(t, e.Message, "float64")
	assert.ErrorIs(t, err, cause)

	params, outcome, status := tb.only(t)
	assert.Equal(t, "hi", params.UserMessage)
	assert.Equal(t, tracking.StatusFailure, status)
	assert.NotEmpty(t, outcome.Error)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	ret.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
}
