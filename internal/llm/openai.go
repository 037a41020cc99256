package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIBackend calls the OpenAI Chat Completions API. The SDK's own retries
// are disabled; Client applies the retry policy.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend builds a backend against api.openai.com, or baseURL when set.
func NewOpenAIBackend(apiKey, baseURL string, maxConns int) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if maxConns > 0 {
		transport.MaxConnsPerHost = maxConns
		transport.MaxIdleConnsPerHost = maxConns
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: transport}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAIBackend{client: &cli}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (Response, error) {
	if b == nil || b.client == nil {
		return Response{}, fmt.Errorf("nil openai client")
	}
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            buildMessages(req.Prompt),
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrNoChoices
	}
	return Response{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		Latency:          time.Since(start),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// The prompt is already fully assembled, so it travels as a single user turn.
func buildMessages(prompt string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(prompt),
				},
			},
		},
	}
}
