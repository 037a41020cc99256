package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

// MLflow rejects tag values above 5000 characters and param values above 500.
const (
	mlflowMaxTagLen   = 5000
	mlflowMaxParamLen = 500
)

// MLflowBackend talks to the MLflow tracking server REST API (2.0).
type MLflowBackend struct {
	baseURL    string
	experiment string
	client     *http.Client

	lookups      singleflight.Group
	mu           sync.Mutex
	experimentID string
}

func NewMLflowBackend(trackingURI, experiment string) *MLflowBackend {
	return &MLflowBackend{
		baseURL:    strings.TrimRight(trackingURI, "/"),
		experiment: experiment,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *MLflowBackend) Name() string { return "mlflow" }

type mlflowTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type mlflowError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// apiError is a non-2xx answer from the tracking server.
type apiError struct {
	status int
	mlflowError
}

func (e *apiError) Error() string {
	return fmt.Sprintf("mlflow: status %d: %s %s", e.status, e.ErrorCode, e.Message)
}

func (b *MLflowBackend) StartRun(ctx context.Context, p Params) (string, error) {
	expID, err := b.experimentIDFor(ctx)
	if err != nil {
		return "", err
	}
	req := map[string]any{
		"experiment_id": expID,
		"start_time":    time.Now().UnixMilli(),
		"run_name":      p.RunID,
		"tags": []mlflowTag{
			{Key: "request_id", Value: p.RunID},
			{Key: "retrieval_enabled", Value: strconv.FormatBool(p.RetrievalEnabled)},
			{Key: "structured_output", Value: strconv.FormatBool(p.Structured)},
		},
	}
	var resp struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	if err := b.post(ctx, "runs/create", req, &resp); err != nil {
		return "", err
	}
	if resp.Run.Info.RunID == "" {
		return "", errors.New("mlflow: runs/create returned no run id")
	}
	return resp.Run.Info.RunID, nil
}

func (b *MLflowBackend) LogRun(ctx context.Context, runID string, p Params, o Outcome) error {
	now := time.Now().UnixMilli()
	req := map[string]any{
		"run_id": runID,
		"params": []mlflowTag{
			{Key: "model_name", Value: truncate(p.Model, mlflowMaxParamLen)},
			{Key: "temperature", Value: strconv.FormatFloat(p.Temperature, 'f', -1, 64)},
			{Key: "max_tokens", Value: strconv.Itoa(p.MaxTokens)},
		},
		"metrics": []mlflowMetric{
			{Key: "latency_seconds", Value: o.Latency.Seconds(), Timestamp: now},
			{Key: "output_length", Value: float64(len(o.Output)), Timestamp: now},
			{Key: "retrieved_snippets", Value: float64(o.RetrievedSnippets), Timestamp: now},
		},
		"tags": outcomeTags(p, o),
	}
	return b.post(ctx, "runs/log-batch", req, nil)
}

func outcomeTags(p Params, o Outcome) []mlflowTag {
	tags := []mlflowTag{
		{Key: "status", Value: string(o.Status)},
		{Key: "user_message", Value: truncate(p.UserMessage, mlflowMaxTagLen)},
	}
	if p.SystemPrompt != "" {
		tags = append(tags, mlflowTag{Key: "system_prompt", Value: truncate(p.SystemPrompt, mlflowMaxTagLen)})
	}
	if o.Prompt != "" {
		tags = append(tags, mlflowTag{Key: "full_prompt", Value: truncate(o.Prompt, mlflowMaxTagLen)})
	}
	if o.Output != "" {
		tags = append(tags, mlflowTag{Key: "output", Value: truncate(o.Output, mlflowMaxTagLen)})
	}
	if o.Error != "" {
		tags = append(tags, mlflowTag{Key: "error", Value: truncate(o.Error, mlflowMaxTagLen)})
	}
	return tags
}

func (b *MLflowBackend) EndRun(ctx context.Context, runID string, status Status) error {
	return b.post(ctx, "runs/update", map[string]any{
		"run_id":   runID,
		"status":   mlflowStatus(status),
		"end_time": time.Now().UnixMilli(),
	}, nil)
}

func mlflowStatus(s Status) string {
	switch s {
	case StatusSuccess:
		return "FINISHED"
	case StatusCancelled:
		return "KILLED"
	default:
		return "FAILED"
	}
}

// experimentIDFor resolves the experiment once per process, creating it when
// missing. Concurrent callers share one in-flight lookup and stop waiting
// when their own context ends; a failed lookup is retried on the next run.
func (b *MLflowBackend) experimentIDFor(ctx context.Context) (string, error) {
	b.mu.Lock()
	id := b.experimentID
	b.mu.Unlock()
	if id != "" {
		return id, nil
	}

	ch := b.lookups.DoChan("experiment", func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.client.Timeout)
		defer cancel()
		id, err := b.resolveExperiment(lookupCtx)
		if err != nil {
			return "", err
		}
		b.mu.Lock()
		b.experimentID = id
		b.mu.Unlock()
		return id, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (b *MLflowBackend) resolveExperiment(ctx context.Context) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := b.get(ctx, "experiments/get-by-name?experiment_name="+url.QueryEscape(b.experiment), &got)
	switch {
	case err == nil:
		return got.Experiment.ExperimentID, nil
	case !isNotFound(err):
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := b.post(ctx, "experiments/create", map[string]any{"name": b.experiment}, &created); err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

func isNotFound(err error) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.status == http.StatusNotFound || apiErr.ErrorCode == "RESOURCE_DOES_NOT_EXIST"
}

func (b *MLflowBackend) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/2.0/mlflow/"+path, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *MLflowBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/2.0/mlflow/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *MLflowBackend) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("mlflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &apiErr.mlflowError) != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mlflow: decode response: %w", err)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
