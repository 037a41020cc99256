package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ai-agent/internal/cache"
	"ai-agent/internal/config"
	"ai-agent/internal/embeddings"
	"ai-agent/internal/ingest"
	"ai-agent/internal/llm"
	"ai-agent/internal/metrics"
	"ai-agent/internal/orchestrator"
	"ai-agent/internal/queue"
	"ai-agent/internal/retriever"
	"ai-agent/internal/retry"
	"ai-agent/internal/store"
	"ai-agent/internal/tracking"
)

// Deps bundles the shared runtime components of the serve command.
type Deps struct {
	Config       config.Config
	Log          *slog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *orchestrator.Orchestrator
	BackendURL   string

	closers []func() error
}

// Close releases connections opened by Build in reverse order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Deps) onClose(f func() error) { d.closers = append(d.closers, f) }

// Build wires the orchestrator and its collaborators from cfg.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Deps, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d := &Deps{Config: cfg, Log: log, Registry: reg, Metrics: metrics.New(reg)}

	gen, backendURL, err := buildLLM(cfg, log, d.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	d.BackendURL = backendURL

	r, err := d.buildRetriever(ctx, cfg, log)
	if err != nil {
		d.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}

	backend, err := d.buildTracking(ctx, cfg, log)
	if err != nil {
		d.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize tracking: %w", err)
	}

	d.Orchestrator = orchestrator.New(gen, r,
		tracking.NewRecorder(backend, cfg.TrackingTimeout, log, d.Metrics),
		log, d.Metrics,
		orchestrator.Options{
			DefaultModel:       cfg.DefaultModel,
			DefaultTemperature: cfg.DefaultTemperature,
			DefaultMaxTokens:   cfg.DefaultMaxTokens,
			RAGEnabled:         cfg.RAGEnabled,
			TopK:               cfg.RAGTopK,
			RetrievalTimeout:   cfg.RetrievalTimeout,
		},
	)
	return d, nil
}

// BuildIngest wires the ingestion pipeline. The caller must call the returned
// close function.
func BuildIngest(ctx context.Context, cfg config.Config, log *slog.Logger) (*ingest.Pipeline, func() error, error) {
	d := &Deps{Config: cfg, Log: log}
	embedder, err := buildEmbedder(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	st, err := d.buildStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	c := d.buildCache(cfg, log)
	return ingest.New(embedder, st, c, log, ingest.Options{}), d.Close, nil
}

// Policy converts the retry settings of cfg.
func Policy(cfg config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.LLMMaxRetries,
		BaseDelay:      cfg.LLMBackoffBase,
		MaxDelay:       cfg.LLMBackoffMax,
		Jitter:         cfg.LLMBackoffJitter,
		Budget:         cfg.LLMTimeout,
		AttemptTimeout: cfg.LLMAttemptTimeout,
	}
}

func buildLLM(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (llm.Generator, string, error) {
	var (
		backend llm.Backend
		url     string
	)
	switch cfg.LLMProvider {
	case "ollama":
		backend, url = llm.NewOllamaBackend(cfg.OllamaBaseURL, cfg.LLMMaxConns), cfg.OllamaBaseURL
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, "", errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		b, err := llm.NewOpenAIBackend(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.LLMMaxConns)
		if err != nil {
			return nil, "", err
		}
		backend, url = b, cfg.OpenAIBaseURL
		if url == "" {
			url = "https://api.openai.com/v1"
		}
	default:
		return nil, "", fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: ollama, openai)", cfg.LLMProvider)
	}
	log.Info("using LLM backend", "provider", cfg.LLMProvider, "url", url, "default_model", cfg.DefaultModel)
	return llm.NewClient(backend, log, llm.Options{
		Policy:    Policy(cfg),
		RateLimit: cfg.LLMRateLimitRPS,
		RateBurst: cfg.LLMRateLimitBurst,
		Metrics:   m,
	}), url, nil
}

func (d *Deps) buildRetriever(ctx context.Context, cfg config.Config, log *slog.Logger) (retriever.Retriever, error) {
	if !cfg.RAGEnabled {
		log.Info("retrieval disabled")
		return retriever.Disabled{}, nil
	}
	var r retriever.Retriever
	switch cfg.RAGProvider {
	case "dummy":
		r = retriever.NewDummy(log)
	case "vector":
		embedder, err := buildEmbedder(cfg, log)
		if err != nil {
			return nil, err
		}
		st, err := d.buildStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		r = retriever.NewVector(embedder, st)
	default:
		return nil, fmt.Errorf("invalid RAG_PROVIDER: %s (valid options: dummy, vector)", cfg.RAGProvider)
	}
	log.Info("retrieval enabled", "provider", cfg.RAGProvider, "top_k", cfg.RAGTopK)
	if cfg.RedisAddr == "" {
		return r, nil
	}
	return retriever.NewCached(r, d.buildCache(cfg, log), cfg.RetrievalCacheTTL, log), nil
}

func (d *Deps) buildStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is required for the vector store")
	}
	st, err := store.NewPostgres(ctx, cfg.DBURL, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	d.onClose(st.Close)
	log.Info("using Postgres vector store", "dimensions", cfg.EmbeddingDimensions)
	return st, nil
}

// buildCache falls back to a no-op cache when Redis is not configured or not
// reachable; retrieval works without it.
func (d *Deps) buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, retrieval cache disabled", "addr", cfg.RedisAddr, "err", err)
		return cache.NewNoOpCache()
	}
	d.onClose(c.Close)
	log.Info("using Redis retrieval cache", "addr", cfg.RedisAddr, "ttl", cfg.RetrievalCacheTTL)
	return c
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		log.Info("using Ollama embedder", "model", cfg.EmbeddingModel)
		return embeddings.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbeddingModel), nil
	case "openai":
		e, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return e, nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid options: ollama, openai)", cfg.EmbeddingProvider)
	}
}

func (d *Deps) buildTracking(ctx context.Context, cfg config.Config, log *slog.Logger) (tracking.Backend, error) {
	switch cfg.TrackingProvider {
	case "mlflow":
		log.Info("using MLflow tracking", "uri", cfg.MLflowTrackingURI, "experiment", cfg.MLflowExperiment)
		return tracking.NewMLflowBackend(cfg.MLflowTrackingURI, cfg.MLflowExperiment), nil
	case "nats":
		if cfg.NATSURL == "" {
			return nil, errors.New("NATS_URL is required when TRACKING_PROVIDER=nats")
		}
		nc, err := queue.Connect(cfg.NATSURL, log)
		if err != nil {
			return nil, err
		}
		pub := queue.NewNATS(log, nc)
		d.onClose(pub.Close)
		log.Info("using NATS tracking", "subject", cfg.TrackingSubject)
		return tracking.NewNATSBackend(pub, cfg.TrackingSubject), nil
	case "sqlite":
		b, err := tracking.NewSQLiteBackend(ctx, cfg.TrackingSQLitePath)
		if err != nil {
			return nil, err
		}
		d.onClose(b.Close)
		log.Info("using SQLite tracking", "path", cfg.TrackingSQLitePath)
		return b, nil
	case "log":
		return tracking.NewLogBackend(log), nil
	case "none":
		return tracking.NopBackend{}, nil
	default:
		return nil, fmt.Errorf("invalid TRACKING_PROVIDER: %s (valid options: mlflow, nats, sqlite, log, none)", cfg.TrackingProvider)
	}
}
