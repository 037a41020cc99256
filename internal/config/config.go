package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings. It is loaded once at startup and
// passed by value afterwards.
type Config struct {
	// Service
	ServiceName string `env:"SERVICE_NAME" envDefault:"ai-agent"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Transport
	RESTHost       string        `env:"REST_HOST" envDefault:"0.0.0.0"`
	RESTPort       int           `env:"REST_PORT" envDefault:"8002"`
	GRPCHost       string        `env:"GRPC_HOST" envDefault:"0.0.0.0"`
	GRPCPort       int           `env:"GRPC_PORT" envDefault:"50051"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"180s"` // end-to-end deadline per request
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	CORSOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// LLM
	LLMProvider        string        `env:"LLM_PROVIDER" envDefault:"ollama"` // "ollama" or "openai"
	OllamaBaseURL      string        `env:"OLLAMA_BASE_URL" envDefault:"http://ollama:11434"`
	DefaultModel       string        `env:"OLLAMA_MODEL" envDefault:"qwen2.5:7b-instruct"`
	OpenAIKey          string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	DefaultTemperature float64       `env:"DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int           `env:"DEFAULT_MAX_TOKENS" envDefault:"2048"`
	LLMTimeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"` // budget for one call including retries
	LLMAttemptTimeout  time.Duration `env:"LLM_ATTEMPT_TIMEOUT" envDefault:"0s"`
	LLMMaxRetries      int           `env:"LLM_MAX_RETRIES" envDefault:"3"` // total attempts
	LLMBackoffBase     time.Duration `env:"LLM_BACKOFF_BASE" envDefault:"1s"`
	LLMBackoffMax      time.Duration `env:"LLM_BACKOFF_MAX" envDefault:"10s"`
	LLMBackoffJitter   float64       `env:"LLM_BACKOFF_JITTER" envDefault:"0.2"`
	LLMMaxConns        int           `env:"LLM_MAX_CONNS" envDefault:"16"`
	LLMRateLimitRPS    float64       `env:"LLM_RATE_LIMIT_RPS" envDefault:"0"` // 0 disables
	LLMRateLimitBurst  int           `env:"LLM_RATE_LIMIT_BURST" envDefault:"1"`

	// Tracking
	TrackingProvider   string        `env:"TRACKING_PROVIDER" envDefault:"mlflow"` // mlflow, nats, sqlite, log, none
	TrackingTimeout    time.Duration `env:"TRACKING_TIMEOUT" envDefault:"5s"`
	MLflowTrackingURI  string        `env:"MLFLOW_TRACKING_URI" envDefault:"http://mlflow:5000"`
	MLflowExperiment   string        `env:"MLFLOW_EXPERIMENT_NAME" envDefault:"ai-agent-generations"`
	NATSURL            string        `env:"NATS_URL"`
	TrackingSubject    string        `env:"TRACKING_SUBJECT" envDefault:"tracking.runs"`
	TrackingSQLitePath string        `env:"TRACKING_SQLITE_PATH" envDefault:"runs.db"`

	// Retrieval
	RAGEnabled        bool          `env:"RAG_ENABLED" envDefault:"false"`
	RAGProvider       string        `env:"RAG_PROVIDER" envDefault:"dummy"` // dummy, vector
	RAGTopK           int           `env:"RAG_TOP_K" envDefault:"5"`
	RetrievalTimeout  time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"5s"`
	DBURL             string        `env:"DB_URL"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RetrievalCacheTTL time.Duration `env:"RETRIEVAL_CACHE_TTL" envDefault:"5m"`

	// Embeddings
	EmbeddingProvider   string `env:"EMBEDDING_PROVIDER" envDefault:"ollama"` // ollama, openai
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"768"`

	// Telemetry
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file, then environment variables with defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.DefaultModel == "" {
		errs = append(errs, errors.New("OLLAMA_MODEL must not be empty"))
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		errs = append(errs, fmt.Errorf("DEFAULT_TEMPERATURE must be in [0,2], got %v", c.DefaultTemperature))
	}
	if c.DefaultMaxTokens < 1 || c.DefaultMaxTokens > 32768 {
		errs = append(errs, fmt.Errorf("DEFAULT_MAX_TOKENS must be in [1,32768], got %d", c.DefaultMaxTokens))
	}
	if c.LLMMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must be at least 1, got %d", c.LLMMaxRetries))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.LLMBackoffJitter < 0 || c.LLMBackoffJitter > 1 {
		errs = append(errs, fmt.Errorf("LLM_BACKOFF_JITTER must be in [0,1], got %v", c.LLMBackoffJitter))
	}
	if c.RAGTopK < 1 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be at least 1, got %d", c.RAGTopK))
	}
	return errors.Join(errs...)
}

// RESTAddr is the listen address of the REST transport.
func (c Config) RESTAddr() string { return fmt.Sprintf("%s:%d", c.RESTHost, c.RESTPort) }

// GRPCAddr is the listen address of the RPC transport.
func (c Config) GRPCAddr() string { return fmt.Sprintf("%s:%d", c.GRPCHost, c.GRPCPort) }
