package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-qa/internal/models"
)

const (
	defaultChunkSize        = 500 // words
	defaultBatchSize        = 50
	defaultTopK             = 3
	defaultEmbedConcurrency = 1
	defaultMaxTokens        = 600
	defaultRetryAttempts    = 3
	defaultRetryInitial     = 500 * time.Millisecond
	defaultRetryMax         = 10 * time.Second
	defaultRequestTimeout   = 2 * time.Minute
	defaultServerAddr       = ":8080"
	defaultUploadLimitMB    = 32
)

type Config struct {
	RAG      RAGConfig     `yaml:"rag"`
	EmbedLLM LLMConfig     `yaml:"embed_llm"`
	GenLLM   LLMConfig     `yaml:"generate_llm"`
	Retry    RetryConfig   `yaml:"retry"`
	History  HistoryConfig `yaml:"history"`
	Tracing  TracingConfig `yaml:"tracing"`
	Log      LogConfig     `yaml:"log"`
	Server   ServerConfig  `yaml:"server"`
}

type RAGConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	BatchSize        int    `yaml:"batch_size"`
	TopK             int    `yaml:"top_k"`
	CollectionName   string `yaml:"collection_name"`
	EmbedConcurrency int    `yaml:"embed_concurrency"`
}

// LLMConfig describes one remote model endpoint. Provider is "openai" (any
// OpenAI-compatible API) or "ollama".
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // "pgdriver" or "postgres" (lib/pq)
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}

type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	UploadLimitMB int    `yaml:"upload_limit_mb"`
}

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment (a .env file in the working directory is loaded first). The file
// is decoded over Default(), so only keys it leaves out keep their default; an
// explicit zero is validated like any other value. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		EmbedLLM: LLMConfig{Provider: "openai", Model: "text-embedding-3-small"},
		GenLLM:   LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		History:  HistoryConfig{Driver: "pgdriver"},
		Tracing:  TracingConfig{ServiceName: "document-qa", SampleRate: 1.0},
		Log:      LogConfig{Level: "info", Pretty: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DOCQA_EMBED_API_KEY"); v != "" {
		c.EmbedLLM.Key = v
	}
	if v := os.Getenv("DOCQA_GEN_API_KEY"); v != "" {
		c.GenLLM.Key = v
	}
	if v := os.Getenv("DOCQA_HISTORY_DSN"); v != "" {
		c.History.DSN = v
	}
	if v := os.Getenv("DOCQA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.BatchSize == 0 {
		c.RAG.BatchSize = defaultBatchSize
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.CollectionName == "" {
		c.RAG.CollectionName = models.DefaultCollection
	}
	if c.RAG.EmbedConcurrency == 0 {
		c.RAG.EmbedConcurrency = defaultEmbedConcurrency
	}
	if c.GenLLM.MaxTokens == 0 {
		c.GenLLM.MaxTokens = defaultMaxTokens
	}
	if c.EmbedLLM.Timeout == 0 {
		c.EmbedLLM.Timeout = defaultRequestTimeout
	}
	if c.GenLLM.Timeout == 0 {
		c.GenLLM.Timeout = defaultRequestTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultRetryAttempts
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = defaultRetryInitial
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = defaultRetryMax
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.UploadLimitMB == 0 {
		c.Server.UploadLimitMB = defaultUploadLimitMB
	}
}

// Validate rejects settings that would make the pipeline misbehave. It runs
// before any client is constructed, so no external call is made with a bad
// config.
func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.batch_size must be positive, got %d", c.RAG.BatchSize))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("rag.embed_concurrency must be positive, got %d", c.RAG.EmbedConcurrency))
	}
	if c.RAG.CollectionName == "" {
		errs = append(errs, errors.New("rag.collection_name is empty"))
	}
	if c.GenLLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("generate_llm.max_tokens must be positive, got %d", c.GenLLM.MaxTokens))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, fmt.Errorf("retry intervals must be positive with max >= initial, got %v / %v", c.Retry.InitialInterval, c.Retry.MaxInterval))
	}
	if c.Server.UploadLimitMB <= 0 {
		errs = append(errs, fmt.Errorf("server.upload_limit_mb must be positive, got %d", c.Server.UploadLimitMB))
	}
	for _, named := range []struct {
		name string
		llm  LLMConfig
	}{{"embed_llm", c.EmbedLLM}, {"generate_llm", c.GenLLM}} {
		name, llm := named.name, named.llm
		switch llm.Provider {
		case "openai", "ollama":
		default:
			errs = append(errs, fmt.Errorf("%s.provider %q is not supported", name, llm.Provider))
		}
		if llm.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is empty", name))
		}
	}
	if c.History.Enabled {
		if c.History.DSN == "" {
			errs = append(errs, errors.New("history.dsn is required when history is enabled"))
		}
		switch c.History.Driver {
		case "pgdriver", "postgres":
		default:
			errs = append(errs, fmt.Errorf("history.driver %q is not supported", c.History.Driver))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrInvalidConfig, errors.Join(errs...))
}
