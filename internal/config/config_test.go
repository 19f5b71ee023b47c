package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"document-qa/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RAG.ChunkSize != 500 {
		t.Errorf("expected chunk size 500, got %d", cfg.RAG.ChunkSize)
	}
	if cfg.RAG.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", cfg.RAG.BatchSize)
	}
	if cfg.RAG.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", cfg.RAG.TopK)
	}
	if cfg.RAG.CollectionName != "pdf_chunks" {
		t.Errorf("expected collection pdf_chunks, got %s", cfg.RAG.CollectionName)
	}
	if cfg.GenLLM.MaxTokens != 600 {
		t.Errorf("expected max tokens 600, got %d", cfg.GenLLM.MaxTokens)
	}
}

func TestLoadConfig_ParsesFileAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DOCQA_KEY", "secret-key")
	path := writeConfig(t, `
rag:
  chunk_size: 120
  batch_size: 10
  top_k: 5
  collection_name: contracts
embed_llm:
  provider: ollama
  base_url: http://localhost:11434
  model: nomic-embed-text
generate_llm:
  provider: openai
  key: ${TEST_DOCQA_KEY}
  model: command-r
  timeout: 45s
retry:
  initial_interval: 250ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RAG.ChunkSize != 120 || cfg.RAG.BatchSize != 10 || cfg.RAG.TopK != 5 {
		t.Errorf("unexpected rag config: %+v", cfg.RAG)
	}
	if cfg.RAG.CollectionName != "contracts" {
		t.Errorf("expected collection contracts, got %s", cfg.RAG.CollectionName)
	}
	if cfg.EmbedLLM.Provider != "ollama" || cfg.EmbedLLM.Model != "nomic-embed-text" {
		t.Errorf("unexpected embed config: %+v", cfg.EmbedLLM)
	}
	if cfg.GenLLM.Key != "secret-key" {
		t.Errorf("expected expanded key, got %q", cfg.GenLLM.Key)
	}
	if cfg.GenLLM.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.GenLLM.Timeout)
	}
	if cfg.Retry.InitialInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms initial interval, got %v", cfg.Retry.InitialInterval)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default 3 attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadConfig_EnvOverridesKeys(t *testing.T) {
	t.Setenv("DOCQA_EMBED_API_KEY", "embed-env")
	t.Setenv("DOCQA_GEN_API_KEY", "gen-env")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EmbedLLM.Key != "embed-env" || cfg.GenLLM.Key != "gen-env" {
		t.Errorf("expected env keys, got %q / %q", cfg.EmbedLLM.Key, cfg.GenLLM.Key)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative chunk size", "rag:\n  chunk_size: -1\n"},
		{"negative batch size", "rag:\n  batch_size: -5\n"},
		{"negative top_k", "rag:\n  top_k: -3\n"},
		{"explicit zero chunk size", "rag:\n  chunk_size: 0\n"},
		{"explicit zero batch size", "rag:\n  batch_size: 0\n"},
		{"explicit zero top_k", "rag:\n  top_k: 0\n"},
		{"empty collection name", "rag:\n  collection_name: \"\"\n"},
		{"zero max tokens", "generate_llm:\n  max_tokens: 0\n"},
		{"zero upload limit", "server:\n  upload_limit_mb: 0\n"},
		{"unknown provider", "embed_llm:\n  provider: cohere\n"},
		{"history without dsn", "history:\n  enabled: true\n  dsn: \"\"\n"},
		{"history bad driver", "history:\n  enabled: true\n  driver: mysql\n  dsn: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOCQA_HISTORY_DSN", "")
			_, err := LoadConfig(writeConfig(t, tt.body))
			if !errors.Is(err, models.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfig_OmittedKeysKeepDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "rag:\n  top_k: 7\nserver:\n  addr: \":9090\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RAG.TopK != 7 || cfg.Server.Addr != ":9090" {
		t.Errorf("expected file values, got top_k %d addr %q", cfg.RAG.TopK, cfg.Server.Addr)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.BatchSize != 50 || cfg.Server.UploadLimitMB != 32 {
		t.Errorf("expected defaults for omitted keys, got %+v / %+v", cfg.RAG, cfg.Server)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "rag: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_Default(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}
