package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Generator turns a fully rendered prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LangchainGenerator sends one human message per prompt to a langchaingo model.
type LangchainGenerator struct {
	llm       llms.Model
	maxTokens int
}

func NewLangchainGenerator(llm llms.Model, maxTokens int) *LangchainGenerator {
	return &LangchainGenerator{llm: llm, maxTokens: maxTokens}
}

// NewGenerator builds the model client for the configured provider.
func NewGenerator(cfg config.LLMConfig) (*LangchainGenerator, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("model", cfg.Model).
		Int("max_tokens", cfg.MaxTokens).
		Msg("creating generator")

	httpClient := &http.Client{Timeout: cfg.Timeout}

	var llm llms.Model
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai generator: %w", err)
		}
		llm = client
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init ollama generator: %w", err)
		}
		llm = client
	default:
		return nil, fmt.Errorf("%w: generation provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
	return NewLangchainGenerator(llm, cfg.MaxTokens), nil
}

// Generate returns the first choice of the model response with surrounding
// whitespace removed.
func (g *LangchainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", models.ErrGenerationService)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
