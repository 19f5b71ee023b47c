package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/observability"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

const (
	configFilePath = "./configs/config.yaml"
	version        = "0.1.0"
)

// app holds the long-lived clients shared by every command.
type app struct {
	cfg       *config.Config
	extractor *parser.DocumentExtractor
	embedder  *llmservice.RetryingEmbedder
	generator *llmservice.RetryingGenerator
	history   *db.HistoryStore
	tracing   *observability.TracerProvider
}

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Ask questions about a PDF or office document",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configFilePath, "path to the YAML config file")
	root.AddCommand(newAskCmd(), newChatCmd(), newServeCmd(), newHistoryCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("docqa failed")
		os.Exit(exitCode(err))
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	log.Debug().Str("config", configPath).Msg("Loaded config")

	tp, err := observability.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, err
	}

	retrier := llmservice.NewRetrier(cfg.Retry)
	emb, err := embedding.NewEmbedder(cfg.EmbedLLM, cfg.RAG.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidConfig, err)
	}
	gen, err := llmservice.NewGenerator(cfg.GenLLM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidConfig, err)
	}

	a := &app{
		cfg:       cfg,
		extractor: parser.NewDocumentExtractor(),
		embedder:  llmservice.NewRetryingEmbedder(emb, retrier),
		generator: llmservice.NewRetryingGenerator(gen, retrier),
		tracing:   tp,
	}

	if cfg.History.Enabled {
		h, err := db.OpenHistory(ctx, cfg.History)
		if err != nil {
			// History is optional.
			log.Warn().Err(err).Msg("Q&A history disabled")
		} else {
			a.history = h
		}
	}
	return a, nil
}

func (a *app) newSession(id string, opts ...rag.Option) (*rag.Session, error) {
	if a.history != nil {
		opts = append(opts, rag.WithHistory(a.history))
	}
	return rag.NewSession(id, a.cfg.RAG, a.extractor, a.embedder, a.generator, opts...)
}

func (a *app) close(ctx context.Context) {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing history store")
		}
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Error flushing traces")
	}
}

// loadFile reads path and loads it into s, logging embedding progress.
func loadFile(ctx context.Context, s *rag.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	status, err := s.LoadDocument(ctx, path, data)
	if err != nil {
		return err
	}
	log.Info().Str("document", status.DocumentName).Int("chunks", status.Chunks).Msg("Document ready")
	return nil
}

func logProgress(p float64) {
	log.Info().Float64("progress", p).Msg("Embedding chunks")
}

// exitCode maps error kinds to process exit statuses.
func exitCode(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, models.ErrEmptyQuestion):
		return 2
	case errors.Is(err, models.ErrUnsupportedDocument),
		errors.Is(err, models.ErrUnreadableDocument),
		errors.Is(err, models.ErrEmptyDocument),
		errors.Is(err, os.ErrNotExist):
		return 3
	case errors.Is(err, models.ErrEmbeddingService), errors.Is(err, models.ErrGenerationService):
		return 4
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 130
	default:
		return 1
	}
}
