package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/observability"
	"document-qa/internal/parser"
)

// State is the position of a session in the document pipeline.
type State string

const (
	StateIdle          State = "idle"
	StateTextExtracted State = "text_extracted"
	StateChunked       State = "chunked"
	StateEmbedded      State = "embedded"
	StateIndexed       State = "indexed"
	StateReady         State = "ready_for_query"
	StateError         State = "error"
)

// TextExtractor converts uploaded document bytes to plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, name string, data []byte) (string, error)
}

// HistoryRecorder stores answered questions. Failures are logged, never
// surfaced to the asker.
type HistoryRecorder interface {
	RecordAnswer(ctx context.Context, answer *models.Answer) error
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID    string    `json:"session_id"`
	State        State     `json:"state"`
	DocumentName string    `json:"document_name,omitempty"`
	DocumentID   string    `json:"document_id,omitempty"`
	Chunks       int       `json:"chunks"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Option func(*Session)

// WithHistory records every answer with h.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Session) { s.history = h }
}

// WithProgress reports embedding progress while a document loads.
func WithProgress(fn embedding.ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// Session answers questions about one document at a time. Loading a new
// document replaces the previous one; a load or question that is overtaken
// by a newer load returns models.ErrSuperseded instead of a stale result.
type Session struct {
	id        string
	cfg       config.RAGConfig
	extractor TextExtractor
	embedder  embeddings.Embedder
	generator llmservice.Generator
	store     *chromemdb.IndexStore
	history   HistoryRecorder
	progress  embedding.ProgressFunc

	mu         sync.Mutex
	generation uint64
	state      State
	docName    string
	docID      string
	chunks     int
	lastErr    error
	updatedAt  time.Time
}

func NewSession(id string, cfg config.RAGConfig, extractor TextExtractor, embedder embeddings.Embedder, generator llmservice.Generator, opts ...Option) (*Session, error) {
	switch {
	case cfg.ChunkSize <= 0:
		return nil, fmt.Errorf("%w: chunk size must be positive", models.ErrInvalidConfig)
	case cfg.BatchSize <= 0:
		return nil, fmt.Errorf("%w: batch size must be positive", models.ErrInvalidConfig)
	case cfg.TopK <= 0:
		return nil, fmt.Errorf("%w: top_k must be positive", models.ErrInvalidConfig)
	case cfg.CollectionName == "":
		return nil, fmt.Errorf("%w: collection name is empty", models.ErrInvalidConfig)
	}
	if extractor == nil || embedder == nil || generator == nil {
		return nil, errors.New("session needs an extractor, an embedder and a generator")
	}

	s := &Session{
		id:        id,
		cfg:       cfg,
		extractor: extractor,
		embedder:  embedder,
		generator: generator,
		store:     chromemdb.NewIndexStore(),
		state:     StateIdle,
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// LoadDocument replaces the session's document with data and runs it through
// extraction, chunking, embedding and indexing. On success the session is
// ready for questions.
func (s *Session) LoadDocument(ctx context.Context, name string, data []byte) (Status, error) {
	docID := helper.Fingerprint(data)
	ctx, span := observability.StartSpan(ctx, "rag.load_document",
		attribute.String("session", s.id),
		attribute.String("document", name),
		attribute.Int("bytes", len(data)),
	)
	defer span.End()

	gen := s.reset(name, docID)
	logger := log.With().Str("session", s.id).Str("document", name).Logger()
	logger.Info().Int("bytes", len(data)).Msg("loading document")

	// extract
	stageCtx, stageSpan := observability.StartSpan(ctx, "rag.extract")
	text, err := s.extractor.ExtractText(stageCtx, name, data)
	observability.RecordError(stageSpan, err)
	stageSpan.End()
	if err != nil {
		return s.fail(ctx, gen, models.StageExtract, models.ErrUnreadableDocument, err, span)
	}
	if err := s.advance(gen, StateTextExtracted, 0); err != nil {
		return s.Status(), err
	}

	// chunk
	chunks, err := parser.ChunkWords(text, s.cfg.ChunkSize)
	if err != nil {
		return s.fail(ctx, gen, models.StageChunk, models.ErrInvalidConfig, err, span)
	}
	if len(chunks) == 0 {
		return s.fail(ctx, gen, models.StageChunk, models.ErrEmptyDocument, nil, span)
	}
	if err := s.advance(gen, StateChunked, len(chunks)); err != nil {
		return s.Status(), err
	}
	logger.Debug().Int("chunks", len(chunks)).Msg("document chunked")

	// embed
	batcher := embedding.NewBatcher(s.cfg.BatchSize, s.cfg.EmbedConcurrency)
	batcher.Progress = s.progress
	stageCtx, stageSpan = observability.StartSpan(ctx, "rag.embed",
		attribute.Int("chunks", len(chunks)),
		attribute.Int("batch_size", s.cfg.BatchSize),
	)
	vectors, err := batcher.EmbedAll(stageCtx, chunks, s.embedder)
	observability.RecordError(stageSpan, err)
	stageSpan.End()
	if err != nil {
		return s.fail(ctx, gen, models.StageEmbed, models.ErrEmbeddingService, err, span)
	}
	if err := s.advance(gen, StateEmbedded, len(chunks)); err != nil {
		return s.Status(), err
	}

	// index
	stageCtx, stageSpan = observability.StartSpan(ctx, "rag.index", attribute.String("collection", s.cfg.CollectionName))
	err = s.commit(stageCtx, gen, chunks, vectors)
	observability.RecordError(stageSpan, err)
	stageSpan.End()
	if errors.Is(err, models.ErrSuperseded) {
		return s.Status(), err
	}
	if err != nil {
		return s.fail(ctx, gen, models.StageIndex, models.ErrIndexBuild, err, span)
	}
	if err := s.advance(gen, StateReady, len(chunks)); err != nil {
		return s.Status(), err
	}

	logger.Info().Int("chunks", len(chunks)).Str("collection", s.cfg.CollectionName).Msg("document ready")
	return s.Status(), nil
}

// reset drops the current document and starts a new generation.
func (s *Session) reset(name, docID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.dropLocked()
	s.docName = name
	s.docID = docID
	return s.generation
}

func (s *Session) dropLocked() {
	if err := s.store.DeleteCollection(s.cfg.CollectionName); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("failed to drop collection")
	}
	s.state = StateIdle
	s.docName = ""
	s.docID = ""
	s.chunks = 0
	s.lastErr = nil
	s.updatedAt = time.Now()
}

func (s *Session) advance(gen uint64, state State, chunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return models.ErrSuperseded
	}
	s.state = state
	s.chunks = chunks
	s.updatedAt = time.Now()
	return nil
}

// commit builds the collection and marks the session indexed. The generation
// is checked and the index replaced under one lock so a newer load can never
// be overwritten by an older one.
func (s *Session) commit(ctx context.Context, gen uint64, chunks []string, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return models.ErrSuperseded
	}
	if err := s.store.ReplaceCollection(ctx, s.cfg.CollectionName, chunks, vectors); err != nil {
		return err
	}
	n, err := s.store.Count(s.cfg.CollectionName)
	if err != nil {
		return err
	}
	if n != len(chunks) {
		_ = s.store.DeleteCollection(s.cfg.CollectionName)
		return fmt.Errorf("%w: collection holds %d of %d chunks", models.ErrIndexBuild, n, len(chunks))
	}
	s.state = StateIndexed
	s.chunks = len(chunks)
	s.updatedAt = time.Now()
	return nil
}

// fail records a stage failure. Cancellation by the caller leaves the
// session idle rather than failed.
func (s *Session) fail(ctx context.Context, gen uint64, stage models.Stage, kind, cause error, span trace.Span) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return s.statusLocked(), models.ErrSuperseded
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.dropLocked()
		log.Info().Str("session", s.id).Str("stage", string(stage)).Msg("document load canceled")
		return s.statusLocked(), ctxErr
	}

	err := models.NewStageError(stage, kind, cause)
	observability.RecordError(span, err)
	s.state = StateError
	s.lastErr = err
	s.updatedAt = time.Now()
	log.Error().Err(err).Str("session", s.id).Str("stage", string(stage)).Msg("document load failed")
	return s.statusLocked(), err
}

// Ask answers question from the loaded document.
func (s *Session) Ask(ctx context.Context, question string) (*models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, models.ErrEmptyQuestion
	}

	s.mu.Lock()
	gen, state, docName, docID, lastErr := s.generation, s.state, s.docName, s.docID, s.lastErr
	s.mu.Unlock()

	switch state {
	case StateReady:
	case StateError:
		return nil, fmt.Errorf("%w: %w", models.ErrSessionFailed, lastErr)
	default:
		return nil, models.ErrNotReady
	}

	ctx, span := observability.StartSpan(ctx, "rag.ask",
		attribute.String("session", s.id),
		attribute.String("document", docName),
	)
	defer span.End()

	queryVec, err := embedding.EmbedQuestion(ctx, question, s.embedder)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = models.NewStageError(models.StageQuery, models.ErrEmbeddingService, err)
		observability.RecordError(span, err)
		return nil, err
	}

	matches, err := s.retrieve(ctx, gen, queryVec)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	prompt := BuildPrompt(texts, question)

	genCtx, genSpan := observability.StartSpan(ctx, "rag.generate", attribute.Int("context_chunks", len(matches)))
	content, err := s.generator.Generate(genCtx, prompt)
	observability.RecordError(genSpan, err)
	genSpan.End()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewStageError(models.StageGenerate, models.ErrGenerationService, err)
	}

	s.mu.Lock()
	superseded := gen != s.generation
	s.mu.Unlock()
	if superseded {
		return nil, models.ErrSuperseded
	}

	answer := &models.Answer{
		SessionID:    s.id,
		DocumentID:   docID,
		DocumentName: docName,
		Question:     question,
		Content:      content,
		Context:      matches,
		Prompt:       prompt,
	}
	if s.history != nil {
		if err := s.history.RecordAnswer(ctx, answer); err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("failed to record answer")
		}
	}
	log.Debug().Str("session", s.id).Int("context_chunks", len(matches)).Msg("question answered")
	return answer, nil
}

// retrieve queries the index only if it still holds the document the
// question was admitted for.
func (s *Session) retrieve(ctx context.Context, gen uint64, queryVec []float32) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != StateReady {
		return nil, models.ErrSuperseded
	}
	matches, err := s.store.Query(ctx, s.cfg.CollectionName, queryVec, s.cfg.TopK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewStageError(models.StageRetrieve, kindOf(err), err)
	}
	return matches, nil
}

func kindOf(err error) error {
	for _, kind := range []error{models.ErrDimensionMismatch, models.ErrCollectionNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return models.ErrIndexBuild
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		SessionID:    s.id,
		State:        s.state,
		DocumentName: s.docName,
		DocumentID:   s.docID,
		Chunks:       s.chunks,
		UpdatedAt:    s.updatedAt,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Close drops the document and index. Any in-flight load or question is
// superseded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.dropLocked()
}
