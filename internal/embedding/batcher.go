package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/models"
)

// ProgressFunc receives the fraction of batches completed, in (0, 1].
type ProgressFunc func(done float64)

// Batcher embeds a sequence of texts in fixed-size batches.
type Batcher struct {
	BatchSize int
	// Concurrency caps the number of batches in flight. Values below 2 run
	// the batches one after another.
	Concurrency int
	Progress    ProgressFunc
}

func NewBatcher(batchSize, concurrency int) *Batcher {
	return &Batcher{BatchSize: batchSize, Concurrency: concurrency}
}

// EmbedAll returns one embedding per text, in input order. It either returns
// every vector or an error; partial results are never handed back.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, embedder embeddings.Embedder) ([][]float32, error) {
	if b.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrInvalidConfig, b.BatchSize)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	batches := (len(texts) + b.BatchSize - 1) / b.BatchSize

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if b.Progress != nil {
			b.Progress(float64(done) / float64(batches))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Concurrency, 1))

	for n := 0; n < batches; n++ {
		start := n * b.BatchSize
		end := min(start+b.BatchSize, len(texts))
		batch := texts[start:end]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log.Debug().Int("batch", n).Int("size", len(batch)).Msg("embedding batch")

			vectors, err := embedder.EmbedDocuments(gctx, batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", n, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("batch %d: expected %d embeddings, got %d", n, len(batch), len(vectors))
			}
			copy(out[start:end], vectors)
			report()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	return out, nil
}

// EmbedQuestion embeds a single text as a one-item batch, so questions and
// chunks go through the same model call.
func EmbedQuestion(ctx context.Context, question string, embedder embeddings.Embedder) ([]float32, error) {
	vectors, err := embedder.EmbedDocuments(ctx, []string{question})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: expected one embedding, got %d", models.ErrEmbeddingService, len(vectors))
	}
	return vectors[0], nil
}
