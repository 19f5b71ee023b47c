package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

var errPrecomputedOnly = errors.New("index accepts precomputed embeddings only")

// IndexStore keeps one chromem-go in-memory database and the chunk
// collections built in it. Replacing a collection and querying it are
// serialized by mu.
type IndexStore struct {
	mu   sync.RWMutex
	db   *chromem.DB
	dims map[string]int
}

func NewIndexStore() *IndexStore {
	return &IndexStore{
		db:   chromem.NewDB(),
		dims: make(map[string]int),
	}
}

// noEmbedding is handed to chromem so it never reaches out to a model on its
// own; every document and query arrives with its vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// ReplaceCollection drops any collection called name and rebuilds it from the
// given chunks and their embeddings, identified as chunk_<i>. On failure no
// collection of that name remains.
func (s *IndexStore) ReplaceCollection(ctx context.Context, name string, chunks []string, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks but %d embeddings", models.ErrIndexBuild, len(chunks), len(embeddings))
	}
	dim, err := checkDimensions(embeddings)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexBuild, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteLocked(name); err != nil {
		return fmt.Errorf("%w: drop previous collection: %w", models.ErrIndexBuild, err)
	}

	col, err := s.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: create collection: %w", models.ErrIndexBuild, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, text := range chunks {
		docs[i] = chromem.Document{
			ID:        models.ChunkID(i),
			Content:   text,
			Metadata:  map[string]string{models.ChunkIndexKey: strconv.Itoa(i)},
			Embedding: embeddings[i],
		}
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			_ = s.db.DeleteCollection(name)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: add documents: %w", models.ErrIndexBuild, err)
		}
	}
	s.dims[name] = dim

	log.Debug().Str("collection", name).Int("chunks", len(docs)).Int("dim", dim).Msg("collection replaced")
	return nil
}

// checkDimensions returns the shared vector length, or an error when a vector
// is empty or differs from the first one.
func checkDimensions(embeddings [][]float32) (int, error) {
	if len(embeddings) == 0 {
		return 0, nil
	}
	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) == 0 {
			return 0, fmt.Errorf("embedding %d is empty", i)
		}
		if len(e) != dim {
			return 0, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", models.ErrDimensionMismatch, i, len(e), dim)
		}
	}
	return dim, nil
}

// Query returns up to topK chunks ranked by cosine similarity to
// queryEmbedding, most similar first. Equal scores keep chunk order. An empty
// collection yields no matches.
func (s *IndexStore) Query(ctx context.Context, name string, queryEmbedding []float32, topK int) ([]models.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfig, topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}
	count := col.Count()
	if count == 0 {
		return []models.Match{}, nil
	}
	if dim := s.dims[name]; len(queryEmbedding) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s has %d", models.ErrDimensionMismatch, len(queryEmbedding), name, dim)
	}

	// Score every chunk so ties can be ordered here rather than by the
	// backend's heap.
	results, err := col.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       count,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("query collection %s: %w", name, err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			ID:         r.ID,
			Index:      chunkIndex(r),
			Text:       r.Content,
			Similarity: r.Similarity,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		si, sj := rankScore(matches[i].Similarity), rankScore(matches[j].Similarity)
		if si != sj {
			return si > sj
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// rankScore orders NaN (from zero vectors) below every real score.
func rankScore(sim float32) float64 {
	if math.IsNaN(float64(sim)) {
		return math.Inf(-1)
	}
	return float64(sim)
}

func chunkIndex(r chromem.Result) int {
	if v, ok := r.Metadata[models.ChunkIndexKey]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	i, err := strconv.Atoi(strings.TrimPrefix(r.ID, models.ChunkIDPrefix))
	if err != nil {
		return math.MaxInt
	}
	return i
}

// DeleteCollection removes the named collection. Deleting a collection that
// does not exist is not an error.
func (s *IndexStore) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(name)
}

func (s *IndexStore) deleteLocked(name string) error {
	delete(s.dims, name)
	if s.db.GetCollection(name, noEmbedding) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

// Count returns the number of chunks stored in the named collection.
func (s *IndexStore) Count(name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return 0, fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}
	return col.Count(), nil
}
