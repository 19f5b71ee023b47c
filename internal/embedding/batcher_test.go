package embedding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"document-qa/internal/models"
)

// fakeEmbedder encodes each text's numeric suffix into a 2-d vector and
// records the size of every call.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   []int
	failOn  int // 1-based call number to fail, 0 never
	short   bool
	dropOne bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, len(texts))
	call := len(f.calls)
	f.mu.Unlock()

	if f.failOn != 0 && call == f.failOn {
		return nil, errors.New("service unavailable")
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		n, _ := strconv.Atoi(t[len("text-"):])
		out = append(out, []float32{float32(n), 1})
	}
	if f.dropOne {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestEmbedAll_BatchSizes(t *testing.T) {
	f := &fakeEmbedder{}
	b := NewBatcher(50, 1)

	var progress []float64
	b.Progress = func(done float64) { progress = append(progress, done) }

	got, err := b.EmbedAll(context.Background(), texts(120), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(f.calls, []int{50, 50, 20}) {
		t.Errorf("expected calls [50 50 20], got %v", f.calls)
	}
	if len(got) != 120 {
		t.Fatalf("expected 120 embeddings, got %d", len(got))
	}
	for i, v := range got {
		if v[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %v", i, v)
		}
	}
	if len(progress) != 3 || progress[2] != 1.0 {
		t.Errorf("unexpected progress %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Errorf("progress not monotonic: %v", progress)
		}
	}
}

func TestEmbedAll_OutputLength(t *testing.T) {
	const n = 7
	for _, size := range []int{1, n, n + 5} {
		f := &fakeEmbedder{}
		got, err := NewBatcher(size, 1).EmbedAll(context.Background(), texts(n), f)
		if err != nil {
			t.Fatalf("batch %d: unexpected error: %v", size, err)
		}
		if len(got) != n {
			t.Errorf("batch %d: expected %d embeddings, got %d", size, n, len(got))
		}
		wantCalls := (n + size - 1) / size
		if len(f.calls) != wantCalls {
			t.Errorf("batch %d: expected %d calls, got %d", size, wantCalls, len(f.calls))
		}
	}
}

func TestEmbedAll_Empty(t *testing.T) {
	f := &fakeEmbedder{}
	got, err := NewBatcher(50, 1).EmbedAll(context.Background(), nil, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 || len(f.calls) != 0 {
		t.Errorf("expected no output and no calls, got %d/%d", len(got), len(f.calls))
	}
}

func TestEmbedAll_InvalidBatchSize(t *testing.T) {
	f := &fakeEmbedder{}
	_, err := NewBatcher(0, 1).EmbedAll(context.Background(), texts(3), f)
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no calls, got %d", len(f.calls))
	}
}

func TestEmbedAll_FailureReturnsNothing(t *testing.T) {
	f := &fakeEmbedder{failOn: 2}
	got, err := NewBatcher(50, 1).EmbedAll(context.Background(), texts(120), f)
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Errorf("expected ErrEmbeddingService, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %d vectors", len(got))
	}
}

func TestEmbedAll_WrongCount(t *testing.T) {
	f := &fakeEmbedder{dropOne: true}
	_, err := NewBatcher(10, 1).EmbedAll(context.Background(), texts(10), f)
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Errorf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestEmbedAll_ConcurrentKeepsOrder(t *testing.T) {
	f := &fakeEmbedder{}
	got, err := NewBatcher(3, 4).EmbedAll(context.Background(), texts(31), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range got {
		if v[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %v", i, v)
		}
	}
	if len(f.calls) != 11 {
		t.Errorf("expected 11 calls, got %d", len(f.calls))
	}
}

func TestEmbedAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBatcher(5, 1).EmbedAll(ctx, texts(10), &fakeEmbedder{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEmbedQuestion(t *testing.T) {
	f := &fakeEmbedder{}
	v, err := EmbedQuestion(context.Background(), "text-9", f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v[0] != 9 || !reflect.DeepEqual(f.calls, []int{1}) {
		t.Errorf("unexpected vector %v or calls %v", v, f.calls)
	}

	_, err = EmbedQuestion(context.Background(), "text-1", &fakeEmbedder{failOn: 1})
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Errorf("expected ErrEmbeddingService, got %v", err)
	}
}
