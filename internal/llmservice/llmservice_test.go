package llmservice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/models"
)

type fakeModel struct {
	reply     string
	err       error
	prompts   []string
	maxTokens int
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.maxTokens = opts.MaxTokens
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangchainGenerator_Generate(t *testing.T) {
	m := &fakeModel{reply: "  Paris.\n"}
	g := NewLangchainGenerator(m, 600)

	got, err := g.Generate(context.Background(), "Context:\n- x\n\nQuestion:\ny")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Paris." {
		t.Errorf("expected trimmed answer, got %q", got)
	}
	if m.maxTokens != 600 {
		t.Errorf("expected max tokens 600, got %d", m.maxTokens)
	}
	if len(m.prompts) != 1 || m.prompts[0] != "Context:\n- x\n\nQuestion:\ny" {
		t.Errorf("prompt not passed through: %q", m.prompts)
	}
}

func TestLangchainGenerator_Errors(t *testing.T) {
	g := NewLangchainGenerator(&fakeModel{err: errors.New("boom")}, 10)
	if _, err := g.Generate(context.Background(), "p"); !errors.Is(err, models.ErrGenerationService) {
		t.Errorf("expected ErrGenerationService, got %v", err)
	}

	g = NewLangchainGenerator(&fakeModel{err: fmt.Errorf("request: %w", context.Canceled)}, 10)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, context.Canceled) || errors.Is(err, models.ErrGenerationService) {
		t.Errorf("expected bare cancellation, got %v", err)
	}
}

type flakyGenerator struct {
	failures int
	err      error
	calls    int
}

func (g *flakyGenerator) Generate(context.Context, string) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", g.err
	}
	return "ok", nil
}

func fastRetrier(attempts int) *Retrier {
	return &Retrier{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryingGenerator_RecoversFromTransientErrors(t *testing.T) {
	inner := &flakyGenerator{failures: 2, err: errors.New("503 Service Unavailable")}
	got, err := NewRetryingGenerator(inner, fastRetrier(3)).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || inner.calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", got, inner.calls)
	}
}

func TestRetryingGenerator_GivesUp(t *testing.T) {
	cause := fmt.Errorf("%w: 502 Bad Gateway", models.ErrGenerationService)
	inner := &flakyGenerator{failures: 10, err: cause}
	_, err := NewRetryingGenerator(inner, fastRetrier(3)).Generate(context.Background(), "p")
	if !errors.Is(err, models.ErrGenerationService) {
		t.Errorf("expected ErrGenerationService, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryingGenerator_ClientErrorIsPermanent(t *testing.T) {
	inner := &flakyGenerator{failures: 10, err: errors.New("401 Unauthorized")}
	_, err := NewRetryingGenerator(inner, fastRetrier(5)).Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("expected a single attempt, got %d", inner.calls)
	}
}

type flakyEmbedder struct {
	failures int
	calls    int
}

func (e *flakyEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, context.DeadlineExceeded
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestRetryingEmbedder(t *testing.T) {
	inner := &flakyEmbedder{failures: 1}
	e := NewRetryingEmbedder(inner, fastRetrier(3))

	got, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || inner.calls != 2 {
		t.Errorf("expected 2 vectors after 2 calls, got %d after %d", len(got), inner.calls)
	}

	if _, err := e.EmbedQuery(context.Background(), "q"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		msg    string
		want   int
		wantOK bool
	}{
		{"API returned unexpected status code: 503: retry after 4000ms", 503, true},
		{"status code 404", 404, true},
		{"401 Unauthorized", 401, true},
		{"dial tcp: timeout after 4000ms", 0, false},
		{"batch of 400 chunks failed", 0, false},
	}
	for _, tt := range tests {
		got, ok := statusCode(tt.msg)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("statusCode(%q) = %d, %v, want %d, %v", tt.msg, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
		{context.DeadlineExceeded, true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("500 Internal Server Error"), true},
		{errors.New("400 Bad Request"), false},
		{errors.New("404 model not found"), false},
		{errors.New("connection reset by peer"), true},
		{errors.New("API returned unexpected status code: 503: upstream overloaded, retry after 4000ms"), true},
		{errors.New("API returned unexpected status code: 401: invalid api key"), false},
		{fmt.Errorf("%w: API returned unexpected status code: 429: slow down", models.ErrGenerationService), true},
		{errors.New("request failed after 404 bytes were read"), true},
		{errors.New("422 Unprocessable Entity"), false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
