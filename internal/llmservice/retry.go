package llmservice

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/config"
)

// Retrier re-runs a failing remote call with exponential backoff. Caller
// cancellation and client errors stop it immediately.
type Retrier struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewRetrier(cfg config.RetryConfig) *Retrier {
	return &Retrier{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

func retry[T any](ctx context.Context, r *Retrier, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		res, err := fn()
		if err != nil && !isRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(r.MaxAttempts, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("op", op).Dur("retry_in", next).Msg("remote call failed, retrying")
		}),
	)
}

// isRetryable reports whether err looks transient: timeouts, rate limits and
// server-side failures.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	code, ok := statusCode(err.Error())
	if !ok {
		return true
	}
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusConflict,
		code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}

// statusCodeRe matches the HTTP status in client errors, either after
// "status code" ("API returned unexpected status code: 503: ...") or
// leading the message ("401 Unauthorized").
var statusCodeRe = regexp.MustCompile(`(?i)(?:status(?: code)?[:=]?\s*|^)([1-5]\d{2})\b`)

func statusCode(msg string) (int, bool) {
	m := statusCodeRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

// RetryingEmbedder wraps an embedder so every request is retried on
// transient failures.
type RetryingEmbedder struct {
	inner   embeddings.Embedder
	retrier *Retrier
}

func NewRetryingEmbedder(inner embeddings.Embedder, r *Retrier) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, retrier: r}
}

func (e *RetryingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return retry(ctx, e.retrier, "embed_documents", func() ([][]float32, error) {
		return e.inner.EmbedDocuments(ctx, texts)
	})
}

func (e *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return retry(ctx, e.retrier, "embed_query", func() ([]float32, error) {
		return e.inner.EmbedQuery(ctx, text)
	})
}

// RetryingGenerator wraps a Generator with the same policy.
type RetryingGenerator struct {
	inner   Generator
	retrier *Retrier
}

func NewRetryingGenerator(inner Generator, r *Retrier) *RetryingGenerator {
	return &RetryingGenerator{inner: inner, retrier: r}
}

func (g *RetryingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return retry(ctx, g.retrier, "generate", func() (string, error) {
		return g.inner.Generate(ctx, prompt)
	})
}
