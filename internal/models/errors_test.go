package models

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStageError_MatchesKindAndCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewStageError(StageEmbed, ErrEmbeddingService, cause)

	if !errors.Is(err, ErrEmbeddingService) {
		t.Error("expected error to match its kind")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected error to match its cause")
	}
	if errors.Is(err, ErrIndexBuild) {
		t.Error("did not expect error to match an unrelated kind")
	}

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageEmbed {
		t.Fatalf("expected StageError with stage embed, got %v", err)
	}
	if !strings.Contains(err.Error(), "embed stage") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestStageError_NoDuplicateKindInMessage(t *testing.T) {
	err := NewStageError(StageChunk, ErrEmptyDocument, ErrEmptyDocument)
	if got := strings.Count(err.Error(), ErrEmptyDocument.Error()); got != 1 {
		t.Errorf("expected kind once in %q, got %d", err.Error(), got)
	}

	err = NewStageError(StageChunk, ErrEmptyDocument, nil)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Error("expected nil-cause error to match kind")
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID(0); got != "chunk_0" {
		t.Errorf("expected chunk_0, got %s", got)
	}
	if got := ChunkID(119); got != "chunk_119" {
		t.Errorf("expected chunk_119, got %s", got)
	}
}
