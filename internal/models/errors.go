package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig       = errors.New("invalid config")
	ErrUnreadableDocument  = errors.New("unreadable document")
	ErrEmptyDocument       = errors.New("document contains no text")
	ErrEmbeddingService    = errors.New("embedding service error")
	ErrIndexBuild          = errors.New("index build error")
	ErrGenerationService   = errors.New("generation service error")
	ErrNotReady            = errors.New("no document is ready for questions")
	ErrSessionFailed       = errors.New("document processing failed; upload a new document")
	ErrSuperseded          = errors.New("document was replaced while the request was in flight")
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrUnsupportedDocument = errors.New("unsupported document format")
)

// Stage names a step of the document or question pipeline.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageQuery    Stage = "query"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

// StageError reports which stage failed, the error kind and the original cause.
// errors.Is matches both Kind and anything in the Err chain.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func NewStageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil || errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s stage: %v", e.Stage, errOrKind(e.Err, e.Kind))
	}
	return fmt.Sprintf("%s stage: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func errOrKind(err, kind error) error {
	if err != nil {
		return err
	}
	return kind
}
