package models

import "fmt"

const (
	ChunkIDPrefix     = "chunk_"
	ChunkIndexKey     = "chunk_index"
	ContextHeader     = "Context:"
	QuestionHeader    = "Question:"
	ContextBullet     = "- "
	ContextSeparator  = "\n"
	DefaultCollection = "pdf_chunks"
)

// ChunkID returns the stable identity of the chunk at position i.
func ChunkID(i int) string {
	return fmt.Sprintf("%s%d", ChunkIDPrefix, i)
}
