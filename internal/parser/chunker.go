package parser

import (
	"fmt"
	"strings"

	"document-qa/internal/models"
)

// ChunkWords splits text on whitespace and groups the words into consecutive
// windows of exactly chunkSize words; the final window holds the remainder.
// Text without any words yields an empty slice.
func ChunkWords(text string, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, chunkSize)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	chunks := make([]string, 0, (len(words)+chunkSize-1)/chunkSize)
	for start := 0; start < len(words); start += chunkSize {
		end := min(start+chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks, nil
}
