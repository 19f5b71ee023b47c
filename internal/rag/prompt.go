package rag

import (
	"strings"

	"document-qa/internal/models"
)

// BuildPrompt renders the retrieved chunks, in the order given, and the
// question into the generation prompt:
//
//	Context:
//	- <chunk 1>
//	- <chunk 2>
//
//	Question:
//	<question>
func BuildPrompt(chunks []string, question string) string {
	var sb strings.Builder
	sb.WriteString(models.ContextHeader)
	sb.WriteString("\n")
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(models.ContextSeparator)
		}
		sb.WriteString(models.ContextBullet)
		sb.WriteString(c)
	}
	sb.WriteString("\n\n")
	sb.WriteString(models.QuestionHeader)
	sb.WriteString("\n")
	sb.WriteString(question)
	return sb.String()
}
