package prompt

import (
	"strings"

	"docchat-be/pkg/rag"
)

const (
	noContextInstruction = "You are a helpful assistant. The user asked a question, but no relevant content was found in the uploaded document. Politely explain that."
	groundedInstruction  = "You are an expert analyst. Answer based ONLY on the following context:"
)

// GroundingBuilder builds the single prompt sent to the generation cascade.
type GroundingBuilder struct {
	matches []rag.Match
	query   string
}

func NewGroundingBuilder(matches []rag.Match, query string) *GroundingBuilder {
	return &GroundingBuilder{matches: matches, query: query}
}

// Context renders matches as "Source (<filename>): <text>" blocks in the
// order given.
func (b *GroundingBuilder) Context() string {
	var sb strings.Builder
	for _, m := range b.matches {
		sb.WriteString("Source (")
		sb.WriteString(m.Filename)
		sb.WriteString("): ")
		sb.WriteString(m.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (b *GroundingBuilder) HasContext() bool {
	return len(b.matches) > 0
}

func (b *GroundingBuilder) Build() string {
	var prompt strings.Builder

	if b.HasContext() {
		prompt.WriteString(groundedInstruction)
		prompt.WriteString("\n\n")
		prompt.WriteString(b.Context())
	} else {
		prompt.WriteString(noContextInstruction)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Question: ")
	prompt.WriteString(b.query)
	prompt.WriteString("\nAnswer concisely with bullets.")

	return prompt.String()
}
