package prompt

import (
	"strings"
	"testing"

	"docchat-be/pkg/rag"

	"github.com/stretchr/testify/assert"
)

func TestBuild_WithContext(t *testing.T) {
	b := NewGroundingBuilder([]rag.Match{
		{Filename: "report.pdf", Text: "Revenue grew 12%."},
		{Filename: "report.pdf", Text: "Costs fell."},
	}, "How did revenue change?")

	got := b.Build()

	assert.True(t, strings.HasPrefix(got, groundedInstruction))
	assert.Contains(t, got, "Source (report.pdf): Revenue grew 12%.\n\nSource (report.pdf): Costs fell.\n\n")
	assert.Less(t, strings.Index(got, "Revenue"), strings.Index(got, "Costs"))
	assert.True(t, strings.HasSuffix(got, "Question: How did revenue change?\nAnswer concisely with bullets."))
}

func TestBuild_WithoutContext(t *testing.T) {
	b := NewGroundingBuilder(nil, "Anything?")

	got := b.Build()

	assert.False(t, b.HasContext())
	assert.Contains(t, got, "no relevant content was found")
	assert.NotContains(t, got, "Source (")
	assert.Contains(t, got, "Question: Anything?")
}
