package loader

import (
	"context"
	"testing"

	"docchat-be/pkg/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestAssemble_NormalisesZeroBasedPages(t *testing.T) {
	docs := []schema.Document{
		{PageContent: "first", Metadata: map[string]any{"page": 0}},
		{PageContent: "second", Metadata: map[string]any{"page": 1}},
	}

	out := Assemble(docs, 0)

	assert.Equal(t, "first\n\nsecond", out.Text)
	require.Len(t, out.Pages, 2)
	assert.Equal(t, rag.PageBoundary{Page: 1, Start: 0, End: 7}, out.Pages[0])
	assert.Equal(t, rag.PageBoundary{Page: 2, Start: 7, End: 13}, out.Pages[1])
}

func TestAssemble_OneBasedAndMissingMetadata(t *testing.T) {
	docs := []schema.Document{
		{PageContent: "a", Metadata: map[string]any{"page": 1}},
		{PageContent: "b", Metadata: map[string]any{"page": float64(2)}},
		{PageContent: "c"},
	}

	out := Assemble(docs, 1)

	assert.Equal(t, 1, out.Pages[0].Page)
	assert.Equal(t, 2, out.Pages[1].Page)
	assert.Equal(t, 3, out.Pages[2].Page)
}

func TestLoad_Text(t *testing.T) {
	out, err := Load(context.Background(), "notes.TXT", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, 1, out.Pages[0].Page)
}

func TestLoad_EmptyText(t *testing.T) {
	_, err := Load(context.Background(), "blank.txt", []byte("  \n "))
	assert.ErrorIs(t, err, rag.ErrNoContent)
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(context.Background(), "slides.pptx", []byte("x"))
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
	assert.False(t, IsSupported("slides.pptx"))
	assert.True(t, IsSupported("report.PDF"))
}

func TestLoad_CorruptPDF(t *testing.T) {
	_, err := Load(context.Background(), "broken.pdf", []byte("this is definitely not a pdf document at all"))
	assert.ErrorIs(t, err, rag.ErrExtraction)
}
