package loader

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docchat-be/pkg/rag"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

const pageSeparator = "\n\n"

// Extracted is a document flattened to one string plus the rune range of
// every page inside it.
type Extracted struct {
	Text  string
	Pages []rag.PageBoundary
}

type format struct {
	// pageBase is the number the underlying loader uses for its first page.
	pageBase int
	load     func(ctx context.Context, data []byte) ([]schema.Document, error)
}

var formats = map[string]format{
	".pdf": {
		pageBase: 1,
		load: func(ctx context.Context, data []byte) ([]schema.Document, error) {
			return documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
		},
	},
	".txt": {
		pageBase: 1,
		load: func(ctx context.Context, data []byte) ([]schema.Document, error) {
			return documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
		},
	},
}

func IsSupported(filename string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func SupportedExtensions() []string {
	return []string{".pdf", ".txt"}
}

// Load extracts text by file extension. Pages in the result are 1-indexed
// whatever the loader reports.
func Load(ctx context.Context, filename string, data []byte) (*Extracted, error) {
	f, ok := formats[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", rag.ErrInvalidInput, filepath.Ext(filename))
	}

	docs, err := f.load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rag.ErrExtraction, filename, err)
	}

	out := Assemble(docs, f.pageBase)
	if strings.TrimSpace(out.Text) == "" {
		return nil, rag.ErrNoContent
	}
	return out, nil
}

// Assemble joins per-page documents. The separator after a page counts as
// part of that page.
func Assemble(docs []schema.Document, pageBase int) *Extracted {
	var sb strings.Builder
	pages := make([]rag.PageBoundary, 0, len(docs))
	offset := 0

	for i, doc := range docs {
		content := doc.PageContent
		if i < len(docs)-1 {
			content += pageSeparator
		}
		n := len([]rune(content))
		sb.WriteString(content)

		pages = append(pages, rag.PageBoundary{
			Page:  pageNumber(doc, i, pageBase),
			Start: offset,
			End:   offset + n,
		})
		offset += n
	}

	return &Extracted{Text: sb.String(), Pages: pages}
}

func pageNumber(doc schema.Document, index, pageBase int) int {
	raw, ok := doc.Metadata["page"]
	if !ok {
		return index + 1
	}

	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	default:
		return index + 1
	}
	return n - pageBase + 1
}
