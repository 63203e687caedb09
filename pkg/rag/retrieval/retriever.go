package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/tracer"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/prompt"
	"docchat-be/pkg/vectorstore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	TopK      int
	Threshold float64
}

func DefaultConfig() Config {
	return Config{TopK: 5, Threshold: 0.30}
}

// Result is everything the chat layer needs before generation starts.
type Result struct {
	Matches []rag.Match
	Sources []rag.Source
	Prompt  string
}

// Retriever turns a question into a grounded prompt for one document.
type Retriever struct {
	embedder QueryEmbedder
	store    vectorstore.Store
	config   Config
	logger   logger.ILogger
}

func NewRetriever(embedder QueryEmbedder, store vectorstore.Store, config Config, log logger.ILogger) *Retriever {
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Retriever{embedder: embedder, store: store, config: config, logger: log}
}

func (r *Retriever) Retrieve(ctx context.Context, doc rag.Document, question string) (*Result, error) {
	ctx, span := tracer.Tracer("retrieval").Start(ctx, "Retriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.owner_key", doc.OwnerKey),
		attribute.String("rag.filename", doc.Filename),
	)

	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	raw, err := r.store.Query(ctx, vec, r.config.TopK, vectorstore.ScopeOf(doc))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, rag.ErrVectorStore) {
			err = fmt.Errorf("%w: %w", rag.ErrVectorStore, err)
		}
		return nil, err
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Score > raw[j].Score })
	matches := vectorstore.FilterRelevant(raw, r.config.Threshold)

	r.logger.Debug("RETRIEVAL", "Vector search finished", map[string]interface{}{
		"filename": doc.Filename,
		"raw":      len(raw),
		"kept":     len(matches),
	})
	span.SetAttributes(attribute.Int("rag.matches", len(matches)))

	return &Result{
		Matches: matches,
		Sources: DedupeSources(matches),
		Prompt:  prompt.NewGroundingBuilder(matches, question).Build(),
	}, nil
}

// DedupeSources lists (filename, page) pairs in first-seen order.
func DedupeSources(matches []rag.Match) []rag.Source {
	sources := make([]rag.Source, 0, len(matches))
	seen := make(map[rag.Source]bool, len(matches))
	for _, m := range matches {
		s := rag.Source{Filename: m.Filename, Page: m.Page}
		if seen[s] {
			continue
		}
		seen[s] = true
		sources = append(sources, s)
	}
	return sources
}
