package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"docchat-be/internal/model"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/internal/service"
	"docchat-be/pkg/database"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/cascade"
	"docchat-be/pkg/rag/chunker"
	"docchat-be/pkg/rag/ingestion"
	"docchat-be/pkg/rag/retrieval"
	"docchat-be/pkg/vectorstore"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testTopic = "INGEST_DOCUMENT"

// keywordEmbedder maps texts mentioning revenue onto one axis and everything
// else onto another, so similarity is either 1 or 0.
type keywordEmbedder struct {
	fail bool
}

func (e *keywordEmbedder) Generate(_ context.Context, text string, _ string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("429 quota exceeded")
	}
	if strings.Contains(strings.ToLower(text), "revenue") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 0, 1}, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	parts   []string
	prompts []string
}

func (f *fakeLLM) Stream(ctx context.Context, prompt string, _ string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	parts := append([]string(nil), f.parts...)
	f.mu.Unlock()

	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, p := range parts {
			select {
			case chunks <- p:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

func (f *fakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type harness struct {
	uowFactory unitofwork.RepositoryFactory
	jobs       *memory.IngestionJobRepository
	store      *vectorstore.MemoryStore
	embedder   *keywordEmbedder
	llm        *fakeLLM
	pipeline   *ingestion.Pipeline
	uploadDir  string
	documents  service.IDocumentService
	chat       service.IChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := logger.NewNop()
	h := &harness{
		uowFactory: unitofwork.NewRepositoryFactory(db),
		jobs:       memory.NewIngestionJobRepository(),
		store:      vectorstore.NewMemoryStore(3),
		embedder:   &keywordEmbedder{},
		llm:        &fakeLLM{parts: []string{"- Revenue ", "grew 20%."}},
		uploadDir:  t.TempDir(),
	}

	gateway := embedding.NewGateway(h.embedder, embedding.GatewayConfig{
		Dimension:     3,
		QueryAttempts: 3,
		QueryBackoff:  time.Millisecond,
	}, log)

	h.pipeline = ingestion.NewPipeline(chunker.NewDefault(), gateway, h.store, h.jobs, nil, ingestion.PipelineConfig{}, log)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	consumer, err := service.NewIngestionConsumerService(pubSub, testTopic, h.pipeline, 2, log)
	require.NoError(t, err)
	require.NoError(t, consumer.Consume(ctx))
	t.Cleanup(consumer.Close)

	publisher := service.NewPublisherService(testTopic, pubSub)
	h.documents = service.NewDocumentService(h.uowFactory, publisher, h.pipeline, h.jobs, h.uploadDir, log)

	registry := llm.NewRegistry()
	registry.Register("fake", h.llm)
	generator := cascade.New(registry, []llm.Candidate{{Provider: "fake", Model: "m1"}}, log)
	retriever := retrieval.NewRetriever(gateway, h.store, retrieval.DefaultConfig(), log)
	h.chat = service.NewChatService(h.uowFactory, retriever, generator, log)

	return h
}

func collect(stream *service.ChatStream) string {
	var sb strings.Builder
	for f := range stream.Fragments() {
		sb.WriteString(f)
	}
	return sb.String()
}
