package ingestion_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/pkg/events"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/chunker"
	"docchat-be/pkg/rag/ingestion"
	"docchat-be/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu     sync.Mutex
	calls  int
	failAt int
}

func (e *countingEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAt > 0 && e.calls == e.failAt {
		return nil, errors.New("quota")
	}
	return []float32{1, float32(len(text)), 0}, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.EventType())
	return nil
}

type fixture struct {
	pipeline  *ingestion.Pipeline
	store     *vectorstore.MemoryStore
	tracker   *memory.IngestionJobRepository
	embedder  *countingEmbedder
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     vectorstore.NewMemoryStore(3),
		tracker:   memory.NewIngestionJobRepository(),
		embedder:  &countingEmbedder{},
		publisher: &recordingPublisher{},
	}
	f.pipeline = ingestion.NewPipeline(
		chunker.NewDefault(),
		f.embedder,
		f.store,
		f.tracker,
		f.publisher,
		ingestion.PipelineConfig{BatchSize: 2},
		logger.NewNop(),
	)
	return f
}

var doc = rag.Document{OwnerKey: "u1", Filename: "notes.txt"}

func TestRun_IndexesDocument(t *testing.T) {
	f := newFixture(t)
	job := ingestion.NewJob("s1", doc, "")

	status, err := f.pipeline.Run(context.Background(), job, []byte(strings.Repeat("a", 2500)))

	require.NoError(t, err)
	assert.Equal(t, ingestion.StateComplete, status.State)
	assert.Equal(t, 3, status.Chunks)
	assert.Equal(t, 3, status.Committed)
	assert.Equal(t, 3, f.store.Len())
	assert.Equal(t, []string{events.TypeIngestionCompleted}, f.publisher.types)

	tracked, ok := f.tracker.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, ingestion.StateComplete, tracked.State)
}

func TestRun_ReingestOverwritesAndDropsStaleChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, ingestion.NewJob("s1", doc, ""), []byte(strings.Repeat("a", 4000)))
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.Len())

	_, err = f.pipeline.Run(ctx, ingestion.NewJob("s2", doc, ""), []byte(strings.Repeat("b", 1500)))
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Len())

	matches, err := f.store.Query(ctx, []float32{1, 0, 0}, 10, vectorstore.ScopeOf(doc))
	require.NoError(t, err)
	for _, m := range matches {
		assert.True(t, strings.HasPrefix(m.Text, "b"))
	}
}

func TestRun_EmptyDocumentFails(t *testing.T) {
	f := newFixture(t)
	job := ingestion.NewJob("s1", doc, "")

	status, err := f.pipeline.Run(context.Background(), job, []byte("   "))

	assert.ErrorIs(t, err, rag.ErrNoContent)
	assert.Equal(t, ingestion.StateFailed, status.State)
	assert.NotEmpty(t, status.Error)
	assert.Zero(t, f.embedder.calls)
	assert.Equal(t, []string{events.TypeIngestionFailed}, f.publisher.types)
}

func TestRun_EmbeddingFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.embedder.failAt = 2
	job := ingestion.NewJob("s1", doc, "")

	status, err := f.pipeline.Run(context.Background(), job, []byte(strings.Repeat("a", 2500)))

	require.Error(t, err)
	assert.Equal(t, ingestion.StateFailed, status.State)
	assert.Equal(t, 3, status.Chunks)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, 2, f.embedder.calls)
}

func TestRun_WaitObservesCompletion(t *testing.T) {
	f := newFixture(t)
	job := ingestion.NewJob("s1", doc, "")
	f.pipeline.Accept(job)

	go func() {
		_, _ = f.pipeline.Run(context.Background(), job, []byte("short text"))
	}()

	status, err := f.tracker.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StateComplete, status.State)
	assert.Equal(t, 1, status.Chunks)
}

func TestNewJob_UniqueIDs(t *testing.T) {
	a := ingestion.NewJob("s", doc, "")
	b := ingestion.NewJob("s", doc, "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, doc, a.Document())
}
