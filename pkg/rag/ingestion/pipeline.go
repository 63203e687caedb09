package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/tracer"
	"docchat-be/pkg/events"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/chunker"
	"docchat-be/pkg/rag/loader"
	"docchat-be/pkg/vectorstore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	splitter  *chunker.Splitter
	embedder  DocumentEmbedder
	store     vectorstore.Store
	tracker   Tracker
	events    events.Publisher
	batchSize int
	logger    logger.ILogger
}

type PipelineConfig struct {
	BatchSize int
}

func NewPipeline(
	splitter *chunker.Splitter,
	embedder DocumentEmbedder,
	store vectorstore.Store,
	tracker Tracker,
	publisher events.Publisher,
	cfg PipelineConfig,
	log logger.ILogger,
) *Pipeline {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = vectorstore.DefaultBatchSize
	}
	return &Pipeline{
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		tracker:   tracker,
		events:    publisher,
		batchSize: cfg.BatchSize,
		logger:    log,
	}
}

// Accept records a job as RECEIVED before it is queued.
func (p *Pipeline) Accept(job Job) Status {
	return p.transition(Status{JobID: job.ID, SessionID: job.SessionID, Filename: job.Filename}, StateReceived)
}

// Run indexes one document end to end. A failure is terminal for the job.
func (p *Pipeline) Run(ctx context.Context, job Job, data []byte) (Status, error) {
	ctx, span := tracer.Tracer("ingestion").Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingestion.job_id", job.ID),
		attribute.String("rag.filename", job.Filename),
	)

	status, ok := p.tracker.Get(job.ID)
	if !ok {
		status = p.Accept(job)
	}

	status, err := p.run(ctx, job, data, status)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return p.Fail(ctx, job, status, err), err
	}

	p.logger.Info("INGESTION", "Document indexed", map[string]interface{}{
		"job_id":   job.ID,
		"filename": job.Filename,
		"chunks":   status.Chunks,
	})
	p.publish(ctx, events.TypeIngestionCompleted, status)
	return status, nil
}

func (p *Pipeline) run(ctx context.Context, job Job, data []byte, status Status) (Status, error) {
	doc := job.Document()

	status = p.transition(status, StateExtracting)
	extracted, err := loader.Load(ctx, job.Filename, data)
	if err != nil {
		return status, err
	}

	status = p.transition(status, StateChunking)
	chunks, err := p.splitter.Split(extracted.Text, extracted.Pages)
	if err != nil {
		return status, err
	}
	status.Chunks = len(chunks)

	status = p.transition(status, StateEmbeddingAndUpserting)
	records := make([]vectorstore.Record, 0, len(chunks))
	for _, c := range chunks {
		vec, err := p.embedder.EmbedDocument(ctx, c.Text)
		if err != nil {
			return status, fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		records = append(records, vectorstore.Record{
			ID:         doc.ChunkID(c.Index),
			OwnerKey:   doc.OwnerKey,
			Filename:   doc.Filename,
			ChunkIndex: c.Index,
			Page:       c.Page,
			Text:       c.Text,
			Vector:     vec,
			Metadata: map[string]any{
				"text":     c.Text,
				"page":     c.Page,
				"filename": doc.Filename,
				"owner_id": doc.OwnerKey,
			},
		})
	}

	committed, err := vectorstore.UpsertBatched(ctx, p.store, records, p.batchSize)
	status.Committed = committed
	if err != nil {
		return status, err
	}

	// Chunks beyond the new count belong to an older, longer version.
	removed, err := p.store.DeleteStale(ctx, vectorstore.ScopeOf(doc), len(chunks))
	if err != nil {
		return status, err
	}
	if removed > 0 {
		p.logger.Info("INGESTION", "Removed stale chunks", map[string]interface{}{
			"filename": doc.Filename,
			"removed":  removed,
		})
	}

	return p.transition(status, StateComplete), nil
}

// Fail marks the job FAILED. Used for errors raised before Run, such as an
// unreadable upload.
func (p *Pipeline) Fail(ctx context.Context, job Job, status Status, cause error) Status {
	if status.JobID == "" {
		status = Status{JobID: job.ID, SessionID: job.SessionID, Filename: job.Filename}
	}
	status.Error = cause.Error()
	status = p.transition(status, StateFailed)

	p.logger.Error("INGESTION", "Ingestion failed", map[string]interface{}{
		"job_id":     job.ID,
		"filename":   job.Filename,
		"committed":  status.Committed,
		"no_content": errors.Is(cause, rag.ErrNoContent),
		"error":      cause.Error(),
	})
	p.publish(ctx, events.TypeIngestionFailed, status)
	return status
}

func (p *Pipeline) transition(status Status, state State) Status {
	status.State = state
	status.UpdatedAt = time.Now()
	p.tracker.Save(status)
	return status
}

func (p *Pipeline) publish(ctx context.Context, eventType string, status Status) {
	event := events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"job_id":     status.JobID,
			"session_id": status.SessionID,
			"filename":   status.Filename,
			"state":      string(status.State),
			"chunks":     status.Chunks,
			"committed":  status.Committed,
			"error":      status.Error,
		},
		OccurredAt: status.UpdatedAt,
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("INGESTION", "Failed to publish ingestion event", map[string]interface{}{
			"job_id": status.JobID,
			"error":  err.Error(),
		})
	}
}
