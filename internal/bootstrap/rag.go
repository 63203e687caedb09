package bootstrap

import (
	"context"
	"fmt"

	"docchat-be/internal/config"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/pkg/database"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/llm/factory"
	"docchat-be/pkg/rag/cascade"
	"docchat-be/pkg/rag/chunker"
	"docchat-be/pkg/rag/ingestion"
	"docchat-be/pkg/rag/retrieval"
	"docchat-be/pkg/vectorstore"

	"gorm.io/gorm"
)

// RAG holds the long-lived retrieval and generation capabilities shared by
// the HTTP server and the operator CLI.
type RAG struct {
	Gateway   *embedding.Gateway
	Store     vectorstore.Store
	Registry  *llm.Registry
	Cascade   *cascade.Cascade
	Retriever *retrieval.Retriever
	Pipeline  *ingestion.Pipeline
	Jobs      *memory.IngestionJobRepository
}

// NewRAG wires the pipeline. db is the relational connection; the vector
// store opens its own connection when VECTOR_DB_CONNECTION_STRING differs.
func NewRAG(ctx context.Context, cfg *config.Config, db *gorm.DB, publisher events.Publisher, log logger.ILogger) (*RAG, error) {
	provider, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:      cfg.Ai.EmbeddingProvider,
		Model:         cfg.Ai.EmbeddingModel,
		GeminiAPIKey:  cfg.Keys.GoogleGemini,
		JinaAPIKey:    cfg.Keys.Jina,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
	})
	if err != nil {
		return nil, err
	}

	gateway := embedding.NewGateway(provider, embedding.GatewayConfig{
		Dimension:          cfg.Ai.EmbeddingDimension,
		QueryAttempts:      cfg.Rag.QueryAttempts,
		QueryBackoff:       cfg.Rag.QueryBackoff,
		DocumentsPerSecond: cfg.Rag.EmbedPerSecond,
	}, log)

	store, err := OpenVectorStore(ctx, cfg, db, log)
	if err != nil {
		return nil, err
	}

	candidates, err := llm.ParseCandidates(cfg.Ai.LLMCandidates)
	if err != nil {
		return nil, err
	}
	registry := factory.NewRegistry(factory.Config{
		GeminiAPIKey:  cfg.Keys.GoogleGemini,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Keys.OpenAI,
	})
	for _, c := range candidates {
		if _, err := registry.Get(c.Provider); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c, err)
		}
	}

	jobs := memory.NewIngestionJobRepository()
	splitter := chunker.New(cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap)

	log.Info("BOOTSTRAP", "RAG pipeline ready", map[string]interface{}{
		"embedding_provider": cfg.Ai.EmbeddingProvider,
		"dimension":          cfg.Ai.EmbeddingDimension,
		"candidates":         cfg.Ai.LLMCandidates,
	})

	return &RAG{
		Gateway:  gateway,
		Store:    store,
		Registry: registry,
		Cascade:  cascade.New(registry, candidates, log, cascade.WithFragmentDelay(cfg.Ai.FragmentDelay)),
		Retriever: retrieval.NewRetriever(gateway, store, retrieval.Config{
			TopK:      cfg.Rag.TopK,
			Threshold: cfg.Rag.ScoreThreshold,
		}, log),
		Pipeline: ingestion.NewPipeline(splitter, gateway, store, jobs, publisher,
			ingestion.PipelineConfig{BatchSize: cfg.Rag.UpsertBatchSize}, log),
		Jobs: jobs,
	}, nil
}

// OpenVectorStore returns the pgvector store, or an in-process store when the
// relational driver is sqlite.
func OpenVectorStore(ctx context.Context, cfg *config.Config, db *gorm.DB, log logger.ILogger) (vectorstore.Store, error) {
	if cfg.Database.Driver == database.DriverSQLite {
		log.Info("BOOTSTRAP", "sqlite driver selected, vectors ranked by full scan", nil)
		store := vectorstore.NewSQLiteStore(db, cfg.Ai.EmbeddingDimension)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	vectorDB := db
	if cfg.Database.VectorConnection != "" && cfg.Database.VectorConnection != cfg.Database.Connection {
		var err error
		vectorDB, err = database.NewGormDBFromDSN(cfg.Database.VectorConnection)
		if err != nil {
			return nil, fmt.Errorf("connect vector database: %w", err)
		}
	}

	store := vectorstore.NewPGVectorStore(vectorDB, cfg.Ai.EmbeddingDimension)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
