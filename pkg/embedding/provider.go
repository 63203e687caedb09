package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// EmbeddingProvider turns one text into one vector.
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string, taskType string) ([]float32, error)
}

type ProviderConfig struct {
	Provider      string
	Model         string
	GeminiAPIKey  string
	JinaAPIKey    string
	OllamaBaseURL string
}

func NewProvider(cfg ProviderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiProvider(cfg.GeminiAPIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.Model), nil
	case "jina":
		return NewJinaProvider(cfg.JinaAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// normalizeVector scales vec to unit length for cosine distance.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
