package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"docchat-be/pkg/rag"
)

// ErrDimensionMismatch means the configured embedding dimension differs from
// the stored column. It is a configuration error; retrying will not help.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

const DefaultBatchSize = 100

// Record is one chunk ready to be written, keyed by its deterministic id.
type Record struct {
	ID         string
	OwnerKey   string
	Filename   string
	ChunkIndex int
	Page       int
	Text       string
	Vector     []float32
	Metadata   map[string]any
}

// Filter scopes reads and deletes to one owner and, when set, one file.
type Filter struct {
	OwnerKey string
	Filename string
}

func ScopeOf(doc rag.Document) Filter {
	return Filter{OwnerKey: doc.OwnerKey, Filename: doc.Filename}
}

type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]rag.Match, error)
	// DeleteStale removes chunks in filter with chunk_index >= keepBelow.
	DeleteStale(ctx context.Context, filter Filter, keepBelow int) (int64, error)
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
	Dimension() int
}

// UpsertBatched writes records in batches and stops at the first failed
// batch. It returns how many records were committed before the failure.
func UpsertBatched(ctx context.Context, store Store, records []Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	committed := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := store.Upsert(ctx, records[start:end]); err != nil {
			if errors.Is(err, rag.ErrVectorStore) {
				return committed, err
			}
			return committed, fmt.Errorf("%w: batch at %d: %w", rag.ErrVectorStore, start, err)
		}
		committed = end
	}
	return committed, nil
}

// FilterRelevant keeps matches scoring strictly above threshold, in order.
func FilterRelevant(matches []rag.Match, threshold float64) []rag.Match {
	out := make([]rag.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score > threshold {
			out = append(out, m)
		}
	}
	return out
}

func checkDimension(want int, vec []float32) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, column is %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
