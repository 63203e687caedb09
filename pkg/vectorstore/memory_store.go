package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"docchat-be/pkg/rag"
)

// MemoryStore is a brute-force cosine index kept in process memory. Used by
// tests.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, records: make(map[string]Record)}
}

func (s *MemoryStore) Dimension() int {
	return s.dimension
}

func (s *MemoryStore) EnsureSchema(context.Context) error {
	return nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, records []Record) error {
	for _, r := range records {
		if err := checkDimension(s.dimension, r.Vector); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, topK int, filter Filter) ([]rag.Match, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	matches := make([]rag.Match, 0, len(s.records))
	for _, r := range s.records {
		if !filter.matches(r) {
			continue
		}
		matches = append(matches, rag.Match{
			ID:         r.ID,
			Score:      cosine(vector, r.Vector),
			OwnerKey:   r.OwnerKey,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Page:       r.Page,
			Text:       r.Text,
		})
	}
	s.mu.RUnlock()

	return rank(matches, topK), nil
}

// rank orders by descending score, ties by id, and keeps topK.
func rank(matches []rag.Match, topK int) []rag.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func (s *MemoryStore) DeleteStale(_ context.Context, filter Filter, keepBelow int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if filter.matches(r) && r.ChunkIndex >= keepBelow {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (f Filter) matches(r Record) bool {
	if r.OwnerKey != f.OwnerKey {
		return false
	}
	return f.Filename == "" || r.Filename == f.Filename
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
