package vectorstore

import (
	"context"
	"fmt"
	"os"
	"testing"

	"docchat-be/pkg/database"
	"docchat-be/pkg/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupPGVector(t *testing.T, dim int) *PGVectorStore {
	t.Helper()
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("DB_CONNECTION_STRING not set")
	}
	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)

	store := NewPGVectorStore(db, dim)
	require.NoError(t, store.Reset(context.Background()))
	return store
}

func TestPGVectorStore_RoundTrip(t *testing.T) {
	store := setupPGVector(t, 3)
	ctx := context.Background()

	_, err := UpsertBatched(ctx, store, records(4, "u1", "a.pdf"), 2)
	require.NoError(t, err)
	_, err = UpsertBatched(ctx, store, records(4, "u2", "a.pdf"), 2)
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, Filter{OwnerKey: "u1", Filename: "a.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, rag.ChunkID("u1", "a.pdf", 0), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)

	n, err := store.DeleteStale(ctx, Filter{OwnerKey: "u1", Filename: "a.pdf"}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPGVectorStore_ScopedQueryAmongManyDocuments(t *testing.T) {
	store := setupPGVector(t, 3)
	ctx := context.Background()

	for d := 0; d < 60; d++ {
		_, err := UpsertBatched(ctx, store, records(6, "u1", fmt.Sprintf("doc-%02d.pdf", d)), DefaultBatchSize)
		require.NoError(t, err)
	}

	scope := Filter{OwnerKey: "u1", Filename: "doc-17.pdf"}
	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, scope)
	require.NoError(t, err)
	require.Len(t, matches, 5)
	for _, m := range matches {
		assert.Equal(t, "doc-17.pdf", m.Filename)
	}
	assert.Equal(t, rag.ChunkID("u1", "doc-17.pdf", 0), matches[0].ID)
}

func TestPGVectorStore_DimensionMismatchAtBootstrap(t *testing.T) {
	setupPGVector(t, 3)

	other := NewPGVectorStore(setupDBOnly(t), 5)
	err := other.EnsureSchema(context.Background())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func setupDBOnly(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewGormDBFromDSN(os.Getenv("DB_CONNECTION_STRING"))
	require.NoError(t, err)
	return db
}
