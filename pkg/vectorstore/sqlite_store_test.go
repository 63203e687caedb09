package vectorstore

import (
	"context"
	"testing"

	"docchat-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newSQLiteStore(t *testing.T, db *gorm.DB, dim int) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(db, dim)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)

	first := newSQLiteStore(t, db, 3)
	require.NoError(t, first.Upsert(ctx, records(4, "u1", "a.pdf")))

	reopened := newSQLiteStore(t, db, 3)
	matches, err := reopened.Query(ctx, []float32{1, 0, 0}, 10, Filter{OwnerKey: "u1", Filename: "a.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, 0, matches[0].ChunkIndex)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "chunk 0", matches[0].Text)
}

func TestSQLiteStore_QueryIsScopedAndRanked(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, newSQLiteDB(t), 3)
	require.NoError(t, s.Upsert(ctx, records(5, "u1", "a.pdf")))
	require.NoError(t, s.Upsert(ctx, records(5, "u1", "b.pdf")))
	require.NoError(t, s.Upsert(ctx, records(5, "u2", "a.pdf")))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 3, Filter{OwnerKey: "u1", Filename: "a.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, "u1", m.OwnerKey)
		assert.Equal(t, "a.pdf", m.Filename)
		assert.Equal(t, i, m.ChunkIndex)
	}
}

func TestSQLiteStore_UpsertOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, newSQLiteDB(t), 3)
	recs := records(1, "u1", "a.pdf")
	require.NoError(t, s.Upsert(ctx, recs))

	recs[0].Text = "rewritten"
	require.NoError(t, s.Upsert(ctx, recs))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 5, Filter{OwnerKey: "u1", Filename: "a.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rewritten", matches[0].Text)
}

func TestSQLiteStore_DeleteStale(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, newSQLiteDB(t), 3)
	require.NoError(t, s.Upsert(ctx, records(6, "u1", "a.pdf")))
	require.NoError(t, s.Upsert(ctx, records(6, "u1", "b.pdf")))

	n, err := s.DeleteStale(ctx, Filter{OwnerKey: "u1", Filename: "a.pdf"}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	left, err := s.Query(ctx, []float32{1, 0, 0}, 10, Filter{OwnerKey: "u1"})
	require.NoError(t, err)
	assert.Len(t, left, 8)

	_, err = s.DeleteStale(ctx, Filter{OwnerKey: "u1"}, 0)
	assert.Error(t, err)
}

func TestSQLiteStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	s := newSQLiteStore(t, db, 3)
	require.NoError(t, s.Upsert(ctx, records(1, "u1", "a.pdf")))

	_, err := s.Query(ctx, []float32{1, 0}, 5, Filter{OwnerKey: "u1"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = NewSQLiteStore(db, 4).EnsureSchema(ctx)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteStore_ResetClearsVectors(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	require.NoError(t, newSQLiteStore(t, db, 3).Upsert(ctx, records(2, "u1", "a.pdf")))

	resized := NewSQLiteStore(db, 4)
	require.NoError(t, resized.Reset(ctx))

	matches, err := resized.Query(ctx, []float32{1, 0, 0, 0}, 5, Filter{OwnerKey: "u1"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
