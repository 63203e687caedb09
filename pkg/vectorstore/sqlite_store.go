package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docchat-be/pkg/rag"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sqliteChunk mirrors documentChunk with the vector stored as a JSON array.
type sqliteChunk struct {
	Id         string         `gorm:"primaryKey;type:text"`
	OwnerKey   string         `gorm:"type:text;not null;index:idx_document_chunks_scope,priority:1"`
	Filename   string         `gorm:"type:text;not null;index:idx_document_chunks_scope,priority:2"`
	ChunkIndex int            `gorm:"not null;index:idx_document_chunks_scope,priority:3"`
	Page       int            `gorm:"not null"`
	Text       string         `gorm:"type:text;not null"`
	Metadata   datatypes.JSON `gorm:"type:text"`
	Embedding  datatypes.JSON `gorm:"type:text;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (sqliteChunk) TableName() string {
	return tableName
}

// SQLiteStore keeps chunks in the relational sqlite database and ranks a
// scope by brute-force cosine. A scope is one document, so the scan is small.
type SQLiteStore struct {
	db        *gorm.DB
	dimension int
}

func NewSQLiteStore(db *gorm.DB, dimension int) *SQLiteStore {
	return &SQLiteStore{db: db, dimension: dimension}
}

func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

// EnsureSchema migrates the table and fails with ErrDimensionMismatch when
// stored vectors have another size.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&sqliteChunk{}); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", rag.ErrVectorStore, err)
	}

	var sample []sqliteChunk
	if err := db.Select("embedding").Limit(1).Find(&sample).Error; err != nil {
		return fmt.Errorf("%w: read sample vector: %v", rag.ErrVectorStore, err)
	}
	if len(sample) == 0 {
		return nil
	}
	vec, err := decodeVector(sample[0].Embedding)
	if err != nil {
		return err
	}
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: configured %d, stored vectors have %d", ErrDimensionMismatch, s.dimension, len(vec))
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Migrator().DropTable(&sqliteChunk{}); err != nil {
		return fmt.Errorf("%w: drop table: %v", rag.ErrVectorStore, err)
	}
	return s.EnsureSchema(ctx)
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]sqliteChunk, len(records))
	for i, r := range records {
		if err := checkDimension(s.dimension, r.Vector); err != nil {
			return err
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return err
		}
		models[i] = sqliteChunk{
			Id:         r.ID,
			OwnerKey:   r.OwnerKey,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Page:       r.Page,
			Text:       r.Text,
			Metadata:   datatypes.JSON(meta),
			Embedding:  datatypes.JSON(vec),
		}
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_key", "filename", "chunk_index", "page", "text", "metadata", "embedding", "updated_at"}),
		}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", rag.ErrVectorStore, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]rag.Match, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	var rows []sqliteChunk
	if err := applyFilter(s.db.WithContext(ctx), filter).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: query: %v", rag.ErrVectorStore, err)
	}

	matches := make([]rag.Match, 0, len(rows))
	for _, r := range rows {
		vec, err := decodeVector(r.Embedding)
		if err != nil {
			return nil, err
		}
		if err := checkDimension(s.dimension, vec); err != nil {
			return nil, err
		}
		matches = append(matches, rag.Match{
			ID:         r.Id,
			Score:      cosine(vector, vec),
			OwnerKey:   r.OwnerKey,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Page:       r.Page,
			Text:       r.Text,
		})
	}
	return rank(matches, topK), nil
}

func (s *SQLiteStore) DeleteStale(ctx context.Context, filter Filter, keepBelow int) (int64, error) {
	if filter.OwnerKey == "" || filter.Filename == "" {
		return 0, errors.New("delete stale requires owner and filename")
	}
	res := applyFilter(s.db.WithContext(ctx), filter).
		Where("chunk_index >= ?", keepBelow).
		Delete(&sqliteChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: delete stale: %v", rag.ErrVectorStore, res.Error)
	}
	return res.RowsAffected, nil
}

func decodeVector(raw datatypes.JSON) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("%w: corrupt stored vector: %v", rag.ErrVectorStore, err)
	}
	return vec, nil
}
