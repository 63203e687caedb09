package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docchat-be/pkg/rag"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tableName = "document_chunks"

type documentChunk struct {
	Id         string          `gorm:"primaryKey;type:text"`
	OwnerKey   string          `gorm:"type:text;not null"`
	Filename   string          `gorm:"type:text;not null"`
	ChunkIndex int             `gorm:"not null"`
	Page       int             `gorm:"not null"`
	Text       string          `gorm:"type:text;not null"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (documentChunk) TableName() string {
	return tableName
}

type scoredChunk struct {
	Id         string
	OwnerKey   string
	Filename   string
	ChunkIndex int
	Page       int
	Text       string
	Score      float64
}

// PGVectorStore keeps chunks in one postgres table with a pgvector column.
type PGVectorStore struct {
	db        *gorm.DB
	dimension int
}

func NewPGVectorStore(db *gorm.DB, dimension int) *PGVectorStore {
	return &PGVectorStore{db: db, dimension: dimension}
}

func (s *PGVectorStore) Dimension() int {
	return s.dimension
}

// EnsureSchema creates the extension, table and indexes when missing and
// fails with ErrDimensionMismatch when an existing column has another size.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			owner_key text NOT NULL,
			filename text NOT NULL,
			chunk_index integer NOT NULL,
			page integer NOT NULL,
			text text NOT NULL,
			metadata jsonb,
			embedding vector(%d) NOT NULL,
			created_at timestamptz,
			updated_at timestamptz
		)`, tableName, s.dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s (owner_key, filename, chunk_index)", tableName, tableName),
		// queries rank within one scope, an ANN index over the whole table is never used
		fmt.Sprintf("DROP INDEX IF EXISTS idx_%s_embedding", tableName),
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: ensure schema: %v", rag.ErrVectorStore, err)
		}
	}

	stored, err := s.columnDimension(ctx)
	if err != nil {
		return err
	}
	if stored != s.dimension {
		return fmt.Errorf("%w: configured %d, column is vector(%d)", ErrDimensionMismatch, s.dimension, stored)
	}
	return nil
}

func (s *PGVectorStore) columnDimension(ctx context.Context) (int, error) {
	var typmod int
	err := s.db.WithContext(ctx).Raw(
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = ?::regclass AND attname = 'embedding'`,
		tableName,
	).Scan(&typmod).Error
	if err != nil {
		return 0, fmt.Errorf("%w: read column dimension: %v", rag.ErrVectorStore, err)
	}
	return typmod, nil
}

func (s *PGVectorStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + tableName).Error; err != nil {
		return fmt.Errorf("%w: drop table: %v", rag.ErrVectorStore, err)
	}
	return s.EnsureSchema(ctx)
}

func (s *PGVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]documentChunk, len(records))
	for i, r := range records {
		if err := checkDimension(s.dimension, r.Vector); err != nil {
			return err
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		models[i] = documentChunk{
			Id:         r.ID,
			OwnerKey:   r.OwnerKey,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Page:       r.Page,
			Text:       r.Text,
			Metadata:   datatypes.JSON(meta),
			Embedding:  pgvector.NewVector(r.Vector),
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

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]rag.Match, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	// The scope is materialised first so ranking is an exact scan over one
	// document's chunks. Post-filtering an approximate index would drop
	// in-scope rows once the table holds many documents.
	scope, args := scopeClause(filter)
	qv := pgvector.NewVector(vector)
	args = append(args, qv, qv, topK)

	var rows []scoredChunk
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`WITH scoped AS MATERIALIZED (
			SELECT id, owner_key, filename, chunk_index, page, text, embedding FROM %s WHERE %s
		)
		SELECT id, owner_key, filename, chunk_index, page, text, 1 - (embedding <=> ?) AS score
		FROM scoped
		ORDER BY embedding <=> ?
		LIMIT ?`, tableName, scope), args...).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", rag.ErrVectorStore, err)
	}

	matches := make([]rag.Match, len(rows))
	for i, r := range rows {
		matches[i] = rag.Match{
			ID:         r.Id,
			Score:      r.Score,
			OwnerKey:   r.OwnerKey,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Page:       r.Page,
			Text:       r.Text,
		}
	}
	return matches, nil
}

func (s *PGVectorStore) DeleteStale(ctx context.Context, filter Filter, keepBelow int) (int64, error) {
	if filter.OwnerKey == "" || filter.Filename == "" {
		return 0, errors.New("delete stale requires owner and filename")
	}
	res := applyFilter(s.db.WithContext(ctx), filter).
		Where("chunk_index >= ?", keepBelow).
		Delete(&documentChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: delete stale: %v", rag.ErrVectorStore, res.Error)
	}
	return res.RowsAffected, nil
}

func scopeClause(filter Filter) (string, []interface{}) {
	if filter.Filename == "" {
		return "owner_key = ?", []interface{}{filter.OwnerKey}
	}
	return "owner_key = ? AND filename = ?", []interface{}{filter.OwnerKey, filter.Filename}
}

func applyFilter(db *gorm.DB, filter Filter) *gorm.DB {
	db = db.Where("owner_key = ?", filter.OwnerKey)
	if filter.Filename != "" {
		db = db.Where("filename = ?", filter.Filename)
	}
	return db
}
