package rag

import (
	"fmt"

	"github.com/google/uuid"
)

// AnonymousOwner scopes documents uploaded without a user.
const AnonymousOwner = "anonymous"

// PageBoundary marks the rune range [Start, End) of one page inside the
// concatenated document text. Page is 1-indexed.
type PageBoundary struct {
	Page  int
	Start int
	End   int
}

type Chunk struct {
	Index int
	Text  string
	Page  int
}

// Document identifies an uploaded file within its owner's scope.
type Document struct {
	OwnerKey string
	Filename string
}

func (d Document) ChunkID(index int) string {
	return ChunkID(d.OwnerKey, d.Filename, index)
}

// ChunkID is deterministic so re-ingesting a document overwrites its chunks.
func ChunkID(ownerKey, filename string, index int) string {
	return fmt.Sprintf("%s_%s_chunk_%d", ownerKey, filename, index)
}

func OwnerKey(userID *uuid.UUID) string {
	if userID == nil || *userID == uuid.Nil {
		return AnonymousOwner
	}
	return userID.String()
}

// Match is one retrieved chunk with its cosine similarity.
type Match struct {
	ID         string
	Score      float64
	OwnerKey   string
	Filename   string
	ChunkIndex int
	Page       int
	Text       string
}

type Source struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}
