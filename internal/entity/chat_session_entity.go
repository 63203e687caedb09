package entity

import (
	"time"

	"docchat-be/pkg/rag"

	"github.com/google/uuid"
)

// ChatSession binds a conversation to exactly one uploaded document.
type ChatSession struct {
	Id               uuid.UUID
	UserId           *uuid.UUID
	DocumentFilename string
	CreatedAt        time.Time
}

func (s *ChatSession) OwnerKey() string {
	return rag.OwnerKey(s.UserId)
}

// Document is the retrieval scope of every question asked in the session.
func (s *ChatSession) Document() rag.Document {
	return rag.Document{OwnerKey: s.OwnerKey(), Filename: s.DocumentFilename}
}
