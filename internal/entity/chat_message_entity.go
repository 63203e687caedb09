package entity

import (
	"time"

	"docchat-be/pkg/rag"

	"github.com/google/uuid"
)

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
)

type ChatMessage struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Role          string
	Content       string
	Sources       []rag.Source
	CreatedAt     time.Time
}
