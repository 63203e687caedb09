package dto

import (
	"time"

	"docchat-be/pkg/rag"

	"github.com/google/uuid"
)

type ChatRequest struct {
	Question  string    `json:"question" validate:"required"`
	SessionId uuid.UUID `json:"session_id" validate:"required"`
}

// StreamFrame is one NDJSON line of a chat answer.
type StreamFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	StreamFrameSources = "sources"
	StreamFrameContent = "content"
)

type SessionResponse struct {
	Id        uuid.UUID `json:"id"`
	Filename  string    `json:"pdf_name"`
	CreatedAt time.Time `json:"date"`
}

type ChatMessageResponse struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Sources   []rag.Source `json:"sources"`
	CreatedAt time.Time    `json:"created_at"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
