package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadRequest struct {
	Filename string
	Data     []byte
	UserId   *uuid.UUID
}

type UploadResponse struct {
	Status    string    `json:"status"`
	SessionId uuid.UUID `json:"session_id"`
	Filename  string    `json:"filename"`
	JobId     string    `json:"job_id"`
}

type IngestionStatusResponse struct {
	JobId     string    `json:"job_id"`
	SessionId string    `json:"session_id"`
	Filename  string    `json:"filename"`
	State     string    `json:"state"`
	Chunks    int       `json:"chunks"`
	Committed int       `json:"committed"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
