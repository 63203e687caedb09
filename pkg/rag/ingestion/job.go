package ingestion

import (
	"time"

	"docchat-be/pkg/rag"

	"github.com/oklog/ulid/v2"
)

type State string

const (
	StateReceived              State = "RECEIVED"
	StateExtracting            State = "EXTRACTING"
	StateChunking              State = "CHUNKING"
	StateEmbeddingAndUpserting State = "EMBEDDING_AND_UPSERTING"
	StateComplete              State = "COMPLETE"
	StateFailed                State = "FAILED"
)

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Job is one document to index. The file is read from Path by the worker.
type Job struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	OwnerKey  string `json:"owner_key"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
}

func NewJob(sessionID string, doc rag.Document, path string) Job {
	return Job{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		OwnerKey:  doc.OwnerKey,
		Filename:  doc.Filename,
		Path:      path,
	}
}

func (j Job) Document() rag.Document {
	return rag.Document{OwnerKey: j.OwnerKey, Filename: j.Filename}
}

type Status struct {
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	Filename  string    `json:"filename"`
	State     State     `json:"state"`
	Chunks    int       `json:"chunks"`
	Committed int       `json:"committed"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker stores the latest status of each job.
type Tracker interface {
	Save(status Status)
	Get(jobID string) (Status, bool)
}
