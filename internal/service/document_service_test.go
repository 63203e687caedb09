package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/ingestion"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	h := newHarness(t)

	_, err := h.documents.Upload(context.Background(), &dto.UploadRequest{Filename: "slides.pptx", Data: []byte("x")})

	assert.ErrorIs(t, err, rag.ErrInvalidInput)
}

func TestUpload_UnknownUser(t *testing.T) {
	h := newHarness(t)
	ghost := uuid.New()

	_, err := h.documents.Upload(context.Background(), &dto.UploadRequest{Filename: "a.txt", Data: []byte("x"), UserId: &ghost})

	assert.ErrorIs(t, err, rag.ErrNotFound)
}

func TestUpload_ReuploadReplacesChunks(t *testing.T) {
	h := newHarness(t)
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}

	uploadAndWait(t, h, "notes.txt", string(long), nil)
	before := h.store.Len()
	require.Greater(t, before, 1)

	uploadAndWait(t, h, "notes.txt", "short revenue note", nil)
	assert.Equal(t, 1, h.store.Len())
}

func TestUpload_EmptyDocumentFailsIngestion(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.documents.Upload(ctx, &dto.UploadRequest{Filename: "blank.txt", Data: []byte("   \n\n  ")})
	require.NoError(t, err)

	status, err := h.jobs.Wait(ctx, res.JobId)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StateFailed, status.State)
	assert.NotEmpty(t, status.Error)

	got, err := h.documents.IngestionStatus(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, string(ingestion.StateFailed), got.State)

	// The session survives a failed ingestion.
	history, err := h.chat.History(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpload_StoresFileUnderOwner(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.documents.Upload(ctx, &dto.UploadRequest{Filename: "../../etc/report.txt", Data: []byte("Revenue")})
	require.NoError(t, err)
	assert.Equal(t, "report.txt", res.Filename)

	status, err := h.jobs.Wait(ctx, res.JobId)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StateComplete, status.State)

	_, err = h.documents.IngestionStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, rag.ErrNotFound)

	data, err := os.ReadFile(filepath.Join(h.uploadDir, rag.AnonymousOwner, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Revenue", string(data))
}
