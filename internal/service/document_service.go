package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/memory"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/ingestion"
	"docchat-be/pkg/rag/loader"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Upload(ctx context.Context, req *dto.UploadRequest) (*dto.UploadResponse, error)
	IngestionStatus(ctx context.Context, sessionId uuid.UUID) (*dto.IngestionStatusResponse, error)
}

type documentService struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  IPublisherService
	pipeline   *ingestion.Pipeline
	jobs       *memory.IngestionJobRepository
	uploadDir  string
	logger     logger.ILogger
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisher IPublisherService,
	pipeline *ingestion.Pipeline,
	jobs *memory.IngestionJobRepository,
	uploadDir string,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		uowFactory: uowFactory,
		publisher:  publisher,
		pipeline:   pipeline,
		jobs:       jobs,
		uploadDir:  uploadDir,
		logger:     log,
	}
}

// Upload stores the raw file, opens a session pinned to it and queues the
// ingestion job. It returns before indexing starts.
func (s *documentService) Upload(ctx context.Context, req *dto.UploadRequest) (*dto.UploadResponse, error) {
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: missing filename", rag.ErrInvalidInput)
	}
	if !loader.IsSupported(filename) {
		return nil, fmt.Errorf("%w: only %s files are accepted",
			rag.ErrInvalidInput, strings.Join(loader.SupportedExtensions(), " and "))
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", rag.ErrInvalidInput)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	if req.UserId != nil {
		user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: *req.UserId})
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("%w: user %s", rag.ErrNotFound, req.UserId)
		}
	}

	doc := rag.Document{OwnerKey: rag.OwnerKey(req.UserId), Filename: filename}
	path, err := s.store(doc, req.Data)
	if err != nil {
		return nil, err
	}

	session := &entity.ChatSession{
		Id:               uuid.New(),
		UserId:           req.UserId,
		DocumentFilename: filename,
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}

	job := ingestion.NewJob(session.Id.String(), doc, path)
	s.pipeline.Accept(job)
	if err := s.publisher.Publish(ctx, job); err != nil {
		s.pipeline.Fail(ctx, job, ingestion.Status{}, fmt.Errorf("queue ingestion: %w", err))
		return nil, err
	}

	s.logger.Info("DOCUMENT", "Upload accepted", map[string]interface{}{
		"session_id": session.Id.String(),
		"job_id":     job.ID,
		"filename":   filename,
		"owner":      doc.OwnerKey,
	})

	return &dto.UploadResponse{
		Status:    "success",
		SessionId: session.Id,
		Filename:  filename,
		JobId:     job.ID,
	}, nil
}

// store writes the upload under <uploadDir>/<owner>/<filename>, replacing any
// previous version atomically.
func (s *documentService) store(doc rag.Document, data []byte) (string, error) {
	dir := filepath.Join(s.uploadDir, doc.OwnerKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	path := filepath.Join(dir, doc.Filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

func (s *documentService) IngestionStatus(ctx context.Context, sessionId uuid.UUID) (*dto.IngestionStatusResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", rag.ErrNotFound, sessionId)
	}

	status, ok := s.jobs.LatestForSession(sessionId.String())
	if !ok {
		return nil, fmt.Errorf("%w: no ingestion job for session %s", rag.ErrNotFound, sessionId)
	}

	return &dto.IngestionStatusResponse{
		JobId:     status.JobID,
		SessionId: status.SessionID,
		Filename:  status.Filename,
		State:     string(status.State),
		Chunks:    status.Chunks,
		Committed: status.Committed,
		Error:     status.Error,
		UpdatedAt: status.UpdatedAt,
	}, nil
}
