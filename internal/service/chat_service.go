package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/cascade"
	"docchat-be/pkg/rag/retrieval"

	"github.com/google/uuid"
)

type DocumentRetriever interface {
	Retrieve(ctx context.Context, doc rag.Document, question string) (*retrieval.Result, error)
}

type AnswerStreamer interface {
	Stream(ctx context.Context, prompt string) *cascade.Run
}

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*ChatStream, error)
	ListSessions(ctx context.Context, ownerId string) ([]*dto.SessionResponse, error)
	History(ctx context.Context, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	retriever  DocumentRetriever
	generator  AnswerStreamer
	logger     logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	retriever DocumentRetriever,
	generator AnswerStreamer,
	log logger.ILogger,
) IChatService {
	return &chatService{
		uowFactory: uowFactory,
		retriever:  retriever,
		generator:  generator,
		logger:     log,
	}
}

// ChatStream is one answer in flight. Sources are known before any fragment
// is produced. Read Fragments until it closes, then call Complete.
type ChatStream struct {
	Sources []rag.Source

	ctx       context.Context
	session   *entity.ChatSession
	run       *cascade.Run
	fragments chan string
	forwarded chan struct{}
	answer    strings.Builder
	service   *chatService
}

func (s *ChatStream) Fragments() <-chan string {
	return s.fragments
}

func (s *ChatStream) forward() {
	defer close(s.forwarded)
	defer close(s.fragments)

	for f := range s.run.Fragments() {
		select {
		case s.fragments <- f:
			s.answer.WriteString(f)
		case <-s.ctx.Done():
			for range s.run.Fragments() {
			}
			return
		}
	}
}

// Complete waits for generation to end and stores the assistant message when
// the whole answer reached the client. Storage failures are only logged.
func (s *ChatStream) Complete(delivered bool) cascade.Outcome {
	<-s.forwarded
	outcome := s.run.Outcome()
	answer := s.answer.String()

	details := map[string]interface{}{
		"session_id": s.session.Id.String(),
		"state":      string(outcome.State),
		"fragments":  outcome.Fragments,
		"failed":     len(outcome.Failed),
	}
	if outcome.Committed != nil {
		details["candidate"] = outcome.Committed.String()
	}
	s.service.logger.Info("CHAT", "Answer finished", details)

	if !delivered || s.ctx.Err() != nil || answer == "" {
		return outcome
	}

	// The request context may end as soon as the response is flushed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	msg := &entity.ChatMessage{
		ChatSessionId: s.session.Id,
		Role:          entity.ChatMessageRoleAssistant,
		Content:       answer,
		Sources:       s.Sources,
	}
	if err := s.service.uowFactory.NewUnitOfWork(ctx).ChatMessageRepository().Create(ctx, msg); err != nil {
		s.service.logger.Error("CHAT", "Failed to save assistant message", map[string]interface{}{
			"session_id": s.session.Id.String(),
			"error":      err.Error(),
		})
	}
	return outcome
}

func (cs *chatService) findSession(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", rag.ErrNotFound, id)
	}
	return session, nil
}

// Chat records the question, retrieves context from the session's document
// and starts streaming the answer. Errors returned here happen before any
// output is written.
func (cs *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*ChatStream, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", rag.ErrInvalidInput)
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	session, err := cs.findSession(ctx, uow, req.SessionId)
	if err != nil {
		return nil, err
	}

	userMsg := &entity.ChatMessage{
		ChatSessionId: session.Id,
		Role:          entity.ChatMessageRoleUser,
		Content:       question,
		Sources:       []rag.Source{},
	}
	if err := uow.ChatMessageRepository().Create(ctx, userMsg); err != nil {
		return nil, err
	}

	result, err := cs.retriever.Retrieve(ctx, session.Document(), question)
	if err != nil {
		cs.logger.Warn("CHAT", "Retrieval failed", map[string]interface{}{
			"session_id": session.Id.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	stream := &ChatStream{
		Sources:   result.Sources,
		ctx:       ctx,
		session:   session,
		run:       cs.generator.Stream(ctx, result.Prompt),
		fragments: make(chan string),
		forwarded: make(chan struct{}),
		service:   cs,
	}
	go stream.forward()

	return stream, nil
}

// ListSessions accepts a user id or "anonymous". Newest first.
func (cs *chatService) ListSessions(ctx context.Context, ownerId string) ([]*dto.SessionResponse, error) {
	owned := specification.UserOwnedBy{}
	if ownerId != rag.AnonymousOwner {
		id, err := uuid.Parse(ownerId)
		if err != nil {
			return nil, fmt.Errorf("%w: owner id %q", rag.ErrInvalidInput, ownerId)
		}
		owned.UserID = &id
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx, owned, specification.NewestFirst{})
	if err != nil {
		return nil, err
	}

	res := make([]*dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, &dto.SessionResponse{
			Id:        s.Id,
			Filename:  s.DocumentFilename,
			CreatedAt: s.CreatedAt,
		})
	}
	return res, nil
}

func (cs *chatService) History(ctx context.Context, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if _, err := cs.findSession(ctx, uow, sessionId); err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OldestFirst{},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatMessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, &dto.ChatMessageResponse{
			Role:      m.Role,
			Content:   m.Content,
			Sources:   m.Sources,
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

// DeleteSession removes the session and its messages in one transaction.
// Indexed chunks stay: other sessions may point at the same document.
func (cs *chatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if _, err := cs.findSession(ctx, uow, sessionId); err != nil {
		return err
	}
	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}

	return uow.Commit()
}
