package mapper

import (
	"encoding/json"

	"docchat-be/internal/entity"
	"docchat-be/internal/model"
	"docchat-be/pkg/rag"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}
	return &entity.ChatSession{
		Id:               s.Id,
		UserId:           s.UserId,
		DocumentFilename: s.DocumentFilename,
		CreatedAt:        s.CreatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}
	return &model.ChatSession{
		Id:               s.Id,
		UserId:           s.UserId,
		DocumentFilename: s.DocumentFilename,
		CreatedAt:        s.CreatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	sources := []rag.Source{}
	if len(msg.Sources) > 0 {
		// Unreadable sources are dropped rather than failing the whole history.
		_ = json.Unmarshal(msg.Sources, &sources)
	}

	return &entity.ChatMessage{
		Id:            msg.Id,
		ChatSessionId: msg.ChatSessionId,
		Role:          msg.Role,
		Content:       msg.Content,
		Sources:       sources,
		CreatedAt:     msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) (*model.ChatMessage, error) {
	if msg == nil {
		return nil, nil
	}

	sources := msg.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}

	return &model.ChatMessage{
		Id:            msg.Id,
		ChatSessionId: msg.ChatSessionId,
		Role:          msg.Role,
		Content:       msg.Content,
		Sources:       datatypes.JSON(raw),
		CreatedAt:     msg.CreatedAt,
	}, nil
}
