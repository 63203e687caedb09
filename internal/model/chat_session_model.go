package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id               uuid.UUID     `gorm:"type:uuid;primaryKey"`
	UserId           *uuid.UUID    `gorm:"type:uuid;index"` // nil for anonymous uploads
	DocumentFilename string        `gorm:"type:text;not null"`
	CreatedAt        time.Time     `gorm:"autoCreateTime"`
	Messages         []ChatMessage `gorm:"foreignKey:ChatSessionId;constraint:OnDelete:CASCADE"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
