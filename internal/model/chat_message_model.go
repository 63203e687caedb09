package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatMessage struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChatSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Role          string         `gorm:"type:varchar(20);not null"`
	Content       string         `gorm:"type:text;not null"`
	Sources       datatypes.JSON // ordered [{filename, page}]
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
