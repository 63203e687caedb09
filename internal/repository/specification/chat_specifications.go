package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

// ByRole filters chat messages by author role.
type ByRole struct {
	Role string
}

func (s ByRole) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("role = ?", s.Role)
}

// ByDocument matches sessions opened on the same uploaded file.
type ByDocument struct {
	Filename string
}

func (s ByDocument) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_filename = ?", s.Filename)
}
