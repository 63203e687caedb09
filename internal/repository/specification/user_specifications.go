package specification

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

type ByUsername struct {
	Username string
}

func (s ByUsername) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("username = ?", s.Username)
}

// UserOwnedBy scopes rows to one owner. A nil UserID selects anonymous rows.
type UserOwnedBy struct {
	UserID *uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	if s.UserID == nil {
		return db.Where("user_id IS NULL")
	}
	return db.Where("user_id = ?", *s.UserID)
}
