package dto

import "github.com/google/uuid"

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type RegisterResponse struct {
	Status   string    `json:"status"`
	UserId   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	UserId   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
}
