package controller

import (
	"fmt"

	"docchat-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RouteLimits carries the rate limiter applied in front of each public
// operation.
type RouteLimits struct {
	Register fiber.Handler
	Login    fiber.Handler
	Upload   fiber.Handler
	Chat     fiber.Handler
}

func passThrough(ctx *fiber.Ctx) error {
	return ctx.Next()
}

func orPass(h fiber.Handler) fiber.Handler {
	if h == nil {
		return passThrough
	}
	return h
}

func uuidParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", rag.ErrInvalidInput, name)
	}
	return id, nil
}
