package serverutils

import (
	"errors"

	"docchat-be/pkg/rag"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, rag.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, rag.ErrExtraction), errors.As(err, &validationErrs):
		return fiber.StatusBadRequest
	case rag.IsRetryable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler is installed as fiber.Config.ErrorHandler.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := StatusFor(err)
	message := err.Error()
	if code == fiber.StatusInternalServerError {
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(ErrorResponse(code, message))
}
