package serverutils

import (
	"fmt"
	"strings"

	"docchat-be/pkg/rag"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateRequest checks the validate tags of a parsed request body.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", rag.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// ParseBody wraps BodyParser failures as client errors.
func ParseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fmt.Errorf("%w: malformed request body", rag.ErrInvalidInput)
	}
	return nil
}
