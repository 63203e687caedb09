package serverutils

import "github.com/gofiber/fiber/v2"

// ErrorResponse is the body of every failed request.
func ErrorResponse(code int, message string) fiber.Map {
	return fiber.Map{
		"success": false,
		"code":    code,
		"message": message,
	}
}

// SuccessResponse wraps a payload in the standard envelope.
func SuccessResponse(message string, data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"code":    fiber.StatusOK,
		"message": message,
		"data":    data,
	}
}
