package serverutils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JwtMiddleware validates an HS256 bearer token and stores its user id in
// ctx.Locals("user_id") as a uuid.UUID. With optional set, requests without
// an Authorization header pass through anonymously; a bad token is always
// rejected.
func JwtMiddleware(secret string, optional bool) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get(fiber.HeaderAuthorization)
		if authHeader == "" && optional {
			return ctx.Next()
		}
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}
		raw, _ := claims["user_id"].(string)
		userId, err := uuid.Parse(raw)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}

		ctx.Locals("user_id", userId)
		return ctx.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(ctx *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := ctx.Locals("user_id").(uuid.UUID)
	return id, ok
}
