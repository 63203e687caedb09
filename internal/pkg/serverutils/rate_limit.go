package serverutils

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit bounds requests per client IP per minute. A nil storage keeps
// counters in process memory.
func RateLimit(perMinute int, storage fiber.Storage) fiber.Handler {
	cfg := limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Route().Path + "|" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).
				JSON(ErrorResponse(fiber.StatusTooManyRequests, "Too many requests, slow down"))
		},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
