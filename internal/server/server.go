package server

import (
	"context"

	"docchat-be/internal/bootstrap"
	"docchat-be/internal/config"
	"docchat-be/internal/controller"
	"docchat-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:    50 * 1024 * 1024, // 50MB
		ErrorHandler: serverutils.ErrorHandler,
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.App.CorsAllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Type",
	}))

	app.Use(otelfiber.Middleware())
	app.Use(serverutils.JwtMiddleware(cfg.Keys.JwtSecret, true))

	// Uploaded documents, laid out as <owner>/<filename>.
	app.Static("/static", cfg.App.UploadDir)

	limits := controller.RouteLimits{
		Register: serverutils.RateLimit(cfg.RateLimit.RegisterPerMinute, container.LimiterStorage),
		Login:    serverutils.RateLimit(cfg.RateLimit.LoginPerMinute, container.LimiterStorage),
		Upload:   serverutils.RateLimit(cfg.RateLimit.UploadPerMinute, container.LimiterStorage),
		Chat:     serverutils.RateLimit(cfg.RateLimit.ChatPerMinute, container.LimiterStorage),
	}
	registerRoutes(app, container, limits)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) Run() error {
	s.container.Logger.Info("SERVER", "Server is running", map[string]interface{}{
		"address": "http://localhost:" + s.cfg.App.Port,
	})
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container, limits controller.RouteLimits) {
	c.AuthController.RegisterRoutes(app, limits)
	c.DocumentController.RegisterRoutes(app, limits)
	c.ChatController.RegisterRoutes(app, limits)
	c.SocketController.RegisterRoutes(app, limits)
}
