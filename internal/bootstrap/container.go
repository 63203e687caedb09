package bootstrap

import (
	"context"

	"docchat-be/internal/config"
	"docchat-be/internal/controller"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/internal/service"
	"docchat-be/internal/websocket"
	"docchat-be/pkg/events"
	pktNats "docchat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController     controller.IAuthController
	DocumentController controller.IDocumentController
	ChatController     controller.IChatController
	SocketController   controller.IIngestionSocketController

	// Background Services (Exposed for main.go to run)
	IngestionConsumer service.IIngestionConsumerService

	// LimiterStorage is nil when no Redis is configured.
	LimiterStorage fiber.Storage

	Logger logger.ILogger
	RAG    *RAG

	closers []func()
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	c := &Container{Logger: sysLogger}

	// 2. Event Bus (in-process job queue + optional NATS for lifecycle events)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var eventPublisher events.Publisher = events.NopPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "NATS unavailable, lifecycle events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// 3. Rate-limit storage and cross-instance fan-out
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("BOOTSTRAP", "Redis unavailable, rate limits kept in memory", map[string]interface{}{"error": err.Error()})
			_ = client.Close()
		} else {
			rdb = client
			storage := serverutils.NewRedisStorage(client, "docchat:limiter:")
			c.LimiterStorage = storage
			c.closers = append(c.closers, func() { _ = storage.Close() })
		}
	}

	// 4. RAG core
	rag, err := NewRAG(ctx, cfg, db, eventPublisher, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.RAG = rag

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub(rdb, sysLogger)
	go hub.Run(hubCtx)
	rag.Jobs.Observe(hub.Notify)
	c.closers = append(c.closers, stopHub)

	// 5. Services
	consumer, err := service.NewIngestionConsumerService(pubSub, cfg.App.IngestionTopic, rag.Pipeline, cfg.Rag.IngestWorkers, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.IngestionConsumer = consumer
	c.closers = append(c.closers, consumer.Close)

	publisherService := service.NewPublisherService(cfg.App.IngestionTopic, pubSub)
	authService := service.NewAuthService(uowFactory, cfg.Keys.JwtSecret, eventPublisher, sysLogger)
	documentService := service.NewDocumentService(uowFactory, publisherService, rag.Pipeline, rag.Jobs, cfg.App.UploadDir, sysLogger)
	chatService := service.NewChatService(uowFactory, rag.Retriever, rag.Cascade, sysLogger)

	// 6. Controllers
	c.AuthController = controller.NewAuthController(authService)
	c.DocumentController = controller.NewDocumentController(documentService)
	c.ChatController = controller.NewChatController(chatService)
	c.SocketController = controller.NewIngestionSocketController(hub, documentService)

	return c, nil
}

// Close releases background resources in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	_ = c.Logger.Sync()
}
