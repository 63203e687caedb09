package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat-be/internal/bootstrap"
	"docchat-be/internal/config"
	"docchat-be/internal/model"
	"docchat-be/internal/server"
	"docchat-be/internal/tracer"
	"docchat-be/pkg/database"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}
	if cfg.Database.Driver == database.DriverSQLite {
		// postgres is migrated by cmd/migrate
		if err := gormDB.AutoMigrate(model.All()...); err != nil {
			log.Panicf("Unable to migrate sqlite schema: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	// 4. Start Background Services
	if err := container.IngestionConsumer.Consume(ctx); err != nil {
		log.Panicf("Unable to start ingestion consumer: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	// 6. Wait for a signal or a listener failure
	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("Server stopped: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}
	}
}
