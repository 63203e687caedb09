package main

import (
	"context"
	"log"

	"docchat-be/internal/bootstrap"
	"docchat-be/internal/config"
	"docchat-be/internal/model"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Database.Connection == "" && cfg.Database.Driver != database.DriverSQLite {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	if cfg.Database.Driver != database.DriverSQLite {
		log.Println("Step 1: Setting up Extensions...")
		for _, sql := range []string{
			`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
			`CREATE EXTENSION IF NOT EXISTS vector;`,
		} {
			if err := db.Exec(sql).Error; err != nil {
				log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
			}
		}
	}

	// 4. AutoMigrate relational tables
	log.Println("Step 2: Running AutoMigrate...")
	if err := db.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Vector table and index
	log.Println("Step 3: Ensuring vector store schema...")
	if _, err := bootstrap.OpenVectorStore(context.Background(), cfg, db, logger.NewConsoleLogger(false)); err != nil {
		log.Fatalf("Error: vector store setup failed: %v", err)
	}

	log.Println("Success: Database migration completed.")
}
