package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func getLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)
}

func configureConnectionPool(db *gorm.DB, maxOpen int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return nil
}

// Open connects with the named driver. sqlite is meant for local runs and tests;
// the vector store always needs postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", DriverPostgres:
		return NewGormDBFromDSN(dsn)
	case DriverSQLite:
		return NewSQLiteDB(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func NewGormDBFromDSN(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: getLogger(),
	})
	if err != nil {
		return nil, err
	}

	if err := configureConnectionPool(db, 100); err != nil {
		return nil, err
	}

	return db, nil
}

func NewSQLiteDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: getLogger(),
	})
	if err != nil {
		return nil, err
	}

	// sqlite serialises writers anyway
	if err := configureConnectionPool(db, 1); err != nil {
		return nil, err
	}

	return db, nil
}
