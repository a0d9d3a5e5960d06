package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig sizes the *sql.DB pool behind a Broker. Zero durations mean
// no limit.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPoolConfig suits a server database shared by a few workers. A
// worker issues one broker command at a time plus the odd touch from a
// handler.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:     10,
		MaxIdle:     4,
		MaxLifetime: 5 * time.Minute,
		MaxIdleTime: time.Minute,
	}
}

// SQLitePoolConfig pins the pool to one connection. In-memory sqlite
// databases exist per connection, and file databases allow a single writer.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{MaxOpen: 1, MaxIdle: 1}
}

// ConfigurePool applies cfg to db's connection pool.
func ConfigurePool(db *gorm.DB, cfg PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)
	return nil
}

// OpenSQLite opens the sqlite database at dsn, pins its pool to a single
// connection and returns a migrated broker over it. Closing the broker
// closes the database.
//
// Example:
//
//	b, err := storage.OpenSQLite(ctx, "file:units.db?_busy_timeout=5000",
//	    storage.WithOwner(workerID),
//	)
func OpenSQLite(ctx context.Context, dsn string, opts ...BrokerOption) (*Broker, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: open database: %w", err)
	}

	b := NewBroker(db, opts...)
	if err := ConfigurePool(db, SQLitePoolConfig()); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.Migrate(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("jobs: migrate: %w", err)
	}
	return b, nil
}
