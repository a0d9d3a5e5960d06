package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a fresh in-memory sqlite database pinned to a single
// connection, so every query sees the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, ConfigurePool(db, SQLitePoolConfig()))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// newTestBroker creates a migrated broker watching tube.
func newTestBroker(t *testing.T, db *gorm.DB, owner, tube string) *Broker {
	t.Helper()
	b := NewBroker(db, WithOwner(owner), WithPollInterval(5*time.Millisecond))
	require.NoError(t, b.Migrate(context.Background()), "migrate schema")
	if tube != "" {
		require.NoError(t, b.Watch(context.Background(), tube))
	}
	return b
}
