package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// setupTestDB creates an isolated in-memory SQLite database. Each test gets
// its own named shared-cache database and a single connection so every query
// sees the same data.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gorm_logger.Default.LogMode(gorm_logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.Person{},
		&entities.Vehicle{},
		&entities.WatchRule{},
		&entities.WatchAlert{},
	), "failed to migrate tables")
	return db
}
