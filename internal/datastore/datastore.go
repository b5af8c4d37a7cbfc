// Package datastore opens the gorm database that backs watch rules,
// alert history and the entity catalog.
package datastore

import (
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Models lists every table managed by watchpost, in migration order.
func Models() []any {
	return []any{
		&entities.Person{},
		&entities.Vehicle{},
		&entities.WatchRule{},
		&entities.WatchAlert{},
	}
}

// Open connects to the configured database and migrates the schema.
func Open(cfg conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case conf.DriverSQLite:
		dialector = sqlite.Open(cfg.Path)
	case conf.DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == conf.DriverSQLite {
		// One writer keeps shared-cache in-memory databases consistent.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
