package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations for the room ledger.
func OpenSQLite(path string, zapLogger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&rooms.RoomRecord{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := retireOrphanedRooms(db); err != nil && zapLogger != nil {
		zapLogger.Warn("orphaned room retirement failed", zap.Error(err))
	}

	if err := applyMigrations(db, zapLogger); err != nil {
		return nil, err
	}

	if zapLogger != nil {
		zapLogger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Rooms never survive a restart, so reservations left open by the previous process are stamped
// retired at their creation time.
func retireOrphanedRooms(db *gorm.DB) error {
	return db.Model(&rooms.RoomRecord{}).
		Where("retired_at_s = 0").
		Update("retired_at_s", gorm.Expr("created_at_s")).Error
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
