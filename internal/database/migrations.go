package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationEnableWriteAheadLog = "2026-10-02_enable_write_ahead_log"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var ledgerMigrations = []migrationDefinition{
	{name: migrationEnableWriteAheadLog, apply: enableWriteAheadLog},
}

// applyMigrations runs every migration not yet recorded in db_migrations, in declaration order.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	return runMigrations(db, ledgerMigrations, logger)
}

func runMigrations(db *gorm.DB, migrations []migrationDefinition, logger *zap.Logger) error {
	var appliedNames []string
	if err := db.Model(&migrationRecord{}).Pluck("name", &appliedNames).Error; err != nil {
		return err
	}
	applied := make(map[string]struct{}, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = struct{}{}
	}

	for _, migration := range migrations {
		if _, done := applied[migration.name]; done {
			continue
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		record := migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}
		if err := db.Create(&record).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// The journal mode is stored in the database file, so switching it once is enough.
// In-memory databases cannot use WAL and report "memory"; that is accepted.
func enableWriteAheadLog(db *gorm.DB) error {
	var mode string
	if err := db.Raw("PRAGMA journal_mode=WAL").Scan(&mode).Error; err != nil {
		return err
	}
	switch strings.ToLower(mode) {
	case "wal", "memory":
		return nil
	default:
		return fmt.Errorf("journal mode stayed %q", mode)
	}
}
