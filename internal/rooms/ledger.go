package rooms

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRecord is the durable trace of a room identifier. Room content is never stored.
type RoomRecord struct {
	RoomID            string `gorm:"column:room_id;primaryKey;size:190;not null"`
	Name              string `gorm:"column:name;size:512;not null"`
	Visibility        string `gorm:"column:visibility;size:16;not null;default:public"`
	CreatorID         string `gorm:"column:creator_id;size:190"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
	RetiredAtSeconds  int64  `gorm:"column:retired_at_s;not null;default:0;index"`
	FinalElementCount int    `gorm:"column:final_element_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (RoomRecord) TableName() string {
	return "room_ledger"
}

// IDLedger remembers every room identifier ever issued so identifiers are never reused.
type IDLedger interface {
	// Reserve claims record.RoomID. It reports false when the identifier was issued before.
	Reserve(ctx context.Context, record RoomRecord) (bool, error)
	// Retire stamps the retirement time and final element count of a destroyed room.
	Retire(ctx context.Context, record RoomRecord) error
}

// MemoryLedger is a process-local IDLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]RoomRecord
}

// NewMemoryLedger constructs an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]RoomRecord)}
}

func (l *MemoryLedger) Reserve(_ context.Context, record RoomRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[record.RoomID]; exists {
		return false, nil
	}
	l.records[record.RoomID] = record
	return true, nil
}

func (l *MemoryLedger) Retire(_ context.Context, record RoomRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, exists := l.records[record.RoomID]
	if !exists {
		stored = record
	}
	stored.RetiredAtSeconds = record.RetiredAtSeconds
	stored.FinalElementCount = record.FinalElementCount
	l.records[record.RoomID] = stored
	return nil
}

// Lookup returns the stored record for roomID.
func (l *MemoryLedger) Lookup(roomID string) (RoomRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[roomID]
	return record, ok
}

// GormLedger persists the ledger through GORM so identifiers survive restarts.
type GormLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormLedger wraps an opened database. The room_ledger table must already be migrated.
func NewGormLedger(db *gorm.DB, logger *zap.Logger) (*GormLedger, error) {
	if db == nil {
		return nil, newServiceError(opLedgerNew, "missing_database", errMissingDatabase)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormLedger{db: db, logger: logger}, nil
}

func (l *GormLedger) Reserve(ctx context.Context, record RoomRecord) (bool, error) {
	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (l *GormLedger) Retire(ctx context.Context, record RoomRecord) error {
	result := l.db.WithContext(ctx).
		Model(&RoomRecord{}).
		Where("room_id = ?", record.RoomID).
		Updates(map[string]any{
			"retired_at_s":        record.RetiredAtSeconds,
			"final_element_count": record.FinalElementCount,
		})
	if result.Error != nil {
		l.logger.Error("room ledger retire failed",
			zap.String("operation", opLedgerRetire),
			zap.String("room_id", record.RoomID),
			zap.Error(result.Error))
		return newServiceError(opLedgerRetire, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		l.logger.Warn("room ledger retire found no reservation", zap.String("room_id", record.RoomID))
	}
	return nil
}
