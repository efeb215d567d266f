package reconcile

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PassRecord is one reconciliation pass as stored in the history database.
type PassRecord struct {
	ID         uint      `gorm:"primarykey"`
	Direction  string    `gorm:"index;not null"`
	Trigger    string    `gorm:"not null"`
	StartedAt  time.Time `gorm:"index;not null"`
	DurationMS int64     `gorm:"not null"`
	Success    bool      `gorm:"not null"`
	CreatedAt  time.Time
}

// History records reconciliation passes in a sqlite database under the state
// dotdir. Purely diagnostic: a broken history DB never blocks syncing.
type History struct {
	db *gorm.DB
}

func OpenHistory(dbPath string) (*History, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := db.AutoMigrate(&PassRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Record(rec PassRecord) error {
	return h.db.Create(&rec).Error
}

// Recent returns the newest passes, most recent first.
func (h *History) Recent(limit int) ([]PassRecord, error) {
	var recs []PassRecord
	err := h.db.Order("started_at desc").Limit(limit).Find(&recs).Error
	return recs, err
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
