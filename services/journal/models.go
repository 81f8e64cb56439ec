package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one persisted leaderboard event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	Wallet     string    `gorm:"size:96;index"`
	Caller     string    `gorm:"size:96"`
	Score      string    `gorm:"size:80"`
	Outcome    string    `gorm:"size:32"`
	Attributes string    `gorm:"type:text"`
	Digest     string    `gorm:"size:64;uniqueIndex"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Record) TableName() string { return "leaderboard_events" }

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}
