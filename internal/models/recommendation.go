package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Recommendation is the single final pick for a (game, market) key. The
// composite unique index is the upsert target; DetectedAt is the monotonic
// guard so a stale rewrite never reverts a newer pick. Line and Price are
// copied from the bound snapshot so downstream consumers read one row.
type Recommendation struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	GameID     uint64 `gorm:"not null;uniqueIndex:idx_recommendations_key,priority:1"`
	MarketType string `gorm:"type:varchar(20);not null;uniqueIndex:idx_recommendations_key,priority:2"`

	Side       string         `gorm:"type:varchar(10);not null"`
	Confidence float64        `gorm:"not null;index"`
	SignalKind string         `gorm:"type:varchar(40);not null;index"`
	SignalID   uint64         `gorm:"not null"`
	Kinds      datatypes.JSON `gorm:"type:jsonb"`

	SnapshotID uint64          `gorm:"not null"`
	Line       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Price      int             `gorm:"not null"`

	HighConfidence bool `gorm:"not null;default:false;index"`

	DetectedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}
