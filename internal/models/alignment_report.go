package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlignmentReport scores live recommendations against a fresh replay of the
// same range. BelowFloor rows are the ones operators must look at: they mean
// live-data gaps or stale strategy thresholds.
type AlignmentReport struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	RangeStart time.Time `gorm:"type:timestamptz;not null;index"`
	RangeEnd   time.Time `gorm:"type:timestamptz;not null;index"`

	KeysCompared int     `gorm:"not null"`
	KeysAgreed   int     `gorm:"not null"`
	Score        float64 `gorm:"not null"`
	BelowFloor   bool    `gorm:"not null;default:false;index"`

	Breakdown datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AlignmentReport) TableName() string {
	return "alignment_reports"
}
