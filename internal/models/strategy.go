package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Strategy statuses.
const (
	StrategyStatusCandidate = "candidate"
	StrategyStatusActive    = "active"
	StrategyStatusRetired   = "retired"
)

// Strategy binds one signal kind to threshold params and its backtested
// track record. Only active strategies may auto-produce recommendations;
// promotion and demotion go through the backtester, never by hand.
type Strategy struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(50);uniqueIndex;not null"`
	Kind string `gorm:"type:varchar(40);not null;index"`

	Status string         `gorm:"type:varchar(20);not null;index;default:'candidate'"`
	Params datatypes.JSON `gorm:"type:jsonb;not null"`

	WinRate    float64         `gorm:"not null;default:0"`
	ROI        decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	SampleSize int             `gorm:"not null;default:0"`

	LastBacktestAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
