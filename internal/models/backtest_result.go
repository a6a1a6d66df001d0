package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestResult is one completed replay of a strategy over a date range.
// Money-like values stay numeric to avoid float drift in ROI comparisons.
type BacktestResult struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"type:varchar(36);uniqueIndex;not null"`
	StrategyID uint64 `gorm:"not null;index"`

	RangeStart time.Time `gorm:"type:timestamptz;not null;index"`
	RangeEnd   time.Time `gorm:"type:timestamptz;not null;index"`

	BetCount  int `gorm:"not null"`
	WinCount  int `gorm:"not null"`
	LossCount int `gorm:"not null"`
	PushCount int `gorm:"not null"`

	StakeSize decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	NetProfit decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ROI       decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	WinRate   float64         `gorm:"not null"`

	AlignmentScore *float64

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (BacktestResult) TableName() string {
	return "backtest_results"
}
