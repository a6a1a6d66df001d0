package models

import "time"

// GameOutcome attaches final results to a completed game, one row per game.
// Side results are precomputed per market at ingest so the backtester joins
// without re-deriving them from scores.
type GameOutcome struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	GameID uint64 `gorm:"not null;uniqueIndex"`

	HomeScore int `gorm:"not null"`
	AwayScore int `gorm:"not null"`

	MoneylineWinner string `gorm:"type:varchar(10);not null"`
	SpreadWinner    string `gorm:"type:varchar(10);not null"`
	TotalResult     string `gorm:"type:varchar(10);not null"`

	Source      string    `gorm:"type:varchar(50)"`
	CompletedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (GameOutcome) TableName() string {
	return "game_outcomes"
}
