package models

import "time"

// Game statuses.
const (
	GameStatusScheduled = "scheduled"
	GameStatusCompleted = "completed"
	GameStatusCancelled = "cancelled"
)

// Game is one scheduled matchup. Rows arrive from the collection pipeline;
// this service only flips status and attaches outcomes after completion.
type Game struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ExternalID string `gorm:"type:varchar(100);uniqueIndex;not null"`
	League     string `gorm:"type:varchar(30);index"`

	HomeTeam string `gorm:"type:varchar(100);not null"`
	AwayTeam string `gorm:"type:varchar(100);not null"`

	ScheduledStart time.Time `gorm:"type:timestamptz;not null;index"`
	Status         string    `gorm:"type:varchar(20);not null;index;default:'scheduled'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Game) TableName() string {
	return "games"
}
