package models

import (
	"time"

	"gorm.io/datatypes"
)

// Signal kinds, strongest-first per the scorer's priority table.
const (
	KindCrossMarketContradiction = "cross_market_contradiction"
	KindSteamMove                = "steam_move"
	KindSharpAction              = "sharp_action"
	KindCrossSourceDisagreement  = "cross_source_disagreement"
	KindCrossBookConflict        = "cross_book_conflict"
	KindReverseLineMovement      = "reverse_line_movement"
	KindPublicFade               = "public_fade"
	KindLateFlip                 = "late_flip"
)

// AllSignalKinds lists every kind, strongest first.
var AllSignalKinds = []string{
	KindCrossMarketContradiction,
	KindSteamMove,
	KindSharpAction,
	KindCrossSourceDisagreement,
	KindCrossBookConflict,
	KindReverseLineMovement,
	KindPublicFade,
	KindLateFlip,
}

// Signal is a scored detection for one (game, market) key. Candidates live
// in memory only; a row is written once the scorer qualifies the key.
// DetectedAt comes from the newest supporting snapshot, not the wall clock,
// so re-running a window yields the same rows.
type Signal struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	GameID     uint64 `gorm:"not null;uniqueIndex:idx_signals_dedup,priority:1"`
	MarketType string `gorm:"type:varchar(20);not null;uniqueIndex:idx_signals_dedup,priority:2"`
	Kind       string `gorm:"type:varchar(40);not null;index;uniqueIndex:idx_signals_dedup,priority:3"`

	Side       string  `gorm:"type:varchar(10);not null"`
	Confidence float64 `gorm:"not null"`

	SnapshotIDs datatypes.JSON `gorm:"type:jsonb"`
	Components  datatypes.JSON `gorm:"type:jsonb"`
	Reasoning   string         `gorm:"type:text"`

	DetectedAt time.Time `gorm:"type:timestamptz;not null;index;uniqueIndex:idx_signals_dedup,priority:4"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Signal) TableName() string {
	return "signals"
}
