package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market types carried by snapshots and downstream keys.
const (
	MarketMoneyline = "moneyline"
	MarketSpread    = "spread"
	MarketTotal     = "total"
)

// Sides. Totals reuse the two-slot layout: the home slot carries over and
// the away slot carries under.
const (
	SideHome  = "home"
	SideAway  = "away"
	SideOver  = "over"
	SideUnder = "under"
	SidePush  = "push"
)

// OddsSnapshot is one observation of a (game, market) at one book from one
// source. Append-only: rows are never mutated, deleted, or pre-aggregated;
// movement detectors need the full series. Line is home-relative for
// spreads, the posted total for totals, zero for moneylines. Prices are
// American odds per side.
type OddsSnapshot struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	GameID uint64 `gorm:"not null;index:idx_snapshots_key,priority:1"`

	Source     string `gorm:"type:varchar(50);not null;index"`
	Book       string `gorm:"type:varchar(50);not null;index"`
	MarketType string `gorm:"type:varchar(20);not null;index:idx_snapshots_key,priority:2"`

	TicketPctHome float64 `gorm:"not null"`
	TicketPctAway float64 `gorm:"not null"`
	MoneyPctHome  float64 `gorm:"not null"`
	MoneyPctAway  float64 `gorm:"not null"`

	Line      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	PriceHome int             `gorm:"not null"`
	PriceAway int             `gorm:"not null"`

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index:idx_snapshots_key,priority:3"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (OddsSnapshot) TableName() string {
	return "odds_snapshots"
}
