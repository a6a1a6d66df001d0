// Package dedup selects the single snapshot that stands for a (game,
// market) key at decision time and binds it to the scored signal. It reads
// the snapshot series and never rewrites it; the full history stays in
// place for the movement detectors.
package dedup

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"sharpline/internal/models"
	"sharpline/internal/scorer"
)

// Binder picks the official snapshot for a key.
type Binder struct {
	// TargetOffset is how long before scheduled start the official
	// reading should sit.
	TargetOffset time.Duration
}

// Default returns a binder at the stock five minute offset.
func Default() Binder {
	return Binder{TargetOffset: 5 * time.Minute}
}

// SelectSnapshot returns the key's snapshot whose distance from start is
// closest to the target offset, most recent first on ties. Nil when the
// key has no rows.
func (b Binder) SelectSnapshot(snaps []models.OddsSnapshot, marketType string, startsAt time.Time) *models.OddsSnapshot {
	var best *models.OddsSnapshot
	var bestDist time.Duration
	for i := range snaps {
		s := &snaps[i]
		if s.MarketType != marketType {
			continue
		}
		dist := startsAt.Sub(s.ObservedAt) - b.TargetOffset
		if dist < 0 {
			dist = -dist
		}
		switch {
		case best == nil, dist < bestDist:
			best, bestDist = s, dist
		case dist == bestDist && s.ObservedAt.After(best.ObservedAt):
			best = s
		}
	}
	return best
}

// Build assembles the recommendation row from the scored result and the
// bound snapshot. The bound side's price and the line are copied onto the
// row so consumers do not have to join back to the series.
func (b Binder) Build(gameID uint64, marketType string, res *scorer.Result, signalID uint64, bound *models.OddsSnapshot) *models.Recommendation {
	if res == nil || bound == nil {
		return nil
	}
	kindsJSON, _ := json.Marshal(res.Kinds)
	return &models.Recommendation{
		GameID:         gameID,
		MarketType:     marketType,
		Side:           res.Side,
		Confidence:     res.Confidence,
		SignalKind:     res.LeadKind,
		SignalID:       signalID,
		Kinds:          datatypes.JSON(kindsJSON),
		SnapshotID:     bound.ID,
		Line:           bound.Line,
		Price:          priceForSide(*bound, res.Side),
		HighConfidence: res.High,
		DetectedAt:     res.DetectedAt,
	}
}

// priceForSide maps a recommended side to its slot on the snapshot; over
// rides the home slot and under the away slot.
func priceForSide(s models.OddsSnapshot, side string) int {
	switch side {
	case models.SideHome, models.SideOver:
		return s.PriceHome
	default:
		return s.PriceAway
	}
}
