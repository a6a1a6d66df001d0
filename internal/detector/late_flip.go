package detector

import (
	"fmt"
	"time"

	"sharpline/internal/models"
)

// LateFlipDetector watches the tail of the pre-game span for the money
// lead changing sides. A flip that close to start usually means late
// respected money overruled the earlier read, so the new side is the one
// recommended.
type LateFlipDetector struct {
	Params Params
}

func (d *LateFlipDetector) Kind() string { return models.KindLateFlip }

func (d *LateFlipDetector) Evaluate(in Input) *Candidate {
	if in.StartsAt.IsZero() {
		return nil
	}
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) < 2 {
		return nil
	}

	span := time.Duration(d.Params.PregameHours * float64(time.Hour))
	lateStart := in.StartsAt.Add(-time.Duration(d.Params.LateWindowFraction * float64(span)))

	var boundary, latest *models.OddsSnapshot
	for i := range rows {
		s := &rows[i]
		if s.ObservedAt.Before(lateStart) {
			boundary = s
			continue
		}
		latest = s
	}
	if boundary == nil || latest == nil {
		return nil
	}

	before := moneyFavoredSide(*boundary)
	after := moneyFavoredSide(*latest)
	if before == "" || after == "" || before == after {
		return nil
	}
	side := awaySide(in.MarketType)
	leadPct := latest.MoneyPctAway
	if after == models.SideHome {
		side = homeSide(in.MarketType)
		leadPct = latest.MoneyPctHome
	}

	strength := clampStrength(50 + 3*(leadPct-50))
	return &Candidate{
		Kind:        d.Kind(),
		Side:        side,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(*boundary, *latest),
		DetectedAt:  latest.ObservedAt,
		Reasoning: fmt.Sprintf("late_flip side=%s money=%.1f%% flipped_within=%.1fh of start",
			side, leadPct, d.Params.LateWindowFraction*d.Params.PregameHours),
	}
}
