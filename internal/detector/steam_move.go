package detector

import (
	"fmt"
	"time"

	"sharpline/internal/models"
)

// SteamMoveDetector fires when enough distinct books move the same market
// the same direction inside a short window. One book drifting is noise;
// four books snapping together is coordinated money. Strength scales with
// how many books joined the move.
type SteamMoveDetector struct {
	Params Params
}

func (d *SteamMoveDetector) Kind() string { return models.KindSteamMove }

func (d *SteamMoveDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) < 2 {
		return nil
	}
	books := byBook(rows)
	if len(books) < 2 {
		return nil
	}

	windowEnd := newestObserved(rows...)
	windowStart := windowEnd.Add(-time.Duration(d.Params.SteamWindowMinutes) * time.Minute)

	type move struct {
		first, last models.OddsSnapshot
	}
	moves := make(map[string][]move)
	for _, series := range books {
		inWindow := make([]models.OddsSnapshot, 0, len(series))
		for _, s := range series {
			if !s.ObservedAt.Before(windowStart) {
				inWindow = append(inWindow, s)
			}
		}
		if len(inWindow) < 2 {
			continue
		}
		first, last := inWindow[0], inWindow[len(inWindow)-1]
		side, _ := moveDirection(in.MarketType, first, last)
		if side == "" {
			continue
		}
		moves[side] = append(moves[side], move{first: first, last: last})
	}

	// Opposite moves splitting the books evenly is churn, not steam.
	side := ""
	best, tie := 0, false
	for _, s := range []string{homeSide(in.MarketType), awaySide(in.MarketType)} {
		switch n := len(moves[s]); {
		case n > best:
			best, side, tie = n, s, false
		case n == best && n > 0:
			tie = true
		}
	}
	if side == "" || tie || best < d.Params.SteamMinBooks {
		return nil
	}

	support := make([]models.OddsSnapshot, 0, 2*len(moves[side]))
	for _, m := range moves[side] {
		support = append(support, m.first, m.last)
	}
	strength := clampStrength(70 + 10*float64(len(moves[side])-d.Params.SteamMinBooks))
	return &Candidate{
		Kind:        d.Kind(),
		Side:        side,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(support...),
		DetectedAt:  newestObserved(support...),
		Reasoning: fmt.Sprintf("steam_move side=%s books=%d window=%dm",
			side, len(moves[side]), d.Params.SteamWindowMinutes),
	}
}
