package detector

import (
	"fmt"
	"sort"

	"sharpline/internal/models"
)

// CrossSourceDisagreementDetector fires when two independent data sources
// read opposite sharp sides from their own splits over the evaluation
// window. The stronger lean picks the recommended side; the weaker lean
// bounds how much the disagreement can be trusted, so it sets the
// strength.
type CrossSourceDisagreementDetector struct {
	Params Params
}

func (d *CrossSourceDisagreementDetector) Kind() string {
	return models.KindCrossSourceDisagreement
}

func (d *CrossSourceDisagreementDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) == 0 {
		return nil
	}

	latestBySource := make(map[string]models.OddsSnapshot)
	for _, s := range rows {
		prev, ok := latestBySource[s.Source]
		if !ok || s.ObservedAt.After(prev.ObservedAt) {
			latestBySource[s.Source] = s
		}
	}
	if len(latestBySource) < 2 {
		return nil
	}
	sources := make([]string, 0, len(latestBySource))
	for name := range latestBySource {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	type lean struct {
		source    string
		snap      models.OddsSnapshot
		disparity float64
	}
	var bestHome, bestAway *lean
	for _, name := range sources {
		snap := latestBySource[name]
		homeDisp := snap.MoneyPctHome - snap.TicketPctHome
		awayDisp := snap.MoneyPctAway - snap.TicketPctAway
		switch {
		case homeDisp >= d.Params.CrossSourceMinDisparity && homeDisp >= awayDisp:
			if bestHome == nil || homeDisp > bestHome.disparity {
				bestHome = &lean{source: name, snap: snap, disparity: homeDisp}
			}
		case awayDisp >= d.Params.CrossSourceMinDisparity:
			if bestAway == nil || awayDisp > bestAway.disparity {
				bestAway = &lean{source: name, snap: snap, disparity: awayDisp}
			}
		}
	}
	if bestHome == nil || bestAway == nil {
		return nil
	}

	winner, other := bestHome, bestAway
	side := homeSide(in.MarketType)
	if bestAway.disparity > bestHome.disparity {
		winner, other = bestAway, bestHome
		side = awaySide(in.MarketType)
	}

	strength := clampStrength(50 + 3*other.disparity)
	return &Candidate{
		Kind:        d.Kind(),
		Side:        side,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(winner.snap, other.snap),
		DetectedAt:  newestObserved(winner.snap, other.snap),
		Reasoning: fmt.Sprintf("cross_source_disagreement side=%s sources=%s|%s disparities=%.1f|%.1fpts",
			side, winner.source, other.source, winner.disparity, other.disparity),
	}
}
