// Package scorer folds the detector candidates for one (game, market) key
// into a single ranked signal with a 0-100 confidence.
package scorer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"sharpline/internal/detector"
	"sharpline/internal/models"
)

// kindWeights orders the signal kinds by historical predictive weight.
// The ranking itself lives in models.AllSignalKinds; the side of the
// highest-ranked candidate wins when kinds disagree.
var kindWeights = map[string]float64{
	models.KindCrossMarketContradiction: 1.00,
	models.KindSteamMove:                0.95,
	models.KindSharpAction:              0.90,
	models.KindCrossSourceDisagreement:  0.85,
	models.KindCrossBookConflict:        0.80,
	models.KindReverseLineMovement:      0.75,
	models.KindPublicFade:               0.65,
	models.KindLateFlip:                 0.60,
}

// supportFactor scales how much a secondary candidate moves the aggregate,
// for it or against it.
const supportFactor = 0.2

// Priority is the rank of a kind, lower meaning stronger. Unknown kinds
// sort last.
func Priority(kind string) int {
	for i, k := range models.AllSignalKinds {
		if k == kind {
			return i
		}
	}
	return len(models.AllSignalKinds)
}

// Weight is the scoring weight of a kind.
func Weight(kind string) float64 {
	if w, ok := kindWeights[kind]; ok {
		return w
	}
	return 0.5
}

// Component records one candidate's contribution to the aggregate, kept on
// the signal row for audit.
type Component struct {
	Kind     string  `json:"kind"`
	Side     string  `json:"side"`
	Strength float64 `json:"strength"`
	Weighted float64 `json:"weighted"`
	Support  bool    `json:"support"`
}

// Result is the scored outcome for one key.
type Result struct {
	Side        string
	Confidence  float64
	LeadKind    string
	Kinds       []string
	SnapshotIDs []uint64
	DetectedAt  time.Time
	Components  []Component
	Reasoning   string
	Qualified   bool
	High        bool
}

// Scorer aggregates candidates under configurable qualification floors.
type Scorer struct {
	QualifyFloor float64
	HighFloor    float64
}

// Default returns a scorer with the stock floors.
func Default() Scorer {
	return Scorer{QualifyFloor: 75, HighFloor: 85}
}

// Score combines the candidates for one key. The winning side belongs to
// the highest-priority candidate; the strongest same-side candidate sets
// the base, every further same-side candidate adds a fraction of its own
// weighted strength, and every opposing candidate subtracts the same
// fraction. Returns nil when there is nothing to score.
func (s Scorer) Score(candidates []detector.Candidate) *Result {
	if len(candidates) == 0 {
		return nil
	}
	ordered := make([]detector.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return Priority(ordered[i].Kind) < Priority(ordered[j].Kind)
	})

	side := ordered[0].Side
	base := 0.0
	sumSame := 0.0
	oppose := 0.0
	res := &Result{
		Side:     side,
		LeadKind: ordered[0].Kind,
	}
	reasonings := make([]string, 0, len(ordered))
	idSet := make(map[uint64]struct{})
	for _, c := range ordered {
		weighted := Weight(c.Kind) * c.Strength
		onSide := c.Side == side
		if onSide {
			res.Kinds = append(res.Kinds, c.Kind)
			sumSame += weighted
			if weighted > base {
				base = weighted
			}
			reasonings = append(reasonings, c.Reasoning)
		} else {
			oppose += supportFactor * weighted
		}
		res.Components = append(res.Components, Component{
			Kind:     c.Kind,
			Side:     c.Side,
			Strength: c.Strength,
			Weighted: weighted,
			Support:  onSide,
		})
		for _, id := range c.SnapshotIDs {
			idSet[id] = struct{}{}
		}
		if c.DetectedAt.After(res.DetectedAt) {
			res.DetectedAt = c.DetectedAt
		}
	}

	// The strongest same-side candidate carries the base; the rest of the
	// side only nudges.
	confidence := base + supportFactor*(sumSame-base) - oppose
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	res.Confidence = confidence
	res.Qualified = confidence >= s.QualifyFloor
	res.High = confidence >= s.HighFloor

	res.SnapshotIDs = make([]uint64, 0, len(idSet))
	for id := range idSet {
		res.SnapshotIDs = append(res.SnapshotIDs, id)
	}
	sort.Slice(res.SnapshotIDs, func(i, j int) bool { return res.SnapshotIDs[i] < res.SnapshotIDs[j] })

	res.Reasoning = strings.Join(reasonings, "; ")
	if oppose > 0 {
		res.Reasoning = fmt.Sprintf("%s; opposed=%.1fpts", res.Reasoning, oppose)
	}
	return res
}

// Signal materializes the result as a row for one key.
func (r *Result) Signal(gameID uint64, marketType string) *models.Signal {
	idsJSON, _ := json.Marshal(r.SnapshotIDs)
	componentsJSON, _ := json.Marshal(r.Components)
	return &models.Signal{
		GameID:      gameID,
		MarketType:  marketType,
		Kind:        r.LeadKind,
		Side:        r.Side,
		Confidence:  r.Confidence,
		SnapshotIDs: datatypes.JSON(idsJSON),
		Components:  datatypes.JSON(componentsJSON),
		Reasoning:   r.Reasoning,
		DetectedAt:  r.DetectedAt,
	}
}
