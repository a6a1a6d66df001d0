// Package detector holds the signal detector family. Every detector is a
// pure function of the snapshot series for one game: no clock reads, no
// store access, no shared state, so any number of (game, market) keys can
// be evaluated in parallel and a re-run over the same rows produces the
// same candidates.
package detector

import (
	"encoding/json"
	"sort"
	"time"

	"sharpline/internal/models"
)

// Input carries everything a detector may read for one (game, market) key.
// Snapshots span the whole game (all markets, books, and sources) ordered
// oldest first; each detector filters down to the rows it needs. Detectors
// must not mutate the slice.
type Input struct {
	GameID     uint64
	MarketType string
	StartsAt   time.Time
	Snapshots  []models.OddsSnapshot
}

// Candidate is one detector's un-scored conclusion for a key. Strength is
// the raw 0-100 reading before the scorer weighs it against the other
// kinds. DetectedAt is the newest observed_at among the supporting
// snapshots, never the wall clock.
type Candidate struct {
	Kind        string
	Side        string
	Strength    float64
	SnapshotIDs []uint64
	DetectedAt  time.Time
	Reasoning   string
}

// Detector evaluates one key and returns nil when the data is insufficient
// or the threshold is not met. A nil result is the expected majority
// outcome, not an error.
type Detector interface {
	Kind() string
	Evaluate(in Input) *Candidate
}

// Params are the tunable thresholds shared by the family. Strategy rows
// override individual fields through Merge; everything else comes from
// config defaults.
type Params struct {
	SharpDisparityPts        float64 `json:"sharp_disparity_pts"`
	SharpMinMoneyPct         float64 `json:"sharp_min_money_pct"`
	SteamMinBooks            int     `json:"steam_min_books"`
	SteamWindowMinutes       int     `json:"steam_window_minutes"`
	CrossMarketDivergencePts float64 `json:"cross_market_divergence_pts"`
	CrossSourceMinDisparity  float64 `json:"cross_source_min_disparity"`
	CrossBookProbPts         float64 `json:"cross_book_prob_pts"`
	PublicFadeTicketPct      float64 `json:"public_fade_ticket_pct"`
	PublicFadeConfirmedPct   float64 `json:"public_fade_confirmed_pct"`
	LateWindowFraction       float64 `json:"late_window_fraction"`
	PregameHours             float64 `json:"pregame_hours"`
}

// DefaultParams returns the stock thresholds.
func DefaultParams() Params {
	return Params{
		SharpDisparityPts:        20,
		SharpMinMoneyPct:         55,
		SteamMinBooks:            4,
		SteamWindowMinutes:       30,
		CrossMarketDivergencePts: 15,
		CrossSourceMinDisparity:  5,
		CrossBookProbPts:         8,
		PublicFadeTicketPct:      65,
		PublicFadeConfirmedPct:   60,
		LateWindowFraction:       0.20,
		PregameHours:             24,
	}
}

// Merge overlays non-null fields of a strategy's params blob onto p and
// returns the result. Malformed JSON leaves p unchanged.
func (p Params) Merge(raw json.RawMessage) Params {
	var in struct {
		SharpDisparityPts        *float64 `json:"sharp_disparity_pts"`
		SharpMinMoneyPct         *float64 `json:"sharp_min_money_pct"`
		SteamMinBooks            *int     `json:"steam_min_books"`
		SteamWindowMinutes       *int     `json:"steam_window_minutes"`
		CrossMarketDivergencePts *float64 `json:"cross_market_divergence_pts"`
		CrossSourceMinDisparity  *float64 `json:"cross_source_min_disparity"`
		CrossBookProbPts         *float64 `json:"cross_book_prob_pts"`
		PublicFadeTicketPct      *float64 `json:"public_fade_ticket_pct"`
		PublicFadeConfirmedPct   *float64 `json:"public_fade_confirmed_pct"`
		LateWindowFraction       *float64 `json:"late_window_fraction"`
		PregameHours             *float64 `json:"pregame_hours"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &in)
	}
	if in.SharpDisparityPts != nil {
		p.SharpDisparityPts = *in.SharpDisparityPts
	}
	if in.SharpMinMoneyPct != nil {
		p.SharpMinMoneyPct = *in.SharpMinMoneyPct
	}
	if in.SteamMinBooks != nil {
		p.SteamMinBooks = *in.SteamMinBooks
	}
	if in.SteamWindowMinutes != nil {
		p.SteamWindowMinutes = *in.SteamWindowMinutes
	}
	if in.CrossMarketDivergencePts != nil {
		p.CrossMarketDivergencePts = *in.CrossMarketDivergencePts
	}
	if in.CrossSourceMinDisparity != nil {
		p.CrossSourceMinDisparity = *in.CrossSourceMinDisparity
	}
	if in.CrossBookProbPts != nil {
		p.CrossBookProbPts = *in.CrossBookProbPts
	}
	if in.PublicFadeTicketPct != nil {
		p.PublicFadeTicketPct = *in.PublicFadeTicketPct
	}
	if in.PublicFadeConfirmedPct != nil {
		p.PublicFadeConfirmedPct = *in.PublicFadeConfirmedPct
	}
	if in.LateWindowFraction != nil {
		p.LateWindowFraction = *in.LateWindowFraction
	}
	if in.PregameHours != nil {
		p.PregameHours = *in.PregameHours
	}
	return p
}

// Set returns the whole family in scoring-priority order, all sharing p.
func Set(p Params) []Detector {
	return []Detector{
		&CrossMarketContradictionDetector{Params: p},
		&SteamMoveDetector{Params: p},
		&SharpActionDetector{Params: p},
		&CrossSourceDisagreementDetector{Params: p},
		&CrossBookConflictDetector{Params: p},
		&ReverseLineMovementDetector{Params: p},
		&PublicFadeDetector{Params: p},
		&LateFlipDetector{Params: p},
	}
}

// ForKind returns the single detector governing a signal kind, or nil for
// an unknown kind.
func ForKind(kind string, p Params) Detector {
	switch kind {
	case models.KindCrossMarketContradiction:
		return &CrossMarketContradictionDetector{Params: p}
	case models.KindSteamMove:
		return &SteamMoveDetector{Params: p}
	case models.KindSharpAction:
		return &SharpActionDetector{Params: p}
	case models.KindCrossSourceDisagreement:
		return &CrossSourceDisagreementDetector{Params: p}
	case models.KindCrossBookConflict:
		return &CrossBookConflictDetector{Params: p}
	case models.KindReverseLineMovement:
		return &ReverseLineMovementDetector{Params: p}
	case models.KindPublicFade:
		return &PublicFadeDetector{Params: p}
	case models.KindLateFlip:
		return &LateFlipDetector{Params: p}
	default:
		return nil
	}
}

// filterMarket keeps only the rows of one market type, preserving order.
func filterMarket(snaps []models.OddsSnapshot, marketType string) []models.OddsSnapshot {
	out := make([]models.OddsSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.MarketType == marketType {
			out = append(out, s)
		}
	}
	return out
}

// byBook groups rows per book, each group keeping its time order.
func byBook(snaps []models.OddsSnapshot) map[string][]models.OddsSnapshot {
	out := make(map[string][]models.OddsSnapshot)
	for _, s := range snaps {
		out[s.Book] = append(out[s.Book], s)
	}
	return out
}

// homeSide maps the home slot to the market's side label; totals carry
// over in the home slot and under in the away slot.
func homeSide(marketType string) string {
	if marketType == models.MarketTotal {
		return models.SideOver
	}
	return models.SideHome
}

func awaySide(marketType string) string {
	if marketType == models.MarketTotal {
		return models.SideUnder
	}
	return models.SideAway
}

func clampStrength(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// snapshotIDs collects the distinct ids of the supporting rows, ascending.
func snapshotIDs(snaps ...models.OddsSnapshot) []uint64 {
	seen := make(map[uint64]struct{}, len(snaps))
	out := make([]uint64, 0, len(snaps))
	for _, s := range snaps {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newestObserved is the latest observed_at among the supporting rows.
func newestObserved(snaps ...models.OddsSnapshot) time.Time {
	var t time.Time
	for _, s := range snaps {
		if s.ObservedAt.After(t) {
			t = s.ObservedAt
		}
	}
	return t
}
