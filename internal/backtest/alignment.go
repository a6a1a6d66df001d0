package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sharpline/internal/dedup"
	"sharpline/internal/detector"
	"sharpline/internal/models"
	"sharpline/internal/repository"
	"sharpline/internal/retry"
	"sharpline/internal/scorer"
)

// Validator scores the picks the live pipeline stored for a window against
// a fresh offline replay of the same window under the currently active
// strategies. A key recommended on only one side of the comparison counts
// as disagreement; that asymmetry is the live-data-gap case the score
// exists to catch.
type Validator struct {
	Repo   repository.Repository
	Logger *zap.Logger

	BaseParams detector.Params
	Scorer     scorer.Scorer
	Binder     dedup.Binder
	Retry      retry.Policy

	Floor float64
}

type disagreement struct {
	GameID     uint64 `json:"game_id"`
	MarketType string `json:"market_type"`
	LiveSide   string `json:"live_side,omitempty"`
	ReplaySide string `json:"replay_side,omitempty"`
}

// Run recomputes would-be recommendations for the window, compares them
// with the stored ones, and persists an AlignmentReport. Sub-floor scores
// are flagged on the row and logged at warn, never swallowed.
func (v *Validator) Run(ctx context.Context, from, to time.Time) (*models.AlignmentReport, error) {
	if v == nil || v.Repo == nil {
		return nil, errors.New("alignment validator not configured")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("range end %s not after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	dets, err := v.activeDetectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active strategies: %w", err)
	}

	replayByKey, err := v.replayWindow(ctx, dets, from, to)
	if err != nil {
		return nil, err
	}

	var live []models.Recommendation
	if err := v.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		live, err = v.Repo.ListRecommendations(ctx, repository.ListRecommendationsParams{
			DetectedFrom: &from,
			DetectedTo:   &to,
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("list live recommendations: %w", err)
	}
	liveByKey := make(map[repository.SnapshotKey]string, len(live))
	for _, rec := range live {
		liveByKey[repository.SnapshotKey{GameID: rec.GameID, MarketType: rec.MarketType}] = rec.Side
	}

	union := make(map[repository.SnapshotKey]struct{}, len(liveByKey)+len(replayByKey))
	for k := range liveByKey {
		union[k] = struct{}{}
	}
	for k := range replayByKey {
		union[k] = struct{}{}
	}
	keys := make([]repository.SnapshotKey, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].GameID != keys[j].GameID {
			return keys[i].GameID < keys[j].GameID
		}
		return keys[i].MarketType < keys[j].MarketType
	})

	agreed := 0
	var diffs []disagreement
	for _, k := range keys {
		liveSide, liveOK := liveByKey[k]
		replaySide, replayOK := replayByKey[k]
		if liveOK && replayOK && liveSide == replaySide {
			agreed++
			continue
		}
		diffs = append(diffs, disagreement{
			GameID:     k.GameID,
			MarketType: k.MarketType,
			LiveSide:   liveSide,
			ReplaySide: replaySide,
		})
	}

	score := 100.0
	if len(keys) > 0 {
		score = 100 * float64(agreed) / float64(len(keys))
	}
	report := &models.AlignmentReport{
		RangeStart:   from,
		RangeEnd:     to,
		KeysCompared: len(keys),
		KeysAgreed:   agreed,
		Score:        score,
		BelowFloor:   len(keys) > 0 && score < v.floor(),
	}
	if len(diffs) > 0 {
		raw, _ := json.Marshal(diffs)
		report.Breakdown = datatypes.JSON(raw)
	}
	if err := v.Retry.Do(ctx, func(ctx context.Context) error {
		return v.Repo.InsertAlignmentReport(ctx, report)
	}); err != nil {
		return nil, fmt.Errorf("insert alignment report: %w", err)
	}

	if v.Logger != nil {
		if report.BelowFloor {
			v.Logger.Warn("alignment below floor",
				zap.Float64("score", score),
				zap.Float64("floor", v.floor()),
				zap.Int("keys_compared", len(keys)),
				zap.Int("keys_agreed", agreed),
				zap.Time("range_start", from),
				zap.Time("range_end", to),
			)
		} else {
			v.Logger.Info("alignment computed",
				zap.Float64("score", score),
				zap.Int("keys_compared", len(keys)),
				zap.Int("keys_agreed", agreed),
			)
		}
	}
	return report, nil
}

// replayWindow reproduces the live pass offline: same key listing, same
// detector set, same scorer and binder. A game whose series cannot be read
// drops out of the replay and surfaces as disagreement on its live keys.
func (v *Validator) replayWindow(ctx context.Context, dets []detector.Detector, from, to time.Time) (map[repository.SnapshotKey]string, error) {
	out := make(map[repository.SnapshotKey]string)
	if len(dets) == 0 {
		return out, nil
	}

	var keys []repository.SnapshotKey
	if err := v.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		keys, err = v.Repo.ListSnapshotKeys(ctx, from, to)
		return err
	}); err != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", err)
	}
	if len(keys) == 0 {
		return out, nil
	}

	gameIDs := make([]uint64, 0, len(keys))
	seen := make(map[uint64]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.GameID]; ok {
			continue
		}
		seen[k.GameID] = struct{}{}
		gameIDs = append(gameIDs, k.GameID)
	}
	var games map[uint64]models.Game
	if err := v.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		games, err = v.Repo.GetGamesByIDs(ctx, gameIDs)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}

	for _, id := range gameIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		game, ok := games[id]
		if !ok {
			continue
		}
		var snaps []models.OddsSnapshot
		if err := v.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			snaps, err = v.Repo.ListSnapshotsForGame(ctx, id, to)
			return err
		}); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if v.Logger != nil {
				v.Logger.Warn("alignment replay skipped game",
					zap.Uint64("game_id", id),
					zap.Error(err),
				)
			}
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		for _, p := range replayGame(dets, v.Scorer, v.Binder, game, snaps) {
			out[repository.SnapshotKey{GameID: id, MarketType: p.marketType}] = p.res.Side
		}
	}
	return out, nil
}

// activeDetectors mirrors the live engine's construction: one detector per
// active strategy, strategy params merged over base, priority ordered.
func (v *Validator) activeDetectors(ctx context.Context) ([]detector.Detector, error) {
	status := models.StrategyStatusActive
	var strategies []models.Strategy
	if err := v.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		strategies, err = v.Repo.ListStrategies(ctx, repository.ListStrategiesParams{Status: &status})
		return err
	}); err != nil {
		return nil, err
	}
	byKind := make(map[string]detector.Detector, len(strategies))
	for _, s := range strategies {
		if _, ok := byKind[s.Kind]; ok {
			continue
		}
		if d := detector.ForKind(s.Kind, v.BaseParams.Merge(json.RawMessage(s.Params))); d != nil {
			byKind[s.Kind] = d
		}
	}
	out := make([]detector.Detector, 0, len(byKind))
	for _, kind := range models.AllSignalKinds {
		if d, ok := byKind[kind]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (v *Validator) floor() float64 {
	if v.Floor > 0 {
		return v.Floor
	}
	return 70
}
