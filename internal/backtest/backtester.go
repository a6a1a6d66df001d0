// Package backtest replays historical snapshots through the detector set,
// grades the would-be picks against final game outcomes, and moves
// strategies through the candidate/active/retired lifecycle. The alignment
// validator in this package scores the live pipeline against the same
// replay machinery.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sharpline/internal/dedup"
	"sharpline/internal/detector"
	"sharpline/internal/models"
	"sharpline/internal/oddsmath"
	"sharpline/internal/repository"
	"sharpline/internal/retry"
	"sharpline/internal/scorer"
)

const (
	gradeWin  = "win"
	gradeLoss = "loss"
	gradePush = "push"
)

type Backtester struct {
	Repo   repository.Repository
	Logger *zap.Logger

	BaseParams detector.Params
	Scorer     scorer.Scorer
	Binder     dedup.Binder
	Retry      retry.Policy

	Stake       decimal.Decimal
	MinSample   int
	Parallelism int
}

// pick is one would-be recommendation produced by a replay.
type pick struct {
	marketType string
	res        *scorer.Result
	bound      *models.OddsSnapshot
}

// RunStrategy replays completed games in [from, to) through the full
// detector set under the strategy's merged params, grades the picks
// attributable to the strategy's kind, writes a BacktestResult, and moves
// the strategy's status through the promotion gate. Same inputs produce
// the same result row apart from run id and timestamps.
func (b *Backtester) RunStrategy(ctx context.Context, name string, from, to time.Time) (*models.BacktestResult, error) {
	if b == nil || b.Repo == nil {
		return nil, errors.New("backtester not configured")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("range end %s not after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	var strategy *models.Strategy
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		strategy, err = b.Repo.GetStrategyByName(ctx, name)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", name, err)
	}
	if strategy == nil {
		return nil, fmt.Errorf("strategy %q not found", name)
	}

	dets := detector.Set(b.BaseParams.Merge(json.RawMessage(strategy.Params)))

	games, err := b.listCompletedGames(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list completed games: %w", err)
	}

	gameIDs := make([]uint64, 0, len(games))
	for _, g := range games {
		gameIDs = append(gameIDs, g.ID)
	}
	var outcomes map[uint64]models.GameOutcome
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		outcomes, err = b.Repo.GetOutcomesByGameIDs(ctx, gameIDs)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}

	stake := b.stake()
	bets, wins, losses, pushes := 0, 0, 0, 0
	net := decimal.Zero
	alignCompared, alignAgreed := 0, 0

	// Replay is sequential and time-ordered so movement semantics match
	// the live pass.
	for _, game := range games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var snaps []models.OddsSnapshot
		if err := b.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			snaps, err = b.Repo.ListSnapshotsForGame(ctx, game.ID, to)
			return err
		}); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if b.Logger != nil {
				b.Logger.Warn("replay skipped game on snapshot fetch",
					zap.String("strategy", name),
					zap.Uint64("game_id", game.ID),
					zap.Error(err),
				)
			}
			continue
		}
		if len(snaps) == 0 {
			continue
		}

		for _, p := range replayGame(dets, b.Scorer, b.Binder, game, snaps) {
			if !containsKind(p.res.Kinds, strategy.Kind) {
				continue
			}

			if live := b.liveRecommendation(ctx, game.ID, p.marketType); live != nil {
				alignCompared++
				if live.Side == p.res.Side {
					alignAgreed++
				}
			}

			outcome, ok := outcomes[game.ID]
			if !ok {
				continue
			}
			result := grade(p.marketType, p.res.Side, outcome)
			if result == "" {
				continue
			}
			rec := b.Binder.Build(game.ID, p.marketType, p.res, 0, p.bound)
			switch result {
			case gradeWin:
				profit, err := oddsmath.FlatStakeProfit(stake, rec.Price)
				if err != nil {
					if b.Logger != nil {
						b.Logger.Warn("ungradable price in replay",
							zap.String("strategy", name),
							zap.Uint64("game_id", game.ID),
							zap.String("market", p.marketType),
							zap.Error(err),
						)
					}
					continue
				}
				bets++
				wins++
				net = net.Add(profit)
			case gradeLoss:
				bets++
				losses++
				net = net.Sub(stake)
			case gradePush:
				bets++
				pushes++
			}
		}
	}

	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}
	roi := decimal.Zero
	if bets > 0 {
		roi = net.Div(stake.Mul(decimal.NewFromInt(int64(bets))))
	}
	var alignScore *float64
	if alignCompared > 0 {
		score := 100 * float64(alignAgreed) / float64(alignCompared)
		alignScore = &score
	}
	status := nextStatus(strategy.Status, bets, b.minSample(), roi)

	row := &models.BacktestResult{
		RunID:          uuid.NewString(),
		StrategyID:     strategy.ID,
		RangeStart:     from,
		RangeEnd:       to,
		BetCount:       bets,
		WinCount:       wins,
		LossCount:      losses,
		PushCount:      pushes,
		StakeSize:      stake,
		NetProfit:      net,
		ROI:            roi,
		WinRate:        winRate,
		AlignmentScore: alignScore,
	}
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		return b.Repo.InsertBacktestResult(ctx, row)
	}); err != nil {
		return nil, fmt.Errorf("insert backtest result: %w", err)
	}
	at := time.Now().UTC()
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		return b.Repo.UpdateStrategyBacktest(ctx, strategy.ID, winRate, roi, bets, status, at)
	}); err != nil {
		return nil, fmt.Errorf("update strategy %s: %w", name, err)
	}

	if b.Logger != nil {
		b.Logger.Info("backtest finished",
			zap.String("strategy", name),
			zap.String("run_id", row.RunID),
			zap.Int("bets", bets),
			zap.Int("wins", wins),
			zap.Int("losses", losses),
			zap.Int("pushes", pushes),
			zap.String("roi", roi.String()),
			zap.String("status_before", strategy.Status),
			zap.String("status_after", status),
		)
	}
	return row, nil
}

// RunAll backtests every candidate and active strategy over the range,
// bounded-parallel across strategies. Retired strategies only re-enter
// through an explicit single-strategy run. One strategy failing is logged
// and skipped, never fatal to the sweep.
func (b *Backtester) RunAll(ctx context.Context, from, to time.Time) ([]models.BacktestResult, error) {
	if b == nil || b.Repo == nil {
		return nil, errors.New("backtester not configured")
	}
	var strategies []models.Strategy
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		strategies, err = b.Repo.ListStrategies(ctx, repository.ListStrategiesParams{})
		return err
	}); err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}

	sem := make(chan struct{}, b.parallelism())
	var (
		mu  sync.Mutex
		out []models.BacktestResult
		wg  sync.WaitGroup
	)
	for _, s := range strategies {
		if s.Status == models.StrategyStatusRetired {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			res, err := b.RunStrategy(ctx, name, from, to)
			if err != nil {
				if b.Logger != nil && ctx.Err() == nil {
					b.Logger.Warn("backtest failed", zap.String("strategy", name), zap.Error(err))
				}
				return
			}
			mu.Lock()
			out = append(out, *res)
			mu.Unlock()
		}(s.Name)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return out, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out, nil
}

// listCompletedGames pages through the range so long windows are not
// clipped by the store's listing cap. Replay order is start time with id
// as tiebreak.
func (b *Backtester) listCompletedGames(ctx context.Context, from, to time.Time) ([]models.Game, error) {
	const pageSize = 500
	completed := models.GameStatusCompleted
	asc := true
	var out []models.Game
	seen := make(map[uint64]struct{})
	for offset := 0; ; offset += pageSize {
		var page []models.Game
		if err := b.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = b.Repo.ListGames(ctx, repository.ListGamesParams{
				Limit:     pageSize,
				Offset:    offset,
				Status:    &completed,
				StartFrom: &from,
				StartTo:   &to,
				OrderBy:   "scheduled_start",
				Asc:       &asc,
			})
			return err
		}); err != nil {
			return nil, err
		}
		for _, g := range page {
			if _, ok := seen[g.ID]; ok {
				continue
			}
			seen[g.ID] = struct{}{}
			out = append(out, g)
		}
		if len(page) < pageSize {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ScheduledStart.Before(out[j].ScheduledStart)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// liveRecommendation is best-effort: a read failure only costs the
// alignment sample, never the bet.
func (b *Backtester) liveRecommendation(ctx context.Context, gameID uint64, marketType string) *models.Recommendation {
	var rec *models.Recommendation
	if err := b.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = b.Repo.GetRecommendation(ctx, gameID, marketType)
		return err
	}); err != nil {
		return nil
	}
	return rec
}

// replayGame runs the detector set over one game's full series and returns
// the would-be pick per market, exactly as the live pass would bind it.
func replayGame(dets []detector.Detector, sc scorer.Scorer, bind dedup.Binder, game models.Game, snaps []models.OddsSnapshot) []pick {
	var out []pick
	for _, market := range []string{models.MarketMoneyline, models.MarketSpread, models.MarketTotal} {
		in := detector.Input{
			GameID:     game.ID,
			MarketType: market,
			StartsAt:   game.ScheduledStart,
			Snapshots:  snaps,
		}
		var candidates []detector.Candidate
		for _, d := range dets {
			if c := d.Evaluate(in); c != nil {
				candidates = append(candidates, *c)
			}
		}
		res := sc.Score(candidates)
		if res == nil || !res.Qualified {
			continue
		}
		bound := bind.SelectSnapshot(snaps, market, game.ScheduledStart)
		if bound == nil {
			continue
		}
		out = append(out, pick{marketType: market, res: res, bound: bound})
	}
	return out
}

// grade settles one pick against the outcome row's precomputed side
// results. Empty string means the market is ungradable and the pick is not
// counted as a bet.
func grade(marketType, side string, outcome models.GameOutcome) string {
	var winner string
	switch marketType {
	case models.MarketMoneyline:
		winner = outcome.MoneylineWinner
	case models.MarketSpread:
		winner = outcome.SpreadWinner
	case models.MarketTotal:
		winner = outcome.TotalResult
	}
	switch winner {
	case "":
		return ""
	case models.SidePush:
		return gradePush
	case side:
		return gradeWin
	}
	return gradeLoss
}

// nextStatus is the promotion gate. Promotion and demotion both require a
// sufficient sample; a thin sample never demotes an active strategy, and a
// non-promoting run over a retired strategy re-opens it as candidate.
func nextStatus(current string, bets, minSample int, roi decimal.Decimal) string {
	sufficient := bets >= minSample
	switch {
	case sufficient && roi.GreaterThan(decimal.Zero):
		return models.StrategyStatusActive
	case sufficient && current == models.StrategyStatusActive:
		return models.StrategyStatusRetired
	case !sufficient && current == models.StrategyStatusActive:
		return models.StrategyStatusActive
	default:
		return models.StrategyStatusCandidate
	}
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (b *Backtester) stake() decimal.Decimal {
	if b.Stake.IsPositive() {
		return b.Stake
	}
	return decimal.NewFromInt(100)
}

func (b *Backtester) minSample() int {
	if b.MinSample > 0 {
		return b.MinSample
	}
	return 10
}

func (b *Backtester) parallelism() int {
	if b.Parallelism > 0 {
		return b.Parallelism
	}
	return 4
}
