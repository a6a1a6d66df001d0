package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sharpline/internal/client/scores"
	"sharpline/internal/config"
	"sharpline/internal/models"
	"sharpline/internal/repository"
	"sharpline/internal/retry"
)

// OutcomeIngestService polls the scores feed for games past their start,
// attaches a GameOutcome row with per-market side results, and flips the
// game's status. Detection and backtesting read outcomes only from the
// store, never from the feed.
type OutcomeIngestService struct {
	Repo   repository.Repository
	Scores *scores.Client
	Config config.OutcomeIngestConfig
	Logger *zap.Logger
	Retry  retry.Policy
}

func (s *OutcomeIngestService) Run(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Scores == nil {
		return nil
	}
	interval := s.Config.PollInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	// Run once on start.
	_ = s.runOnceIfEnabled(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.runOnceIfEnabled(ctx)
		}
	}
}

func (s *OutcomeIngestService) runOnceIfEnabled(ctx context.Context) error {
	if !s.Config.Enabled {
		return nil
	}
	return s.RunOnce(ctx)
}

func (s *OutcomeIngestService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Scores == nil {
		return nil
	}
	now := time.Now().UTC()
	grace := s.Config.GracePeriod
	if grace <= 0 {
		grace = 3 * time.Hour
	}
	batch := s.Config.BatchSize
	if batch <= 0 || batch > 500 {
		batch = 100
	}
	cutoff := now.Add(-grace)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var games []models.Game
		if err := s.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			games, err = s.Repo.ListGamesAwaitingOutcome(ctx, cutoff, batch)
			return err
		}); err != nil {
			s.logWarn("list games awaiting outcome failed", err)
			return err
		}
		if len(games) == 0 {
			return nil
		}

		ids := make([]string, 0, len(games))
		for _, g := range games {
			if g.ExternalID != "" {
				ids = append(ids, g.ExternalID)
			}
		}
		var results []scores.GameScore
		if err := s.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			results, err = s.Scores.GetScores(ctx, ids)
			return err
		}); err != nil {
			s.logWarn("scores fetch failed", err)
			return err
		}
		byID := make(map[string]scores.GameScore, len(results))
		for _, r := range results {
			byID[r.ExternalID] = r
		}

		flipped := 0
		for _, game := range games {
			result, ok := byID[game.ExternalID]
			if !ok {
				// Feed has nothing final yet; next pass retries.
				continue
			}
			switch result.Status {
			case scores.StatusCompleted:
				if err := s.ingestCompleted(ctx, game, result, now); err != nil {
					s.logWarn("outcome ingest failed", err,
						zap.Uint64("game_id", game.ID),
						zap.String("external_id", game.ExternalID),
					)
					continue
				}
				flipped++
			case scores.StatusCancelled:
				if err := s.Retry.Do(ctx, func(ctx context.Context) error {
					return s.Repo.UpdateGameStatus(ctx, game.ID, models.GameStatusCancelled)
				}); err != nil {
					s.logWarn("game status update failed", err, zap.Uint64("game_id", game.ID))
					continue
				}
				flipped++
			}
		}
		if s.Logger != nil && flipped > 0 {
			s.Logger.Info("outcome ingest pass",
				zap.Int("games_checked", len(games)),
				zap.Int("games_flipped", flipped),
			)
		}
		// A full batch with no flips means everything left is still
		// pending; looping again would refetch the same rows.
		if len(games) < batch || flipped == 0 {
			return nil
		}
	}
}

func (s *OutcomeIngestService) ingestCompleted(ctx context.Context, game models.Game, result scores.GameScore, now time.Time) error {
	until := game.ScheduledStart
	if until.IsZero() {
		until = now
	}
	var snaps []models.OddsSnapshot
	if err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		snaps, err = s.Repo.ListSnapshotsForGame(ctx, game.ID, until)
		return err
	}); err != nil {
		return fmt.Errorf("closing lines: %w", err)
	}
	spreadLine, totalLine := closingLines(snaps)

	completedAt := now
	if result.CompletedAt != nil && !result.CompletedAt.IsZero() {
		completedAt = result.CompletedAt.UTC()
	}
	outcome := &models.GameOutcome{
		GameID:          game.ID,
		HomeScore:       result.HomeScore,
		AwayScore:       result.AwayScore,
		MoneylineWinner: moneylineWinner(result.HomeScore, result.AwayScore),
		SpreadWinner:    spreadWinner(result.HomeScore, result.AwayScore, spreadLine),
		TotalResult:     totalResult(result.HomeScore, result.AwayScore, totalLine),
		Source:          "scores",
		CompletedAt:     completedAt,
	}
	if err := s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Repo.UpsertGameOutcome(ctx, outcome)
	}); err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	if err := s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Repo.UpdateGameStatus(ctx, game.ID, models.GameStatusCompleted)
	}); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// closingLines picks each market's last pregame line from the game's
// series. Snapshots arrive ordered oldest first.
func closingLines(snaps []models.OddsSnapshot) (spread, total *decimal.Decimal) {
	for i := range snaps {
		switch snaps[i].MarketType {
		case models.MarketSpread:
			spread = &snaps[i].Line
		case models.MarketTotal:
			total = &snaps[i].Line
		}
	}
	return spread, total
}

func moneylineWinner(home, away int) string {
	switch {
	case home > away:
		return models.SideHome
	case away > home:
		return models.SideAway
	}
	return models.SidePush
}

// spreadWinner grades the home-relative closing line: negative means home
// is favored by that many points, so home covers when final margin plus
// line is positive. An empty result means no closing line was captured and
// the market is ungradable.
func spreadWinner(home, away int, line *decimal.Decimal) string {
	if line == nil {
		return ""
	}
	adj := decimal.NewFromInt(int64(home - away)).Add(*line)
	switch {
	case adj.IsPositive():
		return models.SideHome
	case adj.IsNegative():
		return models.SideAway
	}
	return models.SidePush
}

func totalResult(home, away int, line *decimal.Decimal) string {
	if line == nil {
		return ""
	}
	switch decimal.NewFromInt(int64(home + away)).Cmp(*line) {
	case 1:
		return models.SideOver
	case -1:
		return models.SideUnder
	}
	return models.SidePush
}

func (s *OutcomeIngestService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
