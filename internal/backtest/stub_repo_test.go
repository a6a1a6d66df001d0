package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sharpline/internal/models"
	"sharpline/internal/repository"
)

// stubRepo is a test-only in-memory implementation of
// repository.Repository. RunAll hits it from several goroutines, so every
// touch of mutable state goes through the mutex.
type stubRepo struct {
	mu sync.Mutex

	games           []models.Game
	outcomes        map[uint64]models.GameOutcome
	snapshotsByGame map[uint64][]models.OddsSnapshot
	keys            []repository.SnapshotKey
	strategies      []models.Strategy
	recs            map[string]models.Recommendation

	backtests []models.BacktestResult
	reports   []models.AlignmentReport

	failSnapshotsFor map[uint64]error
	nextID           uint64
}

func recKey(gameID uint64, marketType string) string {
	return fmt.Sprintf("%d/%s", gameID, marketType)
}

func (s *stubRepo) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *stubRepo) UpsertGames(ctx context.Context, items []models.Game) error { return nil }

func (s *stubRepo) GetGameByID(ctx context.Context, id uint64) (*models.Game, error) {
	for i := range s.games {
		if s.games[i].ID == id {
			out := s.games[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetGamesByIDs(ctx context.Context, ids []uint64) (map[uint64]models.Game, error) {
	out := make(map[uint64]models.Game, len(ids))
	for _, id := range ids {
		for i := range s.games {
			if s.games[i].ID == id {
				out[id] = s.games[i]
			}
		}
	}
	return out, nil
}

func (s *stubRepo) ListGames(ctx context.Context, params repository.ListGamesParams) ([]models.Game, error) {
	var out []models.Game
	for _, g := range s.games {
		if params.Status != nil && g.Status != *params.Status {
			continue
		}
		if params.StartFrom != nil && g.ScheduledStart.Before(*params.StartFrom) {
			continue
		}
		if params.StartTo != nil && g.ScheduledStart.After(*params.StartTo) {
			continue
		}
		out = append(out, g)
	}
	if params.Offset >= len(out) {
		return nil, nil
	}
	out = out[params.Offset:]
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *stubRepo) ListGamesAwaitingOutcome(ctx context.Context, startedBefore time.Time, limit int) ([]models.Game, error) {
	return nil, nil
}

func (s *stubRepo) UpdateGameStatus(ctx context.Context, id uint64, status string) error { return nil }

func (s *stubRepo) UpsertGameOutcome(ctx context.Context, item *models.GameOutcome) error { return nil }

func (s *stubRepo) GetOutcomesByGameIDs(ctx context.Context, ids []uint64) (map[uint64]models.GameOutcome, error) {
	out := make(map[uint64]models.GameOutcome, len(ids))
	for _, id := range ids {
		if o, ok := s.outcomes[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (s *stubRepo) InsertOddsSnapshots(ctx context.Context, items []models.OddsSnapshot) error {
	return nil
}

func (s *stubRepo) ListSnapshotsForGame(ctx context.Context, gameID uint64, until time.Time) ([]models.OddsSnapshot, error) {
	if err, ok := s.failSnapshotsFor[gameID]; ok {
		return nil, err
	}
	var out []models.OddsSnapshot
	for _, snap := range s.snapshotsByGame[gameID] {
		if !snap.ObservedAt.After(until) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *stubRepo) ListSnapshotKeys(ctx context.Context, from, to time.Time) ([]repository.SnapshotKey, error) {
	return s.keys, nil
}

func (s *stubRepo) CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertSignal(ctx context.Context, item *models.Signal) error { return nil }

func (s *stubRepo) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	return nil, nil
}

func (s *stubRepo) CountSignalsByKind(ctx context.Context, since *time.Time) (map[string]int64, error) {
	return nil, nil
}

func (s *stubRepo) EnsureStrategy(ctx context.Context, item *models.Strategy) error { return nil }

func (s *stubRepo) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.strategies {
		if s.strategies[i].Name == name {
			out := s.strategies[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Strategy
	for _, st := range s.strategies {
		if params.Status != nil && st.Status != *params.Status {
			continue
		}
		if params.Kind != nil && st.Kind != *params.Kind {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *stubRepo) UpdateStrategyParams(ctx context.Context, name string, params []byte) error {
	return nil
}

func (s *stubRepo) UpdateStrategyBacktest(ctx context.Context, id uint64, winRate float64, roi decimal.Decimal, sampleSize int, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.strategies {
		if s.strategies[i].ID == id {
			s.strategies[i].WinRate = winRate
			s.strategies[i].ROI = roi
			s.strategies[i].SampleSize = sampleSize
			s.strategies[i].Status = status
			s.strategies[i].LastBacktestAt = &at
		}
	}
	return nil
}

func (s *stubRepo) SetStrategyStatus(ctx context.Context, name string, status string) error {
	return nil
}

func (s *stubRepo) CountStrategiesByStatus(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

func (s *stubRepo) UpsertRecommendation(ctx context.Context, item *models.Recommendation) (bool, error) {
	return false, nil
}

func (s *stubRepo) GetRecommendation(ctx context.Context, gameID uint64, marketType string) (*models.Recommendation, error) {
	if rec, ok := s.recs[recKey(gameID, marketType)]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *stubRepo) ListRecommendations(ctx context.Context, params repository.ListRecommendationsParams) ([]models.Recommendation, error) {
	var out []models.Recommendation
	for _, rec := range s.recs {
		if params.DetectedFrom != nil && rec.DetectedAt.Before(*params.DetectedFrom) {
			continue
		}
		if params.DetectedTo != nil && rec.DetectedAt.After(*params.DetectedTo) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRepo) CountRecommendations(ctx context.Context, params repository.ListRecommendationsParams) (int64, error) {
	return int64(len(s.recs)), nil
}

func (s *stubRepo) InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	s.backtests = append(s.backtests, *item)
	return nil
}

func (s *stubRepo) ListBacktestResults(ctx context.Context, params repository.ListBacktestResultsParams) ([]models.BacktestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BacktestResult, len(s.backtests))
	copy(out, s.backtests)
	return out, nil
}

func (s *stubRepo) InsertDetectionRun(ctx context.Context, item *models.DetectionRun) error {
	return nil
}

func (s *stubRepo) FinishDetectionRun(ctx context.Context, runID string, status string, keysTotal, keysQualified, keysDegraded int, finishedAt time.Time) error {
	return nil
}

func (s *stubRepo) GetDetectionRunByRunID(ctx context.Context, runID string) (*models.DetectionRun, error) {
	return nil, nil
}

func (s *stubRepo) ListDetectionRuns(ctx context.Context, params repository.ListDetectionRunsParams) ([]models.DetectionRun, error) {
	return nil, nil
}

func (s *stubRepo) MarkStaleDetectionRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertAlignmentReport(ctx context.Context, item *models.AlignmentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	s.reports = append(s.reports, *item)
	return nil
}

func (s *stubRepo) ListAlignmentReports(ctx context.Context, params repository.ListAlignmentReportsParams) ([]models.AlignmentReport, error) {
	return nil, nil
}
