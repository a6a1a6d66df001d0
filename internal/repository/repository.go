package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sharpline/internal/models"
)

// SnapshotKey identifies one detection unit of work.
type SnapshotKey struct {
	GameID     uint64
	MarketType string
}

// Repository is the single store handle handed to every component. Nothing
// else in the tree opens a connection; detectors stay pure and receive data
// through their callers.
type Repository interface {
	// Games & outcomes.
	UpsertGames(ctx context.Context, items []models.Game) error
	GetGameByID(ctx context.Context, id uint64) (*models.Game, error)
	GetGamesByIDs(ctx context.Context, ids []uint64) (map[uint64]models.Game, error)
	ListGames(ctx context.Context, params ListGamesParams) ([]models.Game, error)
	ListGamesAwaitingOutcome(ctx context.Context, startedBefore time.Time, limit int) ([]models.Game, error)
	UpdateGameStatus(ctx context.Context, id uint64, status string) error
	UpsertGameOutcome(ctx context.Context, item *models.GameOutcome) error
	GetOutcomesByGameIDs(ctx context.Context, ids []uint64) (map[uint64]models.GameOutcome, error)

	// Odds snapshots. Append-only: there are deliberately no update or
	// delete methods for this table.
	InsertOddsSnapshots(ctx context.Context, items []models.OddsSnapshot) error
	ListSnapshotsForGame(ctx context.Context, gameID uint64, until time.Time) ([]models.OddsSnapshot, error)
	ListSnapshotKeys(ctx context.Context, from, to time.Time) ([]SnapshotKey, error)
	CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error)

	// Signals.
	InsertSignal(ctx context.Context, item *models.Signal) error
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignalsByKind(ctx context.Context, since *time.Time) (map[string]int64, error)

	// Strategies.
	EnsureStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	UpdateStrategyParams(ctx context.Context, name string, params []byte) error
	UpdateStrategyBacktest(ctx context.Context, id uint64, winRate float64, roi decimal.Decimal, sampleSize int, status string, at time.Time) error
	SetStrategyStatus(ctx context.Context, name string, status string) error
	CountStrategiesByStatus(ctx context.Context) (map[string]int64, error)

	// Recommendations. Upsert is keyed on (game_id, market_type) and only
	// applies when the incoming detected_at is >= the stored one; the bool
	// reports whether the write took effect.
	UpsertRecommendation(ctx context.Context, item *models.Recommendation) (bool, error)
	GetRecommendation(ctx context.Context, gameID uint64, marketType string) (*models.Recommendation, error)
	ListRecommendations(ctx context.Context, params ListRecommendationsParams) ([]models.Recommendation, error)
	CountRecommendations(ctx context.Context, params ListRecommendationsParams) (int64, error)

	// Backtest results.
	InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error
	ListBacktestResults(ctx context.Context, params ListBacktestResultsParams) ([]models.BacktestResult, error)

	// Detection runs.
	InsertDetectionRun(ctx context.Context, item *models.DetectionRun) error
	FinishDetectionRun(ctx context.Context, runID string, status string, keysTotal, keysQualified, keysDegraded int, finishedAt time.Time) error
	GetDetectionRunByRunID(ctx context.Context, runID string) (*models.DetectionRun, error)
	ListDetectionRuns(ctx context.Context, params ListDetectionRunsParams) ([]models.DetectionRun, error)
	MarkStaleDetectionRuns(ctx context.Context, startedBefore time.Time) (int64, error)

	// Alignment reports.
	InsertAlignmentReport(ctx context.Context, item *models.AlignmentReport) error
	ListAlignmentReports(ctx context.Context, params ListAlignmentReportsParams) ([]models.AlignmentReport, error)
}

type ListGamesParams struct {
	Limit     int
	Offset    int
	Status    *string
	League    *string
	StartFrom *time.Time
	StartTo   *time.Time
	OrderBy   string
	Asc       *bool
}

type ListSignalsParams struct {
	Limit      int
	Offset     int
	Kind       *string
	GameID     *uint64
	MarketType *string
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}

type ListStrategiesParams struct {
	Status *string
	Kind   *string
}

type ListRecommendationsParams struct {
	Limit         int
	Offset        int
	GameID        *uint64
	MarketType    *string
	MinConfidence *float64
	HighOnly      bool
	DetectedFrom  *time.Time
	DetectedTo    *time.Time
	OrderBy       string
	Asc           *bool
}

type ListBacktestResultsParams struct {
	Limit      int
	Offset     int
	StrategyID *uint64
	From       *time.Time
	To         *time.Time
	OrderBy    string
	Asc        *bool
}

type ListDetectionRunsParams struct {
	Limit   int
	Offset  int
	Status  *string
	OrderBy string
	Asc     *bool
}

type ListAlignmentReportsParams struct {
	Limit      int
	Offset     int
	BelowFloor *bool
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}
