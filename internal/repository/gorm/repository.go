package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sharpline/internal/models"
	"sharpline/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- games & outcomes -------------------------------------------------------

func (s *Store) UpsertGames(ctx context.Context, items []models.Game) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"league",
			"home_team",
			"away_team",
			"scheduled_start",
			"status",
			"updated_at",
		}),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) GetGameByID(ctx context.Context, id uint64) (*models.Game, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Game
	err := s.db.WithContext(ctx).Model(&models.Game{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetGamesByIDs(ctx context.Context, ids []uint64) (map[uint64]models.Game, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return map[uint64]models.Game{}, nil
	}
	var items []models.Game
	if err := s.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	out := make(map[uint64]models.Game, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (s *Store) ListGames(ctx context.Context, params repository.ListGamesParams) ([]models.Game, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Game{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.League != nil && strings.TrimSpace(*params.League) != "" {
		query = query.Where("league = ?", strings.TrimSpace(*params.League))
	}
	if params.StartFrom != nil && !params.StartFrom.IsZero() {
		query = query.Where("scheduled_start >= ?", *params.StartFrom)
	}
	if params.StartTo != nil && !params.StartTo.IsZero() {
		query = query.Where("scheduled_start <= ?", *params.StartTo)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "scheduled_start")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Game
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGamesAwaitingOutcome(ctx context.Context, startedBefore time.Time, limit int) ([]models.Game, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.Game
	err := s.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("status = ?", models.GameStatusScheduled).
		Where("scheduled_start < ?", startedBefore).
		Order("scheduled_start asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateGameStatus(ctx context.Context, id uint64, status string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) UpsertGameOutcome(ctx context.Context, item *models.GameOutcome) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"home_score",
			"away_score",
			"moneyline_winner",
			"spread_winner",
			"total_result",
			"source",
			"completed_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetOutcomesByGameIDs(ctx context.Context, ids []uint64) (map[uint64]models.GameOutcome, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return map[uint64]models.GameOutcome{}, nil
	}
	var items []models.GameOutcome
	if err := s.db.WithContext(ctx).
		Model(&models.GameOutcome{}).
		Where("game_id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	out := make(map[uint64]models.GameOutcome, len(items))
	for _, item := range items {
		out[item.GameID] = item
	}
	return out, nil
}

// --- odds snapshots ---------------------------------------------------------

func (s *Store) InsertOddsSnapshots(ctx context.Context, items []models.OddsSnapshot) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 500).Error
}

func (s *Store) ListSnapshotsForGame(ctx context.Context, gameID uint64, until time.Time) ([]models.OddsSnapshot, error) {
	if s == nil || s.db == nil || gameID == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.OddsSnapshot{}).
		Where("game_id = ?", gameID)
	if !until.IsZero() {
		query = query.Where("observed_at <= ?", until)
	}
	// Detectors need the full ordered series; the ordering tiebreak on id
	// keeps replays deterministic when two books report the same instant.
	var items []models.OddsSnapshot
	if err := query.Order("observed_at asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSnapshotKeys(ctx context.Context, from, to time.Time) ([]repository.SnapshotKey, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Table("odds_snapshots").
		Select("DISTINCT game_id AS game_id, market_type AS market_type")
	if !from.IsZero() {
		query = query.Where("observed_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("observed_at <= ?", to)
	}
	var rows []repository.SnapshotKey
	if err := query.Order("game_id asc, market_type asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) CountSnapshotsSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.OddsSnapshot{})
	if !since.IsZero() {
		query = query.Where("observed_at >= ?", since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "game_id"},
			{Name: "market_type"},
			{Name: "kind"},
			{Name: "detected_at"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// An identical earlier run already wrote this signal; adopt its id
		// so recommendation binding stays stable across re-runs.
		var existing models.Signal
		err := s.db.WithContext(ctx).
			Model(&models.Signal{}).
			Where("game_id = ? AND market_type = ? AND kind = ? AND detected_at = ?",
				item.GameID, item.MarketType, item.Kind, item.DetectedAt).
			First(&existing).Error
		if err != nil {
			return err
		}
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	}
	return nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.GameID != nil && *params.GameID > 0 {
		query = query.Where("game_id = ?", *params.GameID)
	}
	if params.MarketType != nil && strings.TrimSpace(*params.MarketType) != "" {
		query = query.Where("market_type = ?", strings.TrimSpace(*params.MarketType))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("detected_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "detected_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignalsByKind(ctx context.Context, since *time.Time) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return map[string]int64{}, nil
	}
	type row struct {
		Kind  string
		Count int64
	}
	query := s.db.WithContext(ctx).
		Table("signals").
		Select("kind AS kind, COUNT(*) AS count")
	if since != nil && !since.IsZero() {
		query = query.Where("detected_at >= ?", *since)
	}
	var rows []row
	if err := query.Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}

// --- strategies -------------------------------------------------------------

func (s *Store) EnsureStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Model(&models.Strategy{}).Where("name = ?", name).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	var items []models.Strategy
	if err := query.Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateStrategyParams(ctx context.Context, name string, params []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" || len(params) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"params":     params,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) UpdateStrategyBacktest(ctx context.Context, id uint64, winRate float64, roi decimal.Decimal, sampleSize int, status string, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"win_rate":         winRate,
			"roi":              roi,
			"sample_size":      sampleSize,
			"status":           status,
			"last_backtest_at": at,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (s *Store) SetStrategyStatus(ctx context.Context, name string, status string) error {
	if s == nil || s.db == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) CountStrategiesByStatus(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return map[string]int64{}, nil
	}
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("strategies").
		Select("status AS status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// --- recommendations --------------------------------------------------------

func (s *Store) UpsertRecommendation(ctx context.Context, item *models.Recommendation) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	// Keyed upsert with a monotonic guard: the update only lands when the
	// incoming detection is not older than the stored one, so a stale write
	// can never revert a newer pick.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "game_id"}, {Name: "market_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"side",
			"confidence",
			"signal_kind",
			"signal_id",
			"kinds",
			"snapshot_id",
			"line",
			"price",
			"high_confidence",
			"detected_at",
			"updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "recommendations.detected_at <= excluded.detected_at"},
		}},
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetRecommendation(ctx context.Context, gameID uint64, marketType string) (*models.Recommendation, error) {
	if s == nil || s.db == nil || gameID == 0 {
		return nil, nil
	}
	var item models.Recommendation
	err := s.db.WithContext(ctx).
		Model(&models.Recommendation{}).
		Where("game_id = ? AND market_type = ?", gameID, strings.TrimSpace(marketType)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRecommendations(ctx context.Context, params repository.ListRecommendationsParams) ([]models.Recommendation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := recommendationFilter(s.db.WithContext(ctx).Model(&models.Recommendation{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "detected_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Recommendation
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountRecommendations(ctx context.Context, params repository.ListRecommendationsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := recommendationFilter(s.db.WithContext(ctx).Model(&models.Recommendation{}), params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func recommendationFilter(query *gorm.DB, params repository.ListRecommendationsParams) *gorm.DB {
	if params.GameID != nil && *params.GameID > 0 {
		query = query.Where("game_id = ?", *params.GameID)
	}
	if params.MarketType != nil && strings.TrimSpace(*params.MarketType) != "" {
		query = query.Where("market_type = ?", strings.TrimSpace(*params.MarketType))
	}
	if params.MinConfidence != nil {
		query = query.Where("confidence >= ?", *params.MinConfidence)
	}
	if params.HighOnly {
		query = query.Where("high_confidence = ?", true)
	}
	if params.DetectedFrom != nil && !params.DetectedFrom.IsZero() {
		query = query.Where("detected_at >= ?", *params.DetectedFrom)
	}
	if params.DetectedTo != nil && !params.DetectedTo.IsZero() {
		query = query.Where("detected_at <= ?", *params.DetectedTo)
	}
	return query
}

// --- backtest results -------------------------------------------------------

func (s *Store) InsertBacktestResult(ctx context.Context, item *models.BacktestResult) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListBacktestResults(ctx context.Context, params repository.ListBacktestResultsParams) ([]models.BacktestResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.BacktestResult{}).Preload("Strategy")
	if params.StrategyID != nil && *params.StrategyID > 0 {
		query = query.Where("strategy_id = ?", *params.StrategyID)
	}
	if params.From != nil && !params.From.IsZero() {
		query = query.Where("range_start >= ?", *params.From)
	}
	if params.To != nil && !params.To.IsZero() {
		query = query.Where("range_end <= ?", *params.To)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.BacktestResult
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- detection runs ---------------------------------------------------------

func (s *Store) InsertDetectionRun(ctx context.Context, item *models.DetectionRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) FinishDetectionRun(ctx context.Context, runID string, status string, keysTotal, keysQualified, keysDegraded int, finishedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.DetectionRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":         status,
			"keys_total":     keysTotal,
			"keys_qualified": keysQualified,
			"keys_degraded":  keysDegraded,
			"finished_at":    finishedAt,
		}).Error
}

func (s *Store) GetDetectionRunByRunID(ctx context.Context, runID string) (*models.DetectionRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, nil
	}
	var item models.DetectionRun
	err := s.db.WithContext(ctx).Model(&models.DetectionRun{}).Where("run_id = ?", runID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDetectionRuns(ctx context.Context, params repository.ListDetectionRunsParams) ([]models.DetectionRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DetectionRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.DetectionRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkStaleDetectionRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if startedBefore.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DetectionRun{}).
		Where("status = ?", models.RunStatusRunning).
		Where("started_at < ?", startedBefore).
		Updates(map[string]any{
			"status":      models.RunStatusCancelled,
			"finished_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- alignment reports ------------------------------------------------------

func (s *Store) InsertAlignmentReport(ctx context.Context, item *models.AlignmentReport) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListAlignmentReports(ctx context.Context, params repository.ListAlignmentReportsParams) ([]models.AlignmentReport, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AlignmentReport{})
	if params.BelowFloor != nil {
		query = query.Where("below_floor = ?", *params.BelowFloor)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.AlignmentReport
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
