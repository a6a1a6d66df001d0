package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sharpline/internal/dedup"
	"sharpline/internal/detector"
	"sharpline/internal/models"
	"sharpline/internal/repository"
	"sharpline/internal/retry"
	"sharpline/internal/scorer"
)

var start = time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)

func mkGame(id uint64) models.Game {
	return models.Game{
		ID:             id,
		ExternalID:     fmt.Sprintf("ext-%d", id),
		League:         "nba",
		HomeTeam:       "Home",
		AwayTeam:       "Away",
		ScheduledStart: start,
		Status:         models.GameStatusScheduled,
	}
}

// sharpSnap carries the 62/38 ticket vs 31/69 money split that must fire
// sharp_action on the away side.
func sharpSnap(id, gameID uint64, at time.Time) models.OddsSnapshot {
	return models.OddsSnapshot{
		ID: id, GameID: gameID, Source: "sbr", Book: "pinnacle", MarketType: models.MarketMoneyline,
		TicketPctHome: 62, TicketPctAway: 38, MoneyPctHome: 31, MoneyPctAway: 69,
		Line: decimal.Zero, PriceHome: -150, PriceAway: 130, ObservedAt: at,
	}
}

func quietSnap(id, gameID uint64, at time.Time) models.OddsSnapshot {
	return models.OddsSnapshot{
		ID: id, GameID: gameID, Source: "sbr", Book: "pinnacle", MarketType: models.MarketMoneyline,
		TicketPctHome: 50, TicketPctAway: 50, MoneyPctHome: 50, MoneyPctAway: 50,
		Line: decimal.Zero, PriceHome: -110, PriceAway: -110, ObservedAt: at,
	}
}

func activeSharpStrategy() models.Strategy {
	return models.Strategy{
		ID:     1,
		Name:   models.KindSharpAction,
		Kind:   models.KindSharpAction,
		Status: models.StrategyStatusActive,
		Params: datatypes.JSON([]byte(`{}`)),
	}
}

func newEngine(repo *stubRepo) *Engine {
	return &Engine{
		Repo:       repo,
		Logger:     zap.NewNop(),
		Workers:    2,
		KeyTimeout: time.Second,
		BaseParams: detector.DefaultParams(),
		Scorer:     scorer.Default(),
		Binder:     dedup.Default(),
		Retry:      retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

type capturePublisher struct {
	recs []models.Recommendation
}

func (p *capturePublisher) PublishRecommendation(ctx context.Context, rec *models.Recommendation) error {
	p.recs = append(p.recs, *rec)
	return nil
}

func TestEngine_OneRecommendationPerQualifyingKey(t *testing.T) {
	at := start.Add(-2 * time.Hour)
	repo := &stubRepo{
		games: map[uint64]models.Game{1: mkGame(1), 2: mkGame(2)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{
			1: {sharpSnap(11, 1, at)},
			2: {quietSnap(21, 2, at)},
		},
		keys: []repository.SnapshotKey{
			{GameID: 1, MarketType: models.MarketMoneyline},
			{GameID: 2, MarketType: models.MarketMoneyline},
		},
		strategies: []models.Strategy{activeSharpStrategy()},
		nextID:     100,
	}
	pub := &capturePublisher{}
	e := newEngine(repo)
	e.Publisher = pub

	sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Status != models.RunStatusCompleted {
		t.Fatalf("status=%s want=completed", sum.Status)
	}
	if sum.KeysTotal != 2 || sum.KeysQualified != 1 || sum.KeysDegraded != 0 {
		t.Fatalf("counts=%d/%d/%d want=2/1/0", sum.KeysTotal, sum.KeysQualified, sum.KeysDegraded)
	}
	if len(repo.recs) != 1 {
		t.Fatalf("recs=%d want=1", len(repo.recs))
	}
	rec := repo.recs[recKey(1, models.MarketMoneyline)]
	if rec.Side != models.SideAway || rec.Confidence != 90 {
		t.Fatalf("side=%s confidence=%.1f want away/90", rec.Side, rec.Confidence)
	}
	if rec.SignalKind != models.KindSharpAction || rec.SnapshotID != 11 {
		t.Fatalf("kind=%s snapshot_id=%d", rec.SignalKind, rec.SnapshotID)
	}
	if !rec.HighConfidence {
		t.Fatalf("high_confidence=false want=true")
	}
	if !rec.DetectedAt.Equal(at) {
		t.Fatalf("detected_at=%s want=%s", rec.DetectedAt, at)
	}
	if len(pub.recs) != 1 || pub.recs[0].Side != models.SideAway {
		t.Fatalf("published=%d want one away pick", len(pub.recs))
	}
	run := repo.runs[sum.RunID]
	if run == nil || run.Status != models.RunStatusCompleted || run.KeysQualified != 1 {
		t.Fatalf("run row=%+v", run)
	}
}

func TestEngine_RerunOverUnchangedDataIsIdentical(t *testing.T) {
	at := start.Add(-2 * time.Hour)
	repo := &stubRepo{
		games:           map[uint64]models.Game{1: mkGame(1)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{1: {sharpSnap(11, 1, at)}},
		keys:            []repository.SnapshotKey{{GameID: 1, MarketType: models.MarketMoneyline}},
		strategies:      []models.Strategy{activeSharpStrategy()},
		nextID:          100,
	}
	e := newEngine(repo)

	first, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("first err=%v", err)
	}
	rec1 := repo.recs[recKey(1, models.MarketMoneyline)]

	second, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("second err=%v", err)
	}
	rec2 := repo.recs[recKey(1, models.MarketMoneyline)]

	if first.KeysQualified != second.KeysQualified || first.KeysDegraded != second.KeysDegraded {
		t.Fatalf("counts drifted: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(rec1, rec2) {
		t.Fatalf("recommendation drifted:\nfirst=%+v\nsecond=%+v", rec1, rec2)
	}
	if len(repo.signals) != 1 {
		t.Fatalf("signals=%d want=1 (re-run adopts the stored row)", len(repo.signals))
	}
}

func TestEngine_NoActiveStrategiesNothingFires(t *testing.T) {
	repo := &stubRepo{
		games:           map[uint64]models.Game{1: mkGame(1)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{1: {sharpSnap(11, 1, start.Add(-2*time.Hour))}},
		keys:            []repository.SnapshotKey{{GameID: 1, MarketType: models.MarketMoneyline}},
		strategies: []models.Strategy{{
			ID: 1, Name: models.KindSharpAction, Kind: models.KindSharpAction,
			Status: models.StrategyStatusCandidate, Params: datatypes.JSON([]byte(`{}`)),
		}},
		nextID: 100,
	}
	e := newEngine(repo)

	sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.KeysTotal != 0 || sum.KeysQualified != 0 {
		t.Fatalf("counts=%d/%d want=0/0", sum.KeysTotal, sum.KeysQualified)
	}
	if len(repo.recs) != 0 {
		t.Fatalf("recs=%d want=0", len(repo.recs))
	}
}

func TestEngine_DegradedKeyNeverAbortsBatch(t *testing.T) {
	at := start.Add(-2 * time.Hour)
	repo := &stubRepo{
		games: map[uint64]models.Game{1: mkGame(1), 2: mkGame(2)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{
			1: {sharpSnap(11, 1, at)},
		},
		keys: []repository.SnapshotKey{
			{GameID: 1, MarketType: models.MarketMoneyline},
			{GameID: 2, MarketType: models.MarketMoneyline},
		},
		strategies:       []models.Strategy{activeSharpStrategy()},
		failSnapshotsFor: map[uint64]error{2: errors.New("connection reset")},
		nextID:           100,
	}
	e := newEngine(repo)

	sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.KeysQualified != 1 || sum.KeysDegraded != 1 {
		t.Fatalf("qualified=%d degraded=%d want=1/1", sum.KeysQualified, sum.KeysDegraded)
	}
	if len(repo.recs) != 1 {
		t.Fatalf("recs=%d want=1 (healthy key still lands)", len(repo.recs))
	}
}

func TestEngine_SlowKeyDegradesOnTimeout(t *testing.T) {
	repo := &stubRepo{
		games:           map[uint64]models.Game{1: mkGame(1)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{1: {sharpSnap(11, 1, start.Add(-2 * time.Hour))}},
		keys:            []repository.SnapshotKey{{GameID: 1, MarketType: models.MarketMoneyline}},
		strategies:      []models.Strategy{activeSharpStrategy()},
		snapshotDelay:   200 * time.Millisecond,
		nextID:          100,
	}
	e := newEngine(repo)
	e.KeyTimeout = 20 * time.Millisecond
	e.Retry = retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Status != models.RunStatusCompleted {
		t.Fatalf("status=%s want=completed", sum.Status)
	}
	if sum.KeysDegraded != 1 || sum.KeysQualified != 0 {
		t.Fatalf("degraded=%d qualified=%d want=1/0", sum.KeysDegraded, sum.KeysQualified)
	}
}

func TestEngine_StaleWriteCannotRevertNewerPick(t *testing.T) {
	at := start.Add(-2 * time.Hour)
	repo := &stubRepo{
		games:           map[uint64]models.Game{1: mkGame(1)},
		snapshotsByGame: map[uint64][]models.OddsSnapshot{1: {sharpSnap(11, 1, at)}},
		keys:            []repository.SnapshotKey{{GameID: 1, MarketType: models.MarketMoneyline}},
		strategies:      []models.Strategy{activeSharpStrategy()},
		recs: map[string]models.Recommendation{
			recKey(1, models.MarketMoneyline): {
				ID: 5, GameID: 1, MarketType: models.MarketMoneyline,
				Side: models.SideHome, Confidence: 95, SignalKind: models.KindSteamMove,
				DetectedAt: at.Add(time.Hour),
			},
		},
		nextID: 100,
	}
	e := newEngine(repo)

	sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.KeysQualified != 1 {
		t.Fatalf("qualified=%d want=1", sum.KeysQualified)
	}
	rec := repo.recs[recKey(1, models.MarketMoneyline)]
	if rec.Side != models.SideHome || rec.SignalKind != models.KindSteamMove {
		t.Fatalf("stored pick reverted: %+v", rec)
	}
}

func TestEngine_NewerTriggerSupersedesInFlight(t *testing.T) {
	games := make(map[uint64]models.Game)
	snaps := make(map[uint64][]models.OddsSnapshot)
	var keys []repository.SnapshotKey
	for id := uint64(1); id <= 6; id++ {
		games[id] = mkGame(id)
		snaps[id] = []models.OddsSnapshot{quietSnap(id*10, id, start.Add(-2*time.Hour))}
		keys = append(keys, repository.SnapshotKey{GameID: id, MarketType: models.MarketMoneyline})
	}
	repo := &stubRepo{
		games:           games,
		snapshotsByGame: snaps,
		keys:            keys,
		strategies:      []models.Strategy{activeSharpStrategy()},
		snapshotDelay:   30 * time.Millisecond,
		nextID:          100,
	}
	e := newEngine(repo)
	e.Workers = 1

	type outcome struct {
		sum *Summary
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		sum, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
		firstDone <- outcome{sum, err}
	}()
	time.Sleep(40 * time.Millisecond)

	second, err := e.Trigger(context.Background(), start.Add(-24*time.Hour), start)
	if err != nil {
		t.Fatalf("second err=%v", err)
	}
	first := <-firstDone
	if first.err != nil {
		t.Fatalf("first err=%v", first.err)
	}
	if first.sum.Status != models.RunStatusSuperseded {
		t.Fatalf("first status=%s want=superseded", first.sum.Status)
	}
	if second.Status != models.RunStatusCompleted {
		t.Fatalf("second status=%s want=completed", second.Status)
	}
}

func TestEngine_SeedStrategies(t *testing.T) {
	repo := &stubRepo{}
	e := newEngine(repo)

	if err := e.SeedStrategies(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(repo.strategies) != len(models.AllSignalKinds) {
		t.Fatalf("strategies=%d want=%d", len(repo.strategies), len(models.AllSignalKinds))
	}
	for _, s := range repo.strategies {
		if s.Status != models.StrategyStatusCandidate {
			t.Fatalf("strategy %s status=%s want=candidate", s.Name, s.Status)
		}
	}
	// Re-seeding keeps existing rows.
	if err := e.SeedStrategies(context.Background()); err != nil {
		t.Fatalf("reseed err=%v", err)
	}
	if len(repo.strategies) != len(models.AllSignalKinds) {
		t.Fatalf("strategies=%d after reseed", len(repo.strategies))
	}
}
