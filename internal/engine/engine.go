// Package engine drives a detection pass: fan the window's (game, market)
// keys out to a worker pool, evaluate the active detector set per key,
// score the candidates, and funnel every qualifying result through a
// single writer so recommendation upserts stay serialized.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sharpline/internal/dedup"
	"sharpline/internal/detector"
	"sharpline/internal/models"
	"sharpline/internal/repository"
	"sharpline/internal/retry"
	"sharpline/internal/scorer"
)

// RecommendationPublisher pushes applied high-confidence picks to
// downstream consumers. Publishing is best-effort; failures never degrade
// the key.
type RecommendationPublisher interface {
	PublishRecommendation(ctx context.Context, rec *models.Recommendation) error
}

type Engine struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Publisher RecommendationPublisher

	Workers    int
	KeyTimeout time.Duration
	BaseParams detector.Params
	Scorer     scorer.Scorer
	Binder     dedup.Binder
	Retry      retry.Policy

	mu      sync.Mutex
	current *runHandle
}

type runHandle struct {
	cancel     context.CancelFunc
	superseded bool
	done       chan struct{}
}

// Summary is the outcome of one pass, also the control-op response body.
type Summary struct {
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	KeysTotal     int       `json:"keys_total"`
	KeysQualified int       `json:"keys_qualified"`
	KeysDegraded  int       `json:"keys_degraded"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

type keyResult struct {
	key      repository.SnapshotKey
	res      *scorer.Result
	bound    *models.OddsSnapshot
	degraded bool
}

// SeedStrategies inserts a candidate strategy row per signal kind if none
// exists, so every detector has a promotion path from first boot.
func (e *Engine) SeedStrategies(ctx context.Context) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	for _, kind := range models.AllSignalKinds {
		item := &models.Strategy{
			Name:   kind,
			Kind:   kind,
			Status: models.StrategyStatusCandidate,
			Params: datatypes.JSON([]byte(`{}`)),
		}
		if err := e.Repo.EnsureStrategy(ctx, item); err != nil {
			return fmt.Errorf("seed strategy %s: %w", kind, err)
		}
	}
	return nil
}

// Trigger runs detection for the window and blocks until the pass
// finishes. An in-flight pass is superseded first: its context is
// cancelled, it stops at the next key boundary without partial writes,
// and its run row is marked. The caller's ctx only gates the start; the
// pass itself is detached so a dropped request cannot orphan half a
// batch.
func (e *Engine) Trigger(ctx context.Context, from, to time.Time) (*Summary, error) {
	if e == nil || e.Repo == nil {
		return nil, errors.New("engine not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, fmt.Errorf("window end %s not after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	e.mu.Lock()
	if prev := e.current; prev != nil {
		prev.superseded = true
		prev.cancel()
		e.mu.Unlock()
		<-prev.done
		e.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel, done: make(chan struct{})}
	e.current = h
	e.mu.Unlock()

	sum, err := e.run(runCtx, h, from, to)

	e.mu.Lock()
	if e.current == h {
		e.current = nil
	}
	e.mu.Unlock()
	cancel()
	close(h.done)
	return sum, err
}

// Close cancels any in-flight pass and waits for it to stop. Shutdown
// path; the run row is marked cancelled, not superseded.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	prev := e.current
	if prev != nil {
		prev.cancel()
	}
	e.mu.Unlock()
	if prev != nil {
		<-prev.done
	}
}

func (e *Engine) run(ctx context.Context, h *runHandle, from, to time.Time) (*Summary, error) {
	startedAt := time.Now().UTC()
	sum := &Summary{
		RunID:       uuid.NewString(),
		Status:      models.RunStatusRunning,
		WindowStart: from,
		WindowEnd:   to,
		StartedAt:   startedAt,
	}
	row := &models.DetectionRun{
		RunID:       sum.RunID,
		WindowStart: from,
		WindowEnd:   to,
		Status:      models.RunStatusRunning,
		StartedAt:   startedAt,
	}
	if err := e.Retry.Do(ctx, func(ctx context.Context) error {
		return e.Repo.InsertDetectionRun(ctx, row)
	}); err != nil && e.Logger != nil {
		e.Logger.Warn("detection run bookkeeping failed", zap.String("run_id", sum.RunID), zap.Error(err))
	}

	dets, err := e.activeDetectors(ctx)
	if err != nil {
		return e.finish(ctx, h, sum, 0, 0, 0, true), fmt.Errorf("load active strategies: %w", err)
	}
	if len(dets) == 0 {
		if e.Logger != nil {
			e.Logger.Info("no active strategies, nothing can fire", zap.String("run_id", sum.RunID))
		}
		return e.finish(ctx, h, sum, 0, 0, 0, false), nil
	}

	var keys []repository.SnapshotKey
	if err := e.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		keys, err = e.Repo.ListSnapshotKeys(ctx, from, to)
		return err
	}); err != nil {
		return e.finish(ctx, h, sum, 0, 0, 0, true), fmt.Errorf("list snapshot keys: %w", err)
	}
	if len(keys) == 0 {
		return e.finish(ctx, h, sum, 0, 0, 0, false), nil
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
	if err := e.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		games, err = e.Repo.GetGamesByIDs(ctx, gameIDs)
		return err
	}); err != nil {
		return e.finish(ctx, h, sum, len(keys), 0, 0, true), fmt.Errorf("load games: %w", err)
	}

	if e.Logger != nil {
		e.Logger.Info("detection pass started",
			zap.String("run_id", sum.RunID),
			zap.Int("keys", len(keys)),
			zap.Int("detectors", len(dets)),
			zap.Time("window_start", from),
			zap.Time("window_end", to),
		)
	}

	jobs := make(chan repository.SnapshotKey)
	results := make(chan keyResult, e.workers())
	go func() {
		defer close(jobs)
		for _, k := range keys {
			select {
			case <-ctx.Done():
				return
			case jobs <- k:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				var game *models.Game
				if g, ok := games[key.GameID]; ok {
					game = &g
				}
				results <- e.evaluateKey(ctx, key, game, dets, to)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Single consumer: every signal insert and recommendation upsert for
	// this pass goes through here, serialized.
	qualified, degraded := 0, 0
	for r := range results {
		if ctx.Err() != nil {
			continue
		}
		if r.degraded {
			degraded++
			continue
		}
		if r.res == nil {
			continue
		}

		sig := r.res.Signal(r.key.GameID, r.key.MarketType)
		if err := e.Retry.Do(ctx, func(ctx context.Context) error {
			return e.Repo.InsertSignal(ctx, sig)
		}); err != nil {
			if ctx.Err() == nil {
				degraded++
				if e.Logger != nil {
					e.Logger.Warn("signal write failed",
						zap.Uint64("game_id", r.key.GameID),
						zap.String("market", r.key.MarketType),
						zap.Error(err),
					)
				}
			}
			continue
		}
		qualified++

		rec := e.Binder.Build(r.key.GameID, r.key.MarketType, r.res, sig.ID, r.bound)
		applied := false
		if err := e.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			applied, err = e.Repo.UpsertRecommendation(ctx, rec)
			return err
		}); err != nil {
			if ctx.Err() == nil {
				degraded++
				if e.Logger != nil {
					e.Logger.Warn("recommendation write failed",
						zap.Uint64("game_id", r.key.GameID),
						zap.String("market", r.key.MarketType),
						zap.Error(err),
					)
				}
			}
			continue
		}
		if !applied {
			// The stored row carries a newer detected_at; losing this
			// race is expected when runs overlap, worth a warning
			// because it can also flag an upstream ordering bug.
			if e.Logger != nil {
				e.Logger.Warn("stale recommendation write skipped",
					zap.Uint64("game_id", r.key.GameID),
					zap.String("market", r.key.MarketType),
					zap.Time("detected_at", rec.DetectedAt),
				)
			}
			continue
		}
		if rec.HighConfidence && e.Publisher != nil {
			if err := e.Publisher.PublishRecommendation(ctx, rec); err != nil && ctx.Err() == nil && e.Logger != nil {
				e.Logger.Warn("publish recommendation failed",
					zap.Uint64("game_id", r.key.GameID),
					zap.String("market", r.key.MarketType),
					zap.Error(err),
				)
			}
		}
	}

	out := e.finish(ctx, h, sum, len(keys), qualified, degraded, false)
	if e.Logger != nil {
		e.Logger.Info("detection pass finished",
			zap.String("run_id", out.RunID),
			zap.String("status", out.Status),
			zap.Int("keys_total", out.KeysTotal),
			zap.Int("keys_qualified", out.KeysQualified),
			zap.Int("keys_degraded", out.KeysDegraded),
			zap.Duration("took", out.FinishedAt.Sub(out.StartedAt)),
		)
	}
	return out, nil
}

// finish records the terminal status. The write runs on a fresh context:
// a superseded pass still has to land its bookkeeping.
func (e *Engine) finish(ctx context.Context, h *runHandle, sum *Summary, total, qualified, degraded int, aborted bool) *Summary {
	e.mu.Lock()
	superseded := h.superseded
	e.mu.Unlock()

	status := models.RunStatusCompleted
	switch {
	case superseded:
		status = models.RunStatusSuperseded
	case aborted || ctx.Err() != nil:
		status = models.RunStatusCancelled
	}
	sum.Status = status
	sum.KeysTotal = total
	sum.KeysQualified = qualified
	sum.KeysDegraded = degraded
	sum.FinishedAt = time.Now().UTC()

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Retry.Do(fctx, func(ctx context.Context) error {
		return e.Repo.FinishDetectionRun(ctx, sum.RunID, status, total, qualified, degraded, sum.FinishedAt)
	}); err != nil && e.Logger != nil {
		e.Logger.Warn("detection run finish failed", zap.String("run_id", sum.RunID), zap.Error(err))
	}
	return sum
}

// evaluateKey is one unit of work: fetch the game's series, run the
// detector set, score, and pick the bound snapshot. Carries its own
// timeout so a slow key degrades alone instead of stalling the pass.
func (e *Engine) evaluateKey(ctx context.Context, key repository.SnapshotKey, game *models.Game, dets []detector.Detector, until time.Time) keyResult {
	r := keyResult{key: key}
	if game == nil {
		if e.Logger != nil {
			e.Logger.Warn("snapshot key without game row",
				zap.Uint64("game_id", key.GameID),
				zap.String("market", key.MarketType),
			)
		}
		r.degraded = true
		return r
	}

	kctx, cancel := context.WithTimeout(ctx, e.keyTimeout())
	defer cancel()

	var snaps []models.OddsSnapshot
	if err := e.Retry.Do(kctx, func(ctx context.Context) error {
		var err error
		snaps, err = e.Repo.ListSnapshotsForGame(ctx, key.GameID, until)
		return err
	}); err != nil {
		if ctx.Err() != nil {
			return r
		}
		r.degraded = true
		if e.Logger != nil {
			e.Logger.Warn("key degraded on snapshot fetch",
				zap.Uint64("game_id", key.GameID),
				zap.String("market", key.MarketType),
				zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
				zap.Error(err),
			)
		}
		return r
	}
	if len(snaps) == 0 {
		return r
	}

	in := detector.Input{
		GameID:     key.GameID,
		MarketType: key.MarketType,
		StartsAt:   game.ScheduledStart,
		Snapshots:  snaps,
	}
	var candidates []detector.Candidate
	for _, d := range dets {
		if kctx.Err() != nil {
			if ctx.Err() != nil {
				return keyResult{key: key}
			}
			r.degraded = true
			if e.Logger != nil {
				e.Logger.Warn("key timed out mid pass",
					zap.Uint64("game_id", key.GameID),
					zap.String("market", key.MarketType),
					zap.String("at_kind", d.Kind()),
				)
			}
			return r
		}
		if c := d.Evaluate(in); c != nil {
			candidates = append(candidates, *c)
		}
	}

	res := e.Scorer.Score(candidates)
	if res == nil || !res.Qualified {
		return r
	}
	bound := e.Binder.SelectSnapshot(snaps, key.MarketType, game.ScheduledStart)
	if bound == nil {
		return r
	}
	r.res, r.bound = res, bound
	return r
}

// activeDetectors builds one detector per active strategy, the strategy's
// params merged over the engine's base. Detectors come back in scoring
// priority order.
func (e *Engine) activeDetectors(ctx context.Context) ([]detector.Detector, error) {
	status := models.StrategyStatusActive
	var strategies []models.Strategy
	if err := e.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		strategies, err = e.Repo.ListStrategies(ctx, repository.ListStrategiesParams{Status: &status})
		return err
	}); err != nil {
		return nil, err
	}

	byKind := make(map[string]detector.Detector, len(strategies))
	for _, s := range strategies {
		if _, ok := byKind[s.Kind]; ok {
			if e.Logger != nil {
				e.Logger.Warn("duplicate active strategy for kind, keeping first",
					zap.String("strategy", s.Name),
					zap.String("kind", s.Kind),
				)
			}
			continue
		}
		d := detector.ForKind(s.Kind, e.BaseParams.Merge(json.RawMessage(s.Params)))
		if d == nil {
			if e.Logger != nil {
				e.Logger.Warn("active strategy with unknown kind",
					zap.String("strategy", s.Name),
					zap.String("kind", s.Kind),
				)
			}
			continue
		}
		byKind[s.Kind] = d
	}
	out := make([]detector.Detector, 0, len(byKind))
	for _, kind := range models.AllSignalKinds {
		if d, ok := byKind[kind]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.NumCPU()
}

func (e *Engine) keyTimeout() time.Duration {
	if e.KeyTimeout > 0 {
		return e.KeyTimeout
	}
	return 3 * time.Second
}
