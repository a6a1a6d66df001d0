package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"sharpline/internal/backtest"
	"sharpline/internal/client/scores"
	"sharpline/internal/config"
	cronrunner "sharpline/internal/cron"
	"sharpline/internal/db"
	"sharpline/internal/dedup"
	"sharpline/internal/detector"
	"sharpline/internal/engine"
	"sharpline/internal/handler"
	"sharpline/internal/logger"
	"sharpline/internal/publisher"
	gormrepository "sharpline/internal/repository/gorm"
	"sharpline/internal/retry"
	"sharpline/internal/scorer"
	"sharpline/internal/service"
)

func main() {
	cfgPath := os.Getenv("SL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SL_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	scoresHTTP := &http.Client{Timeout: cfg.Scores.Timeout}
	scoresClient := scores.NewClient(scoresHTTP, cfg.Scores.BaseURL)

	retryPolicy := retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
	params := detectorParams(cfg.Detection.Params)
	sc := scorer.Default()
	if cfg.Scorer.QualifyFloor > 0 {
		sc.QualifyFloor = cfg.Scorer.QualifyFloor
	}
	if cfg.Scorer.HighFloor > 0 {
		sc.HighFloor = cfg.Scorer.HighFloor
	}
	binder := dedup.Default()
	if cfg.Dedup.TargetOffset > 0 {
		binder.TargetOffset = cfg.Dedup.TargetOffset
	}

	var redisClient *redis.Client
	det := &engine.Engine{
		Repo:       store,
		Logger:     logger,
		Workers:    cfg.Detection.Workers,
		KeyTimeout: cfg.Detection.KeyTimeout,
		BaseParams: params,
		Scorer:     sc,
		Binder:     binder,
		Retry:      retryPolicy,
	}
	defer det.Close()

	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at boot (publishing degraded)", zap.Error(err))
		}
		cancel()
		det.Publisher = publisher.NewStreamPublisher(redisClient, cfg.Redis.Stream, cfg.Redis.MaxLen)
	}

	if err := det.SeedStrategies(context.Background()); err != nil {
		logger.Warn("strategy seed failed", zap.Error(err))
	}

	bt := &backtest.Backtester{
		Repo:        store,
		Logger:      logger,
		BaseParams:  params,
		Scorer:      sc,
		Binder:      binder,
		Retry:       retryPolicy,
		Stake:       decimal.NewFromFloat(cfg.Backtest.Stake),
		MinSample:   cfg.Backtest.MinSample,
		Parallelism: cfg.Backtest.Parallelism,
	}
	validator := &backtest.Validator{
		Repo:       store,
		Logger:     logger,
		BaseParams: params,
		Scorer:     sc,
		Binder:     binder,
		Retry:      retryPolicy,
		Floor:      cfg.Alignment.Floor,
	}
	ingestor := &service.OutcomeIngestService{
		Repo:   store,
		Scores: scoresClient,
		Config: cfg.OutcomeIngest,
		Logger: logger,
		Retry:  retryPolicy,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Redis: redisClient}
	healthHandler.Register(ginEngine)
	recHandler := &handler.RecommendationHandler{Repo: store}
	recHandler.Register(ginEngine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(ginEngine)
	strategyHandler := &handler.StrategyHandler{Repo: store, Logger: logger}
	strategyHandler.Register(ginEngine)
	backtestHandler := &handler.BacktestHandler{
		Repo:       store,
		Backtester: bt,
		Logger:     logger,
		WindowDays: cfg.Backtest.WindowDays,
	}
	backtestHandler.Register(ginEngine)
	detectionHandler := &handler.DetectionHandler{
		Engine:      det,
		Repo:        store,
		WindowHours: cfg.Detection.WindowHours,
	}
	detectionHandler.Register(ginEngine)
	alignmentHandler := &handler.AlignmentHandler{
		Repo:        store,
		Validator:   validator,
		WindowHours: cfg.Alignment.WindowHours,
	}
	alignmentHandler.Register(ginEngine)
	pipelineHandler := &handler.PipelineHandler{Repo: store}
	pipelineHandler.Register(ginEngine)

	ginEngine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: ginEngine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		windowHours := cfg.Detection.WindowHours
		if windowHours <= 0 {
			windowHours = 24
		}
		_, err = cronRunner.Add("detection sweep", cfg.Cron.DetectionSweep, func(ctx context.Context) error {
			to := time.Now().UTC()
			from := to.Add(-time.Duration(windowHours) * time.Hour)
			summary, err := det.Trigger(ctx, from, to)
			if err != nil {
				return err
			}
			logger.Info("cron detection sweep done",
				zap.String("run_id", summary.RunID),
				zap.String("status", summary.Status),
				zap.Int("keys_total", summary.KeysTotal),
				zap.Int("keys_qualified", summary.KeysQualified),
				zap.Int("keys_degraded", summary.KeysDegraded),
			)
			return nil
		})
		if err != nil {
			logger.Warn("cron register detection sweep failed", zap.Error(err))
		}

		windowDays := cfg.Backtest.WindowDays
		if windowDays <= 0 {
			windowDays = 30
		}
		_, err = cronRunner.Add("backtest sweep", cfg.Cron.BacktestSweep, func(ctx context.Context) error {
			to := time.Now().UTC()
			from := to.AddDate(0, 0, -windowDays)
			results, err := bt.RunAll(ctx, from, to)
			if err != nil {
				return err
			}
			logger.Info("cron backtest sweep done", zap.Int("strategies", len(results)))
			return nil
		})
		if err != nil {
			logger.Warn("cron register backtest sweep failed", zap.Error(err))
		}

		alignHours := cfg.Alignment.WindowHours
		if alignHours <= 0 {
			alignHours = 24
		}
		_, err = cronRunner.Add("alignment sweep", cfg.Cron.AlignmentSweep, func(ctx context.Context) error {
			to := time.Now().UTC()
			from := to.Add(-time.Duration(alignHours) * time.Hour)
			report, err := validator.Run(ctx, from, to)
			if err != nil {
				return err
			}
			logger.Info("cron alignment sweep done",
				zap.Float64("score", report.Score),
				zap.Bool("below_floor", report.BelowFloor),
			)
			return nil
		})
		if err != nil {
			logger.Warn("cron register alignment sweep failed", zap.Error(err))
		}

		// Runs that died without finishing (crash, kill) stay "running"
		// forever without this.
		_, err = cronRunner.Add("stale run sweep", cfg.Cron.StaleRuns, func(ctx context.Context) error {
			n, err := store.MarkStaleDetectionRuns(ctx, time.Now().UTC().Add(-2*time.Hour))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("marked stale detection runs", zap.Int64("count", n))
			}
			return nil
		})
		if err != nil {
			logger.Warn("cron register stale run sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("outcome ingestor stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func detectorParams(p config.DetectorParamsConfig) detector.Params {
	return detector.Params{
		SharpDisparityPts:        p.SharpDisparityPts,
		SharpMinMoneyPct:         p.SharpMinMoneyPct,
		SteamMinBooks:            p.SteamMinBooks,
		SteamWindowMinutes:       p.SteamWindowMinutes,
		CrossMarketDivergencePts: p.CrossMarketDivergencePts,
		CrossSourceMinDisparity:  p.CrossSourceMinDisparity,
		CrossBookProbPts:         p.CrossBookProbPts,
		PublicFadeTicketPct:      p.PublicFadeTicketPct,
		PublicFadeConfirmedPct:   p.PublicFadeConfirmedPct,
		LateWindowFraction:       p.LateWindowFraction,
		PregameHours:             p.PregameHours,
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
