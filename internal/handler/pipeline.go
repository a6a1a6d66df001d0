package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sharpline/internal/repository"
)

type PipelineHandler struct {
	Repo repository.Repository
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/pipeline")
	group.GET("/health", h.health)
}

func (h *PipelineHandler) health(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ctx := c.Request.Context()

	// Snapshot inflow (last hour)
	hourAgo := time.Now().UTC().Add(-1 * time.Hour)
	snapshotsLastHour, _ := h.Repo.CountSnapshotsSince(ctx, hourAgo)

	// Signals (last hour)
	signalsByKind, _ := h.Repo.CountSignalsByKind(ctx, &hourAgo)

	// Recommendations
	recsTotal, _ := h.Repo.CountRecommendations(ctx, repository.ListRecommendationsParams{})
	recsHigh, _ := h.Repo.CountRecommendations(ctx, repository.ListRecommendationsParams{HighOnly: true})

	// Strategies
	strategiesByStatus, _ := h.Repo.CountStrategiesByStatus(ctx)

	// Last detection run
	var lastRun any
	runs, _ := h.Repo.ListDetectionRuns(ctx, repository.ListDetectionRunsParams{Limit: 1})
	if len(runs) > 0 {
		lastRun = runs[0]
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots_last_hour":   snapshotsLastHour,
		"signals_last_hour":     signalsByKind,
		"recommendations_total": recsTotal,
		"recommendations_high":  recsHigh,
		"strategies_by_status":  strategiesByStatus,
		"last_detection_run":    lastRun,
	})
}
