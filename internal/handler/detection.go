package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sharpline/internal/engine"
	"sharpline/internal/repository"
)

type DetectionHandler struct {
	Engine *engine.Engine
	Repo   repository.Repository

	// WindowHours bounds a run request that omits from/to.
	WindowHours int
}

func (h *DetectionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/detection")
	group.POST("/run", h.run)
	group.GET("/runs", h.listRuns)
	group.GET("/runs/:runID", h.getRun)
}

type runDetectionRequest struct {
	FromRFC3339 string `json:"from"`
	ToRFC3339   string `json:"to"`
}

// @Summary Run detection over a snapshot window
// @Tags detection
// @Param body body runDetectionRequest false "window bounds (RFC3339); defaults to the trailing configured window"
// @Success 200 {object} apiResponse
// @Router /api/v1/detection/run [post]
func (h *DetectionHandler) run(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	// Body is optional; an empty request runs the default trailing window.
	var req runDetectionRequest
	_ = c.ShouldBindJSON(&req)
	hours := h.WindowHours
	if hours <= 0 {
		hours = 24
	}
	from, to, err := resolveWindow(req.FromRFC3339, req.ToRFC3339, time.Duration(hours)*time.Hour)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	summary, err := h.Engine.Trigger(c.Request.Context(), from, to)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, summary, nil)
}

func (h *DetectionHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListDetectionRuns(c.Request.Context(), repository.ListDetectionRunsParams{
		Limit:  limit,
		Offset: offset,
		Status: strQueryPtr(c, "status"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

func (h *DetectionHandler) getRun(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	runID := strings.TrimSpace(c.Param("runID"))
	if runID == "" {
		Error(c, http.StatusBadRequest, "run id required", nil)
		return
	}
	item, err := h.Repo.GetDetectionRunByRunID(c.Request.Context(), runID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "run not found", nil)
		return
	}
	Ok(c, item, nil)
}

// resolveWindow parses optional RFC3339 bounds. A missing to means now; a
// missing from means to minus the fallback span.
func resolveWindow(fromStr, toStr string, fallback time.Duration) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if s := strings.TrimSpace(toStr); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to timestamp")
		}
		to = parsed.UTC()
	}
	from := to.Add(-fallback)
	if s := strings.TrimSpace(fromStr); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from timestamp")
		}
		from = parsed.UTC()
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("window is empty")
	}
	return from, to, nil
}
