package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sharpline/internal/backtest"
	"sharpline/internal/repository"
)

type AlignmentHandler struct {
	Repo      repository.Repository
	Validator *backtest.Validator

	// WindowHours bounds a run request that omits from/to.
	WindowHours int
}

func (h *AlignmentHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/alignment")
	group.GET("/reports", h.listReports)
	group.POST("/run", h.run)
}

func (h *AlignmentHandler) listReports(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListAlignmentReports(c.Request.Context(), repository.ListAlignmentReportsParams{
		Limit:      limit,
		Offset:     offset,
		BelowFloor: boolQueryPtr(c, "below_floor"),
		Since:      timeQueryPtr(c, "since"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

type runAlignmentRequest struct {
	FromRFC3339 string `json:"from"`
	ToRFC3339   string `json:"to"`
}

func (h *AlignmentHandler) run(c *gin.Context) {
	if h.Validator == nil {
		Error(c, http.StatusInternalServerError, "validator unavailable", nil)
		return
	}
	// Body is optional; an empty request replays the default trailing window.
	var req runAlignmentRequest
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
	report, err := h.Validator.Run(c.Request.Context(), from, to)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, report, nil)
}
