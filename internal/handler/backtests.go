package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sharpline/internal/backtest"
	"sharpline/internal/repository"
)

type BacktestHandler struct {
	Repo       repository.Repository
	Backtester *backtest.Backtester
	Logger     *zap.Logger

	// WindowDays bounds a run request that omits from/to.
	WindowDays int
}

func (h *BacktestHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/backtests")
	group.GET("", h.listResults)
	group.POST("/run", h.run)
}

func (h *BacktestHandler) listResults(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var strategyID *uint64
	if name := strings.TrimSpace(c.Query("strategy")); name != "" {
		strat, err := h.Repo.GetStrategyByName(c.Request.Context(), name)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if strat == nil {
			Error(c, http.StatusNotFound, "strategy not found", nil)
			return
		}
		strategyID = &strat.ID
	}
	if strategyID == nil {
		strategyID = uint64QueryPtr(c, "strategy_id")
	}

	items, err := h.Repo.ListBacktestResults(c.Request.Context(), repository.ListBacktestResultsParams{
		Limit:      limit,
		Offset:     offset,
		StrategyID: strategyID,
		From:       timeQueryPtr(c, "from"),
		To:         timeQueryPtr(c, "to"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

type runBacktestRequest struct {
	Strategy    string `json:"strategy"`
	FromRFC3339 string `json:"from"`
	ToRFC3339   string `json:"to"`
}

// run executes a backtest synchronously and returns the stored result. An
// empty strategy reruns every non-retired strategy.
func (h *BacktestHandler) run(c *gin.Context) {
	if h.Backtester == nil {
		Error(c, http.StatusInternalServerError, "backtester unavailable", nil)
		return
	}
	// Body is optional; an empty request sweeps every non-retired strategy
	// over the default trailing window.
	var req runBacktestRequest
	_ = c.ShouldBindJSON(&req)
	days := h.WindowDays
	if days <= 0 {
		days = 30
	}
	from, to, err := resolveWindow(req.FromRFC3339, req.ToRFC3339, time.Duration(days)*24*time.Hour)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	name := strings.TrimSpace(req.Strategy)
	if name == "" {
		results, err := h.Backtester.RunAll(c.Request.Context(), from, to)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Info("backtest sweep requested", zap.Int("strategies", len(results)))
		}
		Ok(c, results, nil)
		return
	}

	result, err := h.Backtester.RunStrategy(c.Request.Context(), name, from, to)
	if err != nil {
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		Error(c, status, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}
