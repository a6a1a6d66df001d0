package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sharpline/internal/models"
	"sharpline/internal/repository"
)

type StrategyHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/strategies")
	group.GET("", h.listStrategies)
	group.GET("/:name", h.getStrategy)
	group.PUT("/:name/params", h.updateParams)
	group.POST("/:name/retire", h.retireStrategy)
}

func (h *StrategyHandler) listStrategies(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListStrategies(c.Request.Context(), repository.ListStrategiesParams{
		Status: strQueryPtr(c, "status"),
		Kind:   strQueryPtr(c, "kind"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *StrategyHandler) getStrategy(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	item, err := h.Repo.GetStrategyByName(c.Request.Context(), name)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	Ok(c, item, nil)
}

// updateParams replaces the strategy's detector parameter overrides. The
// body must be a JSON object; keys the detectors do not know are ignored at
// evaluation time.
func (h *StrategyHandler) updateParams(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var overrides map[string]any
	if err := json.Unmarshal(body, &overrides); err != nil || overrides == nil {
		Error(c, http.StatusBadRequest, "params must be a JSON object", nil)
		return
	}
	existing, err := h.Repo.GetStrategyByName(c.Request.Context(), name)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if existing == nil {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	if err := h.Repo.UpdateStrategyParams(c.Request.Context(), name, body); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("strategy params updated", zap.String("name", name))
	}
	Ok(c, map[string]any{"name": name}, nil)
}

// retireStrategy takes the strategy out of detection and out of the nightly
// backtest sweep. An explicit single-strategy backtest can re-open it as
// candidate.
func (h *StrategyHandler) retireStrategy(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	existing, err := h.Repo.GetStrategyByName(c.Request.Context(), name)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if existing == nil {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	if err := h.Repo.SetStrategyStatus(c.Request.Context(), name, models.StrategyStatusRetired); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("strategy retired", zap.String("name", name))
	}
	Ok(c, map[string]any{"name": name, "status": models.StrategyStatusRetired}, nil)
}
