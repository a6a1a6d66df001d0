package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sharpline/internal/repository"
)

type RecommendationHandler struct {
	Repo repository.Repository
}

func (h *RecommendationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/recommendations")
	group.GET("", h.listRecommendations)
	group.GET("/:gameID/:market", h.getRecommendation)
}

// @Summary List recommendations
// @Tags recommendations
// @Param game_id query int false "game id"
// @Param market query string false "moneyline|spread|total"
// @Param min_confidence query number false "minimum confidence"
// @Param high_only query bool false "only high-confidence picks"
// @Param since query string false "detected_at lower bound (RFC3339)"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/recommendations [get]
func (h *RecommendationHandler) listRecommendations(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListRecommendationsParams{
		Limit:         intQuery(c, "limit", 50),
		Offset:        intQuery(c, "offset", 0),
		GameID:        uint64QueryPtr(c, "game_id"),
		MarketType:    strQueryPtr(c, "market"),
		MinConfidence: float64QueryPtr(c, "min_confidence"),
		HighOnly:      boolQueryDefault(c, "high_only", false),
		DetectedFrom:  timeQueryPtr(c, "since"),
	}
	items, err := h.Repo.ListRecommendations(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountRecommendations(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *RecommendationHandler) getRecommendation(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	gameID, err := strconv.ParseUint(strings.TrimSpace(c.Param("gameID")), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid game id", nil)
		return
	}
	market := strings.TrimSpace(c.Param("market"))
	if market == "" {
		Error(c, http.StatusBadRequest, "market required", nil)
		return
	}
	item, err := h.Repo.GetRecommendation(c.Request.Context(), gameID, market)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "recommendation not found", nil)
		return
	}
	Ok(c, item, nil)
}
