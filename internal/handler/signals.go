package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sharpline/internal/repository"
)

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/signals")
	group.GET("", h.listSignals)
}

func (h *SignalHandler) listSignals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListSignals(c.Request.Context(), repository.ListSignalsParams{
		Limit:      limit,
		Offset:     offset,
		Kind:       strQueryPtr(c, "kind"),
		GameID:     uint64QueryPtr(c, "game_id"),
		MarketType: strQueryPtr(c, "market"),
		Since:      timeQueryPtr(c, "since"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}
