package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator tools: an on-demand sweep and the per-order
// observation history.
type AdminHandler struct {
	sweeper     *service.SweepService
	notifyLogs  *repository.NotifyLogRepository
	tickTimeout time.Duration
}

func NewAdminHandler(sweeper *service.SweepService, notifyLogs *repository.NotifyLogRepository, tickTimeout time.Duration) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, notifyLogs: notifyLogs, tickTimeout: tickTimeout}
}

// Sweep handles POST /admin/sweep?older_than=5m&limit=200.
func (h *AdminHandler) Sweep(c *gin.Context) {
	olderThan, err := time.ParseDuration(c.DefaultQuery("older_than", "5m"))
	if err != nil || olderThan < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid older_than"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	rep, err := h.sweeper.Sweep(c.Request.Context(), olderThan, limit, h.tickTimeout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scanned": rep.Scanned, "applied": rep.Applied, "failed": rep.Failed})
}

// NotifyLogs handles GET /admin/orders/:out_trade_no/observations.
func (h *AdminHandler) NotifyLogs(c *gin.Context) {
	list, err := h.notifyLogs.ListByOutTradeNo(c.Param("out_trade_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"observations": list})
}
