package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/cache"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type MeHandler struct {
	entitlements *service.EntitlementService
	cache        *cache.EntitlementCache
}

func NewMeHandler(entitlements *service.EntitlementService, cache *cache.EntitlementCache) *MeHandler {
	return &MeHandler{entitlements: entitlements, cache: cache}
}

// Entitlements handles GET /me/entitlements, reading through the cache.
func (h *MeHandler) Entitlements(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()
	var sum service.Summary
	if err := h.cache.Get(ctx, userID, &sum); err == nil {
		c.JSON(http.StatusOK, sum)
		return
	}
	s, err := h.entitlements.Summary(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	var notAfter *time.Time
	if s.VIP && !s.Lifetime {
		notAfter = s.VipExpireAt
	}
	h.cache.Set(ctx, userID, s, notAfter)
	c.JSON(http.StatusOK, s)
}

// ResourceAccess handles GET /resources/:id/access.
func (h *MeHandler) ResourceAccess(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
		return
	}
	ok, err := h.entitlements.HasAccess(c.Request.Context(), middleware.GetUserID(c), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": id, "access": ok})
}
