package handler

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	orders *service.OrderService
}

func NewPaymentHandler(orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{orders: orders}
}

type PrecreateRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Subject    string          `json:"subject"`
	OutTradeNo string          `json:"out_trade_no"`
	OrderType  string          `json:"order_type" binding:"required"`
	ProductID  uint            `json:"product_id" binding:"required"`
}

type OutTradeNoRequest struct {
	OutTradeNo string `json:"out_trade_no" binding:"required"`
}

type CancelRequest struct {
	OutTradeNo string `json:"out_trade_no" binding:"required"`
	Reason     string `json:"reason"`
}

// Precreate handles POST /payments/precreate.
func (h *PaymentHandler) Precreate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		writeError(c, service.ErrUnauthenticated)
		return
	}
	var req PrecreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.orders.Precreate(c.Request.Context(), userID, service.PrecreateInput{
		OutTradeNo: req.OutTradeNo,
		OrderType:  domain.OrderType(req.OrderType),
		ProductID:  req.ProductID,
		Amount:     req.Amount,
		Subject:    req.Subject,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Query handles POST /payments/query.
func (h *PaymentHandler) Query(c *gin.Context) {
	var req OutTradeNoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := h.orders.Query(c.Request.Context(), middleware.GetUserID(c), req.OutTradeNo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"out_trade_no": req.OutTradeNo, "status": status})
}

// Cancel handles POST /payments/cancel. It stops server side polling only.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	cancelled, err := h.orders.Cancel(c.Request.Context(), userID, req.OutTradeNo, service.ParseCancelReason(req.Reason))
	if err != nil {
		writeError(c, err)
		return
	}
	state, _ := h.orders.PollState(c.Request.Context(), userID, req.OutTradeNo)
	c.JSON(http.StatusOK, gin.H{"out_trade_no": req.OutTradeNo, "cancelled": cancelled, "poll_state": state})
}

// GetOrder handles GET /orders/:out_trade_no.
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	no := c.Param("out_trade_no")
	order, err := h.orders.Get(c.Request.Context(), userID, no)
	if err != nil {
		writeError(c, err)
		return
	}
	state, _ := h.orders.PollState(c.Request.Context(), userID, no)
	c.JSON(http.StatusOK, gin.H{"order": order, "poll_state": state})
}
