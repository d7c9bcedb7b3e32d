package handler

import (
	"net/http"

	"storefront/pkg/payment"

	"github.com/gin-gonic/gin"
)

// DevHandler drives the stub gateway so the purchase flow can be exercised
// without a real payment. Only mounted when the stub gateway is in use.
type DevHandler struct {
	stub *payment.StubGateway
}

func NewDevHandler(stub *payment.StubGateway) *DevHandler {
	return &DevHandler{stub: stub}
}

// SetTradeStatus handles POST /dev/trades/:out_trade_no {"status": "TRADE_SUCCESS"}.
// It returns the signed notification form the gateway would send.
func (h *DevHandler) SetTradeStatus(c *gin.Context) {
	var req struct {
		Status  string `json:"status" binding:"required"`
		TradeNo string `json:"trade_no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	no := c.Param("out_trade_no")
	status := payment.ParseTradeStatus(req.Status)
	if status == payment.Unknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trade status"})
		return
	}
	tradeNo := req.TradeNo
	if tradeNo == "" {
		tradeNo = "STUB" + no
	}
	h.stub.SetStatus(no, status, tradeNo)
	c.JSON(http.StatusOK, gin.H{"notification": h.stub.Notification(no, tradeNo, status).Encode()})
}
