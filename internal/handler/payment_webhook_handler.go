package handler

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	notifySuccess = "success"
	notifyFail    = "fail"
)

// PaymentWebhookHandler receives the gateway's asynchronous trade
// notifications. The plain-text reply is the gateway's retry signal.
type PaymentWebhookHandler struct {
	gateway   payment.Gateway
	reconcile *service.ReconcileService
	auditRepo *repository.AuditLogRepository
	log       *zap.Logger
}

func NewPaymentWebhookHandler(gateway payment.Gateway, reconcile *service.ReconcileService, auditRepo *repository.AuditLogRepository, log *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{gateway: gateway, reconcile: reconcile, auditRepo: auditRepo, log: log.Named("notify")}
}

// Handle serves POST /payments/notify.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.log.Warn("unparseable notification", zap.Error(err))
		c.String(http.StatusOK, notifyFail)
		return
	}
	form := c.Request.PostForm
	outTradeNo := form.Get("out_trade_no")

	if !h.gateway.VerifyNotification(form) {
		metrics.WebhookSignatureFailures.Inc()
		h.log.Warn("notification signature rejected",
			zap.String("out_trade_no", outTradeNo),
			zap.String("ip", c.ClientIP()),
		)
		err := h.auditRepo.Create(&models.AuditLog{
			Action:     "payment_notify_rejected",
			Resource:   "order",
			ResourceID: outTradeNo,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			h.log.Warn("rejected notification not audited", zap.String("out_trade_no", outTradeNo), zap.Error(err))
		}
		c.String(http.StatusOK, notifyFail)
		return
	}
	if outTradeNo == "" {
		c.String(http.StatusOK, notifyFail)
		return
	}

	_, err := h.reconcile.Observe(c.Request.Context(), service.Observation{
		OutTradeNo: outTradeNo,
		TradeNo:    form.Get("trade_no"),
		Status:     payment.ParseTradeStatus(form.Get("trade_status")),
		Raw:        form.Encode(),
		Source:     domain.SourceWebhook,
	})
	if err != nil {
		c.String(http.StatusOK, notifyFail)
		return
	}
	c.String(http.StatusOK, notifySuccess)
}
