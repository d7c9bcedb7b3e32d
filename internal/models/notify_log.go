package models

import (
	"time"

	"storefront/internal/domain"

	"gorm.io/datatypes"
)

// PaymentNotifyLog records every gateway status observation, whichever channel
// delivered it, together with what reconciliation did with it.
type PaymentNotifyLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Source      domain.Source  `gorm:"size:16;not null;index" json:"source"`
	OutTradeNo  string         `gorm:"size:64;index" json:"out_trade_no"`
	TradeNo     string         `gorm:"size:64" json:"trade_no"`
	TradeStatus string         `gorm:"size:32" json:"trade_status"`
	Outcome     string         `gorm:"size:32;index" json:"outcome"`
	Error       string         `gorm:"size:512" json:"error,omitempty"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (PaymentNotifyLog) TableName() string {
	return "payment_notify_logs"
}
