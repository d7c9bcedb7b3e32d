package models

import (
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// Order is one purchase attempt. OutTradeNo is the idempotency key shared by
// the webhook, poll and sweep channels.
type Order struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	OutTradeNo string             `gorm:"size:64;uniqueIndex;not null" json:"out_trade_no"`
	TradeNo    *string            `gorm:"size:64;index" json:"trade_no"`
	OrderType  domain.OrderType   `gorm:"size:16;not null" json:"order_type"`
	ProductID  uint               `gorm:"not null" json:"product_id"`
	Amount     decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Subject    string             `gorm:"size:128" json:"subject"`
	Status     domain.OrderStatus `gorm:"size:16;not null;index" json:"status"`
	UserID     *uint              `gorm:"index" json:"user_id"`
	PayChannel string             `gorm:"size:20" json:"pay_channel"`
	QRCode     string             `gorm:"size:512" json:"qr_code,omitempty"`
	PaidAt     *time.Time         `json:"paid_at"`
	NotifyRaw  string             `gorm:"type:text" json:"-"` // last raw confirmation payload
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID uint) bool {
	return o.UserID != nil && userID != 0 && *o.UserID == userID
}
