package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message to a buyer, optionally tied to an order.
type Notification struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"not null;index:idx_notifications_user_read" json:"user_id"`
	Type       string         `gorm:"size:50;not null" json:"type"`
	OutTradeNo string         `gorm:"size:64;index" json:"out_trade_no,omitempty"`
	Title      string         `gorm:"size:255" json:"title"`
	Body       string         `gorm:"type:text" json:"body"`
	Data       datatypes.JSON `json:"data,omitempty"`
	ReadAt     *time.Time     `gorm:"index:idx_notifications_user_read" json:"read_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
