package models

import "time"

// UserResourceAccess is a permanent per-resource purchase grant.
type UserResourceAccess struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_user_resource" json:"user_id"`
	ResourceID uint      `gorm:"not null;uniqueIndex:idx_user_resource" json:"resource_id"`
	OutTradeNo string    `gorm:"size:64" json:"out_trade_no"`
	CreatedAt  time.Time `json:"created_at"`
}

func (UserResourceAccess) TableName() string {
	return "user_resource_access"
}
