package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;default:'USER'" json:"role"`
	IsVip        bool           `gorm:"column:is_vip;not null;default:false" json:"is_vip"`
	VipPlanID    *uint          `json:"vip_plan_id"`
	VipExpireAt  *time.Time     `json:"vip_expire_at"` // nil with IsVip means lifetime
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// EffectiveVIP applies isVip && (expireAt == nil || expireAt > now).
func (u *User) EffectiveVIP(now time.Time) bool {
	if !u.IsVip {
		return false
	}
	return u.VipExpireAt == nil || u.VipExpireAt.After(now)
}

// LifetimeVIP is true for a VIP without an expiry.
func (u *User) LifetimeVIP() bool {
	return u.IsVip && u.VipExpireAt == nil
}
