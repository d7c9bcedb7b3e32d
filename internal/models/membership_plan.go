package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MembershipPlan struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"size:64;not null" json:"name"`
	Price          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	DurationDays   int             `gorm:"not null" json:"duration_days"` // 0 = lifetime
	DailyDownloads int             `gorm:"not null;default:0" json:"daily_downloads"`
	Features       datatypes.JSON  `json:"features"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (MembershipPlan) TableName() string {
	return "membership_plans"
}

func (p *MembershipPlan) Lifetime() bool { return p.DurationDays == 0 }
