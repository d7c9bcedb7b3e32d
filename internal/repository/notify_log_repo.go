package repository

import (
	"storefront/internal/models"

	"gorm.io/gorm"
)

type NotifyLogRepository struct {
	db *gorm.DB
}

func NewNotifyLogRepository(db *gorm.DB) *NotifyLogRepository {
	return &NotifyLogRepository{db: db}
}

func (r *NotifyLogRepository) Create(l *models.PaymentNotifyLog) error {
	return r.db.Create(l).Error
}

func (r *NotifyLogRepository) ListByOutTradeNo(outTradeNo string) ([]models.PaymentNotifyLog, error) {
	var list []models.PaymentNotifyLog
	err := r.db.Where("out_trade_no = ?", outTradeNo).Order("id ASC").Find(&list).Error
	return list, err
}
