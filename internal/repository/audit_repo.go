package repository

import (
	"storefront/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(log *models.AuditLog) error {
	return r.db.Create(log).Error
}

func (r *AuditLogRepository) ListByAction(action string, limit int) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.Where("action = ?", action).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}
