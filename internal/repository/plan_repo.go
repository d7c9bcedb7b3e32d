package repository

import (
	"errors"

	"storefront/internal/models"

	"gorm.io/gorm"
)

var ErrPlanNotFound = errors.New("membership plan not found")

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(p *models.MembershipPlan) error {
	return r.db.Create(p).Error
}

func (r *PlanRepository) GetByID(id uint) (*models.MembershipPlan, error) {
	var p models.MembershipPlan
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepository) ListActive() ([]models.MembershipPlan, error) {
	var list []models.MembershipPlan
	err := r.db.Where("is_active = ?", true).Order("price ASC").Find(&list).Error
	return list, err
}
