package repository

import (
	"storefront/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccessRepository struct {
	db *gorm.DB
}

func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// Grant inserts the (user, resource) pair or does nothing if it exists.
// created is false when the grant was already there.
func (r *AccessRepository) Grant(userID, resourceID uint, outTradeNo string) (created bool, err error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
		DoNothing: true,
	}).Create(&models.UserResourceAccess{UserID: userID, ResourceID: resourceID, OutTradeNo: outTradeNo})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *AccessRepository) Has(userID, resourceID uint) (bool, error) {
	var c int64
	err := r.db.Model(&models.UserResourceAccess{}).Where("user_id = ? AND resource_id = ?", userID, resourceID).Count(&c).Error
	return c > 0, err
}

func (r *AccessRepository) ResourceIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.UserResourceAccess{}).Where("user_id = ?", userID).Order("resource_id ASC").Pluck("resource_id", &ids).Error
	return ids, err
}

func (r *AccessRepository) Count(userID, resourceID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.UserResourceAccess{}).Where("user_id = ? AND resource_id = ?", userID, resourceID).Count(&c).Error
	return c, err
}
