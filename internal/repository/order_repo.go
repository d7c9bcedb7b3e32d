package repository

import (
	"errors"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"

	"gorm.io/gorm"
)

var (
	ErrDuplicateOrder = errors.New("out_trade_no already used")
	ErrOrderNotFound  = errors.New("order not found")
)

// TransitionResult reports whether this caller won the status transition.
// Order is the row as stored after the attempt.
type TransitionResult struct {
	Applied bool
	Order   *models.Order
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new pending order.
func (r *OrderRepository) Create(o *models.Order) error {
	o.Status = domain.OrderStatusPending
	if err := r.db.Create(o).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

func (r *OrderRepository) GetByOutTradeNo(outTradeNo string) (*models.Order, error) {
	var o models.Order
	err := r.db.Where("out_trade_no = ?", outTradeNo).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) Exists(outTradeNo string) (bool, error) {
	var c int64
	err := r.db.Model(&models.Order{}).Where("out_trade_no = ?", outTradeNo).Count(&c).Error
	return c > 0, err
}

// TryTransition is a single compare-and-swap write: the row only changes if it
// is still in status from. Exactly one concurrent caller sees Applied.
func (r *OrderRepository) TryTransition(outTradeNo string, from, to domain.OrderStatus, tradeNo, raw string, now time.Time) (*TransitionResult, error) {
	updates := map[string]interface{}{
		"status":     to,
		"notify_raw": raw,
		"updated_at": now,
	}
	if tradeNo != "" {
		updates["trade_no"] = tradeNo
	}
	if to == domain.OrderStatusSuccess {
		updates["paid_at"] = now
	}
	res := r.db.Model(&models.Order{}).
		Where("out_trade_no = ? AND status = ?", outTradeNo, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	o, err := r.GetByOutTradeNo(outTradeNo)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Applied: res.RowsAffected == 1, Order: o}, nil
}

func (r *OrderRepository) ListByUser(userID uint, limit, offset int) ([]models.Order, error) {
	var list []models.Order
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// ListPendingBefore returns the oldest pending orders created before cutoff.
func (r *OrderRepository) ListPendingBefore(cutoff time.Time, limit int) ([]models.Order, error) {
	var list []models.Order
	err := r.db.Where("status = ? AND created_at < ?", domain.OrderStatusPending, cutoff).
		Order("created_at ASC").Limit(limit).Find(&list).Error
	return list, err
}
