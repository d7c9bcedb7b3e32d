package service

import (
	"context"
	"encoding/json"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const NotificationPaymentConfirmed = "PAYMENT_CONFIRMED"

type NotificationService struct {
	store *repository.Store
	log   *zap.Logger
}

func NewNotificationService(store *repository.Store, log *zap.Logger) *NotificationService {
	return &NotificationService{store: store, log: log.Named("notification")}
}

// NotificationPage is one page of a user's notifications plus the unread total.
type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) (*NotificationPage, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	st := s.store.WithContext(ctx)
	list, err := st.Notifications.ListByUserID(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := st.Notifications.CountUnread(userID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Notifications: list, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	return s.store.WithContext(ctx).Notifications.MarkRead(id, userID)
}

// OrderSettled tells the buyer their payment went through. Closed orders
// are not announced.
func (s *NotificationService) OrderSettled(ctx context.Context, order *models.Order) {
	if order.Status != domain.OrderStatusSuccess || order.UserID == nil {
		return
	}
	body := "Your payment was successful."
	switch order.OrderType {
	case domain.OrderTypeMember:
		body = "Your membership is now active."
	case domain.OrderTypeCourse:
		body = "The course is now unlocked."
	}
	data, _ := json.Marshal(map[string]interface{}{
		"order_type": order.OrderType,
		"product_id": order.ProductID,
		"amount":     order.Amount.StringFixed(2),
	})
	err := s.store.WithContext(ctx).Notifications.Create(&models.Notification{
		UserID:     *order.UserID,
		Type:       NotificationPaymentConfirmed,
		OutTradeNo: order.OutTradeNo,
		Title:      "Payment confirmed",
		Body:       body,
		Data:       datatypes.JSON(data),
	})
	if err != nil {
		s.log.Warn("payment notification not saved", zap.String("out_trade_no", order.OutTradeNo), zap.Error(err))
	}
}
