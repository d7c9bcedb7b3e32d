package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Store bundles every repository over the same *gorm.DB handle. A Store
// handed out by Transaction is bound to one database transaction.
type Store struct {
	db            *gorm.DB
	Orders        *OrderRepository
	Users         *UserRepository
	Plans         *PlanRepository
	Access        *AccessRepository
	NotifyLogs    *NotifyLogRepository
	Audit         *AuditLogRepository
	Notifications *NotificationRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Orders:        NewOrderRepository(db),
		Users:         NewUserRepository(db),
		Plans:         NewPlanRepository(db),
		Access:        NewAccessRepository(db),
		NotifyLogs:    NewNotifyLogRepository(db),
		Audit:         NewAuditLogRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// WithContext returns a Store whose queries carry ctx.
func (s *Store) WithContext(ctx context.Context) *Store {
	return NewStore(s.db.WithContext(ctx))
}

// Transaction runs fn in one database transaction. fn must only use tx;
// returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(NewStore(db))
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
