// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with the full schema.
// The pool is pinned to one connection so the shared-cache database lives as
// long as the test and concurrent transactions serialize.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", Role: domain.RoleUser}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreatePlan(t *testing.T, db *gorm.DB, price string, days int) *models.MembershipPlan {
	t.Helper()
	p := &models.MembershipPlan{
		Name:         "plan-" + price,
		Price:        decimal.RequireFromString(price),
		DurationDays: days,
		IsActive:     true,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return p
}

// CreatePendingOrder inserts an order row as if precreate had succeeded.
func CreatePendingOrder(t *testing.T, db *gorm.DB, outTradeNo string, typ domain.OrderType, productID, userID uint, amount string) *models.Order {
	t.Helper()
	o := &models.Order{
		OutTradeNo: outTradeNo,
		OrderType:  typ,
		ProductID:  productID,
		Amount:     decimal.RequireFromString(amount),
		Subject:    "Test",
		Status:     domain.OrderStatusPending,
		UserID:     &userID,
		PayChannel: domain.PayChannelAlipay,
		CreatedAt:  time.Now(),
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}
