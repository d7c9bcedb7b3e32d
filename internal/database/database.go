package database

import (
	"storefront/config"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.MembershipPlan{},
		&models.Order{},
		&models.UserResourceAccess{},
		&models.PaymentNotifyLog{},
		&models.AuditLog{},
		&models.Notification{},
	)
}

// SeedPlans inserts the default membership plans when the table is empty.
func SeedPlans(db *gorm.DB, log *zap.Logger) {
	var count int64
	if err := db.Model(&models.MembershipPlan{}).Count(&count).Error; err != nil || count > 0 {
		return
	}
	plans := []models.MembershipPlan{
		{Name: "Monthly", Price: decimal.RequireFromString("19.90"), DurationDays: 30, DailyDownloads: 20, Features: datatypes.JSON(`["downloads","no-ads"]`), IsActive: true},
		{Name: "Yearly", Price: decimal.RequireFromString("99.00"), DurationDays: 365, DailyDownloads: 50, Features: datatypes.JSON(`["downloads","no-ads","priority"]`), IsActive: true},
		{Name: "Lifetime", Price: decimal.RequireFromString("199.00"), DurationDays: 0, DailyDownloads: 100, Features: datatypes.JSON(`["downloads","no-ads","priority"]`), IsActive: true},
	}
	if err := db.Create(&plans).Error; err != nil {
		log.Warn("seed membership plans", zap.Error(err))
		return
	}
	log.Info("seeded membership plans", zap.Int("count", len(plans)))
}
