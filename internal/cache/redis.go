// Package cache keeps read-through copies of per-user entitlement summaries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/config"
	"storefront/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when no usable entry exists.
var ErrMiss = errors.New("cache miss")

func InitRedis(cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// EntitlementCache is safe to use with a nil client; every Get then misses.
type EntitlementCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *zap.Logger
}

func NewEntitlementCache(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *EntitlementCache {
	return &EntitlementCache{rdb: rdb, ttl: ttl, log: log.Named("cache")}
}

func key(userID uint) string {
	return fmt.Sprintf("entitlements:%d", userID)
}

func (c *EntitlementCache) Get(ctx context.Context, userID uint, dst interface{}) error {
	if c == nil || c.rdb == nil {
		return ErrMiss
	}
	data, err := c.rdb.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get", zap.Uint("user_id", userID), zap.Error(err))
		}
		return ErrMiss
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return ErrMiss
	}
	return nil
}

// Set stores v for the configured TTL, cut short at notAfter when the summary
// stops being true then (a VIP expiry). Nothing is stored once notAfter has passed.
func (c *EntitlementCache) Set(ctx context.Context, userID uint, v interface{}, notAfter *time.Time) {
	if c == nil || c.rdb == nil {
		return
	}
	ttl := entryTTL(c.ttl, notAfter, time.Now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(userID), data, ttl).Err(); err != nil {
		c.log.Warn("cache set", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func entryTTL(ttl time.Duration, notAfter *time.Time, now time.Time) time.Duration {
	if notAfter == nil {
		return ttl
	}
	if left := notAfter.Sub(now); left < ttl {
		return left
	}
	return ttl
}

func (c *EntitlementCache) Invalidate(ctx context.Context, userID uint) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(userID)).Err(); err != nil {
		c.log.Warn("cache invalidate", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// OrderSettled drops the buyer's cached summary once a grant is committed.
func (c *EntitlementCache) OrderSettled(ctx context.Context, order *models.Order) {
	if order.UserID == nil {
		return
	}
	c.Invalidate(ctx, *order.UserID)
}
