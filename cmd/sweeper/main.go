// Command sweeper confirms pending orders that no client is polling any
// more. Run it from cron; it exits after one pass.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/cache"
	"storefront/internal/database"
	"storefront/internal/logging"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/pkg/payment"

	"go.uber.org/zap"
)

func main() {
	olderThan := flag.Duration("older-than", 5*time.Minute, "only sweep orders created at least this long ago")
	limit := flag.Int("limit", 200, "maximum orders per pass")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.UseStubGateway() {
		logger.Fatal("sweeper needs a real gateway; set ALIPAY_APP_ID and ALIPAY_PRIVATE_KEY")
	}
	gw, err := payment.NewAlipayGateway(payment.AlipayOptions{
		AppID:      cfg.Alipay.AppID,
		PrivateKey: cfg.Alipay.PrivateKey,
		PublicKey:  cfg.Alipay.PublicKey,
		GatewayURL: cfg.Alipay.GatewayURL,
		NotifyURL:  cfg.Alipay.NotifyURL,
		Timeout:    cfg.Alipay.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("alipay gateway", zap.Error(err))
	}

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}

	store := repository.NewStore(db)
	entitlements := service.NewEntitlementService(store, service.RenewOverwrite, logger)
	reconcile := service.NewReconcileService(store, entitlements, logger, service.NewNotificationService(store, logger))
	if cfg.Redis.Addr != "" {
		if rdb, err := cache.InitRedis(&cfg.Redis, logger); err == nil {
			defer rdb.Close()
			reconcile.AddListener(cache.NewEntitlementCache(rdb, cfg.Redis.TTL, logger))
		} else {
			logger.Warn("redis unavailable, cached entitlements expire by ttl", zap.Error(err))
		}
	}
	sweeper := service.NewSweepService(store, gw, reconcile, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := sweeper.Sweep(ctx, *olderThan, *limit, cfg.Poll.TickTimeout)
	if err != nil {
		logger.Fatal("sweep", zap.Error(err))
	}
	if rep.Failed > 0 {
		os.Exit(1)
	}
}
