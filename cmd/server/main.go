package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/cache"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/router"
	"storefront/pkg/payment"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := middleware.InitTracing("storefront")
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	database.SeedPlans(db, logger)

	var (
		gateway payment.Gateway
		stub    *payment.StubGateway
	)
	if cfg.UseStubGateway() {
		stub = payment.NewStubGateway(cfg.Alipay.StubSecret)
		gateway = stub
		logger.Warn("using stub payment gateway; set ALIPAY_APP_ID and ALIPAY_PRIVATE_KEY to go live")
	} else {
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
		gateway = gw
	}

	var infra router.Infra
	if cfg.Redis.Addr != "" {
		rdb, err := cache.InitRedis(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, entitlement cache disabled", zap.Error(err))
		} else {
			infra.Redis = rdb
			defer rdb.Close()
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.InitProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Warn("kafka unavailable, order events disabled", zap.Error(err))
		} else {
			infra.Producer = producer
		}
	}

	app := router.Setup(cfg, db, gateway, infra, logger)
	if stub != nil {
		dev := handler.NewDevHandler(stub)
		app.Engine.POST("/dev/trades/:out_trade_no", dev.SetTradeStatus)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := app.Close(ctx); err != nil {
		logger.Error("app shutdown", zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
