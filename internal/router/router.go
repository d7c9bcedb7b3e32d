package router

import (
	"context"
	"time"

	"storefront/config"
	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/ws"
	"storefront/pkg/payment"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra carries optional external clients; nil fields disable the feature.
type Infra struct {
	Redis    redis.Cmdable
	Producer sarama.SyncProducer
}

// App is the wired HTTP application plus the background parts main must stop.
type App struct {
	Engine    *gin.Engine
	Store     *repository.Store
	Orders    *service.OrderService
	Reconcile *service.ReconcileService
	Poller    *service.PollCoordinator
	Hub       *ws.Hub
	events    *events.Publisher
	limiter   *middleware.InMemoryRateLimiter
}

// Close stops polling with reason teardown and flushes the event producer.
func (a *App) Close(ctx context.Context) error {
	a.limiter.Stop()
	var err error
	if a.Poller != nil {
		err = a.Poller.Shutdown(ctx)
	}
	if cerr := a.events.Close(); err == nil {
		err = cerr
	}
	return err
}

func Setup(cfg *config.Config, db *gorm.DB, gateway payment.Gateway, infra Infra, logger *zap.Logger) *App {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewInMemoryRateLimiter(100, 60*time.Second)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("storefront"))
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.MetricsMiddleware())

	store := repository.NewStore(db)

	entitlementCache := cache.NewEntitlementCache(infra.Redis, cfg.Redis.TTL, logger)
	publisher := events.NewPublisher(infra.Producer, cfg.Kafka.Topic, logger)
	hub := ws.NewHub()

	// Services
	entitlementSvc := service.NewEntitlementService(store, service.RenewOverwrite, logger)
	notifSvc := service.NewNotificationService(store, logger)
	reconcileSvc := service.NewReconcileService(store, entitlementSvc, logger,
		entitlementCache, notifSvc, publisher, hub)

	var poller *service.PollCoordinator
	if cfg.Poll.Enabled {
		poller = service.NewPollCoordinator(gateway, reconcileSvc, service.PollOptions{
			Interval:    cfg.Poll.Interval,
			TickTimeout: cfg.Poll.TickTimeout,
			MaxDuration: cfg.Poll.MaxDuration,
		}, logger)
	}
	orderSvc := service.NewOrderService(store, gateway, reconcileSvc, poller, logger)
	sweepSvc := service.NewSweepService(store, gateway, reconcileSvc, logger)
	authSvc := service.NewAuthService(&cfg.JWT, store)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, store.Audit)
	paymentHandler := handler.NewPaymentHandler(orderSvc)
	webhookHandler := handler.NewPaymentWebhookHandler(gateway, reconcileSvc, store.Audit, logger)
	meHandler := handler.NewMeHandler(entitlementSvc, entitlementCache)
	notificationHandler := handler.NewNotificationHandler(notifSvc)
	planHandler := handler.NewPlanHandler(store.Plans)
	adminHandler := handler.NewAdminHandler(sweepSvc, store.NotifyLogs, cfg.Poll.TickTimeout)

	r.GET("/health", handler.Health(db))
	r.GET("/metrics", middleware.PrometheusHandler())
	r.GET("/ws/orders", ws.UpgradeOrdersWS(&cfg.JWT, hub, orderSvc, logger))

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimit(limiter))
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		v1.GET("/plans", planHandler.List)

		// Gateway callback: authenticated by signature, not by JWT.
		v1.POST("/payments/notify", webhookHandler.Handle)

		authed := v1.Group("")
		authed.Use(middleware.AuthRequired(&cfg.JWT))
		authed.Use(middleware.RateLimit(limiter))
		authed.POST("/payments/precreate", paymentHandler.Precreate)
		authed.POST("/payments/query", paymentHandler.Query)
		authed.POST("/payments/cancel", paymentHandler.Cancel)
		authed.GET("/orders/:out_trade_no", paymentHandler.GetOrder)
		authed.GET("/me/entitlements", meHandler.Entitlements)
		authed.GET("/resources/:id/access", meHandler.ResourceAccess)
		authed.GET("/notifications", notificationHandler.List)
		authed.PATCH("/notifications/:id/read", notificationHandler.MarkRead)

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireRole(domain.RoleAdmin))
		admin.POST("/sweep", adminHandler.Sweep)
		admin.GET("/orders/:out_trade_no/observations", adminHandler.NotifyLogs)
	}

	return &App{
		Engine:    r,
		Store:     store,
		Orders:    orderSvc,
		Reconcile: reconcileSvc,
		Poller:    poller,
		Hub:       hub,
		events:    publisher,
		limiter:   limiter,
	}
}
