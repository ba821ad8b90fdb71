package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/config"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/exchange/binance"
	"github.com/cexgate/cexgate/internal/handler"
	"github.com/cexgate/cexgate/internal/middleware"
	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/cexgate/cexgate/internal/pkg/metrics"
	"github.com/cexgate/cexgate/internal/policy"
	"github.com/cexgate/cexgate/internal/repository"
	"github.com/cexgate/cexgate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)

	// Policy source
	policyProvider, err := policy.NewFileProvider(cfg.Policy.Path)
	if err != nil {
		log.Fatalf("Failed to load policy file: %v", err)
	}
	if cfg.Policy.Watch {
		if err := policyProvider.Watch(); err != nil {
			logger.Error("policy file watcher unavailable, reload via admin endpoint only", "error", err)
		}
	}
	defer policyProvider.Close()

	// Exchange connectivity
	factory := exchange.NewRegistry()
	factory.Register(exchange.Binance, binance.New)

	brokers := broker.NewRegistry(factory)
	for _, ex := range cfg.Exchanges {
		secondaries := make([]broker.Credentials, 0, len(ex.SecondaryKeys))
		for _, sec := range ex.SecondaryKeys {
			secondaries = append(secondaries, broker.Credentials{APIKey: sec.APIKey, APISecret: sec.APISecret})
		}
		primary := broker.Credentials{APIKey: ex.Primary.APIKey, APISecret: ex.Primary.APISecret}
		if err := brokers.Configure(ex.Name, primary, secondaries); err != nil {
			log.Fatalf("Failed to configure exchange %s: %v", ex.Name, err)
		}
		logger.Info("exchange configured", "exchange", ex.Name, "secondary_keys", len(secondaries))
	}

	// Audit persistence (Postgres > local file only)
	var auditRepo service.AuditRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			pgRepo, repoErr := repository.NewPostgresAuditRepo(db)
			if repoErr == nil {
				logger.Info("connected to postgres for audit logs")
				auditRepo = pgRepo
			} else {
				logger.Error("audit schema migration failed, audit logs will be file-only", "error", repoErr)
			}
		} else {
			logger.Error("failed to connect to postgres, audit logs will be file-only", "error", err)
		}
	}
	auditSvc, err := service.NewAuditService("./logs", auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	auditSvc.StartRetentionSweep(sweepCtx, cfg.Database.AuditRetentionDays, 24*time.Hour)

	// Idempotency (Redis > memory)
	idemTTL := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
	var idempotencyStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("connected to redis for idempotency state")
			idempotencyStore = repository.NewRedisIdempotencyStore(redisClient, idemTTL)
		} else {
			logger.Error("failed to connect to redis, falling back to in-memory idempotency", "error", err)
		}
	}
	if idempotencyStore == nil {
		idempotencyStore = middleware.NewInMemIdempotencyStore(idemTTL)
	}

	ipGate, err := middleware.NewIPGate(cfg.Auth.AllowedIPs)
	if err != nil {
		log.Fatalf("Invalid auth.allowed_ips entry: %v", err)
	}

	// Core services
	sink := metrics.NewSink("cexgate", nil)
	dispatcher := service.NewDispatcher(brokers, policyProvider, cfg.ReadOnly, sink)
	subManager := service.NewSubscriptionManager(brokers, sink)

	// Handlers
	actionHandler := handler.NewActionHandler(dispatcher)
	subscribeHandler := handler.NewSubscribeHandler(subManager)
	policyHandler := handler.NewPolicyHandler(policyProvider.Store(), cfg.Policy.Path)
	auditHandler := handler.NewAuditHandler(auditSvc)

	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "cexgate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.IPGateMiddleware(ipGate))
	v1.Use(middleware.CredentialSelector())
	v1.Use(middleware.RateLimitMiddleware(cfg.Rate.QPS, cfg.Rate.Burst))
	{
		v1.POST("/actions", middleware.IdempotencyMiddleware(idempotencyStore), actionHandler.Dispatch)
		v1.GET("/subscribe", subscribeHandler.Subscribe)

		// Mutating read-only protection for actions lives in the
		// dispatcher, which can see the action kind.
		admin := v1.Group("")
		admin.Use(middleware.AdminMiddleware(cfg))
		{
			admin.GET("/audit", auditHandler.List)

			policyRoutes := admin.Group("/policy")
			policyRoutes.Use(middleware.ReadOnlyMiddleware(cfg.ReadOnly))
			{
				policyRoutes.GET("", policyHandler.Show)
				policyRoutes.POST("/reload", policyHandler.Reload)
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("cexgate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("server exiting")
}
