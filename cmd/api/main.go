package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/fixdrop-app/fixdrop-api/internal/handler"
	"github.com/fixdrop-app/fixdrop-api/internal/middleware"
	"github.com/fixdrop-app/fixdrop-api/internal/repository"
	"github.com/fixdrop-app/fixdrop-api/internal/service"
	"github.com/fixdrop-app/fixdrop-api/pkg/cache"
	"github.com/fixdrop-app/fixdrop-api/pkg/config"
	"github.com/fixdrop-app/fixdrop-api/pkg/database"
	"github.com/fixdrop-app/fixdrop-api/pkg/logger"
	corsmiddleware "github.com/fixdrop-app/fixdrop-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fixdrop-app/fixdrop-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		redisClient = nil
	}

	codec, err := service.NewTokenCodec(cfg.Handoff.SharedSecret)
	if err != nil {
		logr.Sugar().Fatalw("failed to init token codec", "error", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	repairRepo := repository.NewRepairRepository(db)
	codeRepo := repository.NewHandoffCodeRepository(db)
	relayRepo := repository.NewRelayRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, service.NotificationQueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
	}, metricsSvc, logr)
	lifecycleSvc := service.NewLifecycleService(repairRepo, logr)
	repairSvc := service.NewRepairService(repairRepo, relayRepo, lifecycleSvc, notificationSvc, validate, logr)
	handoffSvc := service.NewHandoffService(codeRepo, repairRepo, relayRepo, codec, lifecycleSvc, notificationSvc, metricsSvc, logr)
	catalogSvc := service.NewCatalogService(statusRepo, relayRepo, cacheRepo, cfg.Catalog.CacheTTL, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Routes{
		Auth:           handler.NewAuthHandler(authSvc),
		Repairs:        handler.NewRepairHandler(repairSvc),
		Handoffs:       handler.NewHandoffHandler(handoffSvc),
		Catalog:        handler.NewCatalogHandler(catalogSvc),
		Notifications:  handler.NewNotificationHandler(notificationSvc),
		AuthService:    authSvc,
		MetricsService: metricsSvc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The delivery workers outlive the signal context so notifications raised
	// while the HTTP server drains still get through; Stop below shuts them
	// down after the drain.
	notificationSvc.Start(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}

	notificationSvc.Stop()
}
