package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-schedule-conflicts/api/swagger"
	"github.com/noah-isme/sma-schedule-conflicts/internal/bootstrap"
	"github.com/noah-isme/sma-schedule-conflicts/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-schedule-conflicts/internal/middleware"
	"github.com/noah-isme/sma-schedule-conflicts/internal/service"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/config"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/database"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/jobs"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-schedule-conflicts/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-schedule-conflicts/pkg/middleware/requestid"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/storage"
)

// @title Schedule Conflicts API
// @version 1.0.0
// @description Detects, reports and resolves conflicts in school schedule plans.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var metricsSvc *service.MetricsService
	if cfg.Metrics {
		metricsSvc = service.NewMetricsService()
	}

	downloadPath := cfg.APIPrefix + "/conflicts/reports/download"
	engine, err := bootstrap.NewEngine(ctx, cfg, db, logr, bootstrap.Options{Metrics: metricsSvc, DownloadPath: downloadPath})
	if err != nil {
		logr.Fatal("failed to wire conflict engine", zap.Error(err))
	}
	defer engine.Close()

	scanSvc, err := service.NewScanService(engine.Conflicts, metricsSvc, logr, service.ScanServiceConfig{
		Cron:        cfg.Scans.Cron,
		ClearBefore: cfg.Scans.ClearBefore,
		StaleAfter:  cfg.Conflicts.StaleAfter,
		Queue: jobs.QueueConfig{
			Workers:    cfg.Scans.Workers,
			BufferSize: cfg.Scans.BufferSize,
			MaxRetries: cfg.Scans.MaxRetries,
			RetryDelay: cfg.Scans.RetryDelay,
			JobTimeout: cfg.Conflicts.ScanTimeout,
		},
	})
	if err != nil {
		logr.Fatal("failed to configure conflict scans", zap.Error(err))
	}
	scanSvc.Start(ctx)
	defer scanSvc.Stop()

	var conflictHandler *handler.ConflictHandler
	if engine.LocalReports != nil {
		go pruneReports(ctx, engine.LocalReports, cfg.Exports.LinkTTL, logr)
		conflictHandler = handler.NewConflictHandler(engine.Conflicts, scanSvc, engine.Exports, engine.LocalReports)
	} else {
		conflictHandler = handler.NewConflictHandler(engine.Conflicts, scanSvc, engine.Exports, nil)
	}

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if engine.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return engine.Redis.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Swagger && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The signed token authorises the download on its own.
	r.GET(downloadPath, conflictHandler.DownloadReport)

	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(internalmiddleware.NewTokenValidator(cfg.JWT.Secret)))

	readers := api.Group("", internalmiddleware.RequireRoles(internalmiddleware.ReaderRoles...))
	readers.GET("/conflicts", conflictHandler.List)
	readers.GET("/conflicts/summary", conflictHandler.Summary)
	readers.GET("/conflicts/export", conflictHandler.Export)
	readers.GET("/conflicts/scan/:jobId", conflictHandler.ScanStatus)
	readers.GET("/conflicts/:id", conflictHandler.Get)
	readers.GET("/conflicts/:id/suggestions", conflictHandler.Suggestions)

	schedulers := api.Group("", internalmiddleware.RequireRoles(internalmiddleware.SchedulerRoles...))
	schedulers.POST("/conflicts/check", conflictHandler.Check)
	schedulers.POST("/conflicts/auto-resolve", conflictHandler.AutoResolve)
	schedulers.POST("/conflicts/scan", conflictHandler.Scan)
	schedulers.POST("/conflicts/reports", conflictHandler.ArchiveReport)
	schedulers.POST("/conflicts/:id/resolve", conflictHandler.Resolve)
	schedulers.POST("/conflicts/:id/apply", conflictHandler.Apply)
	schedulers.PATCH("/conflicts/:id/status", conflictHandler.UpdateStatus)
	schedulers.POST("/plans/:id/conflicts/check", conflictHandler.CheckPlan)
	schedulers.GET("/system/metrics", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func pruneReports(ctx context.Context, store *storage.LocalStorage, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(ttl)
			if err != nil {
				logr.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired reports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
