// Package bootstrap wires the conflict engine from configuration for the API and the CLI.
package bootstrap

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/repository"
	"github.com/noah-isme/sma-schedule-conflicts/internal/service"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/cache"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/config"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/storage"
)

// Engine holds the wired conflict services.
type Engine struct {
	Conflicts    *service.ConflictService
	Exports      *service.ExportService
	LocalReports *storage.LocalStorage
	Redis        *redis.Client

	closers []func() error
}

// Options tweak wiring per entry point.
type Options struct {
	Metrics *service.MetricsService
	// DownloadPath is the route serving locally stored reports.
	DownloadPath string
}

// NewEngine builds repositories, cache, locks and services. Redis failures degrade to in-process
// cache and locks.
func NewEngine(ctx context.Context, cfg *config.Config, db *sqlx.DB, logr *zap.Logger, opts Options) (*Engine, error) {
	engine := &Engine{}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process cache and locks", zap.Error(err))
		redisClient = nil
	}

	var (
		cacheRepo service.CacheRepository
		locker    service.EventLocker
	)
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		engine.Redis = redisClient
		engine.closers = append(engine.closers, redisRepo.Close)
		cacheRepo = redisRepo
		locker = service.NewDistributedEventLocker(redisRepo, cfg.Conflicts.EventLockTTL)
	} else {
		cacheRepo = repository.NewMemoryCacheRepository(cfg.Conflicts.SuggestionCacheTTL)
		locker = service.NewLocalEventLocker()
	}
	cacheSvc := service.NewCacheService(cacheRepo, opts.Metrics, cfg.Conflicts.SuggestionCacheTTL, logr, true)

	eventRepo := repository.NewEventRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	planRepo := repository.NewPlanRepository(db)
	conflictRepo := repository.NewConflictRepository(db)

	detector := service.NewConflictDetector(eventRepo, ruleRepo, referenceRepo, opts.Metrics, logr, service.ConflictDetectorConfig{
		Workers: cfg.Conflicts.DetectionWorkers,
	})
	recorder := service.NewConflictRecorder(detector, conflictRepo, logr)
	resolver := service.NewConflictResolver(eventRepo, ruleRepo, referenceRepo, conflictRepo, locker, opts.Metrics, logr)
	engine.Conflicts = service.NewConflictService(planRepo, conflictRepo, recorder, resolver, cacheSvc, validator.New(), logr, service.ConflictServiceConfig{
		ScanTimeout:        cfg.Conflicts.ScanTimeout,
		SuggestionCacheTTL: cfg.Conflicts.SuggestionCacheTTL,
	})

	if cfg.Exports.MinIO.Endpoint != "" {
		objectStore, err := storage.NewMinIOStorage(ctx, cfg.Exports.MinIO, cfg.Exports.LinkTTL)
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.Exports = service.NewExportService(conflictRepo, objectStore, logr)
		return engine, nil
	}

	signer := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Exports.LinkTTL)
	localStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir, signer, opts.DownloadPath)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.LocalReports = localStore
	engine.Exports = service.NewExportService(conflictRepo, localStore, logr)
	return engine, nil
}

// Close releases connections opened by NewEngine.
func (e *Engine) Close() {
	for _, closeFn := range e.closers {
		_ = closeFn()
	}
}
