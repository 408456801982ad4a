package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-api/api/swagger"
	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Automatic class timetable generation, analysis and export.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("analysis cache disabled by configuration")
	case err != nil:
		logr.Warn("redis unavailable, analysis cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := service.NewValidator()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "timetable-api", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetable.AnalysisCacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "timetable-api",
	})

	timetableSvc := service.NewTimetableService(
		repository.NewTimetableCatalogRepository(db),
		repository.NewClassSessionRepository(db),
		db,
		cacheSvc,
		metrics,
		validate,
		logr,
		service.TimetableServiceConfig{
			Defaults:       generationDefaults(cfg.Timetable),
			MaxAttempts:    cfg.Timetable.MaxAttempts,
			CapacityFactor: cfg.Timetable.CapacityFactor,
			CacheTTL:       cfg.Timetable.AnalysisCacheTTL,
		},
	)

	jobRepo := repository.NewGenerationJobRepository(db)
	jobSvc := service.NewGenerationJobService(jobRepo, nil, validate, logr)
	worker := service.NewGenerationWorker(jobRepo, timetableSvc, metrics, logr)
	queue := jobs.NewQueue("timetable-generation", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Timetable.JobWorkers,
		MaxRetries: cfg.Timetable.JobRetries,
		JobTimeout: cfg.Timetable.JobTimeout,
		Logger:     logr,
	})
	jobSvc.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	jobSvc.RecoverPendingJobs(ctx)

	routes := handler.Routes{
		Auth:   handler.NewAuthHandler(authSvc),
		Jobs:   handler.NewGenerationJobHandler(jobSvc),
		Tokens: authSvc,
		Audit:  userRepo,
		Logger: logr,
	}
	if cfg.Timetable.Enabled {
		routes.Timetable = handler.NewTimetableHandler(timetableSvc)
	}
	if cfg.Exports.Enabled {
		exportSvc, err := newExportService(cfg, timetableSvc, logr)
		if err != nil {
			logr.Fatal("failed to init exports", zap.Error(err))
		}
		exportSvc.StartCleanup(ctx)
		routes.Exports = handler.NewExportHandler(exportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.DefaultOptions(cfg.CORS.AllowedOrigins)))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes.Register(r.Group(cfg.APIPrefix))

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

func newExportService(cfg *config.Config, sessions *service.TimetableService, logr *zap.Logger) (*service.ExportService, error) {
	files, err := storage.NewExportStore(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Exports.Timezone)
	if err != nil {
		logr.Warn("unknown export timezone, using UTC", zap.String("timezone", cfg.Exports.Timezone))
		loc = time.UTC
	}
	signer := storage.NewDownloadSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	return service.NewExportService(sessions, files, signer, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		Location:        loc,
		CalendarWeeks:   cfg.Exports.CalendarWeeks,
	}, logr), nil
}

func generationDefaults(cfg config.TimetableConfig) dto.GenerationDefaults {
	defaults := dto.GenerationDefaults{
		MaxHoursPerDay:            cfg.MaxHoursPerDay,
		MinHoursPerDay:            cfg.MinHoursPerDay,
		MaxConsecutiveHours:       cfg.MaxConsecutiveHours,
		DistributeEvenly:          cfg.DistributeEvenly,
		RespectTeacherContinuity:  cfg.RespectTeacherContinuity,
		AvoidTimeGaps:             cfg.AvoidTimeGaps,
		PrioritizeLabsAfterTheory: cfg.PrioritizeLabsAfterTheory,
		PreferredSlotWeight:       cfg.PreferredSlotWeight,
	}
	for _, raw := range cfg.ExcludedDays {
		if day := models.ParseWeekday(raw); day.Valid() {
			defaults.ExcludedDays = append(defaults.ExcludedDays, day)
		}
	}
	return defaults
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
