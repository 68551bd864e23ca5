package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/api"
	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/export"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenish/internal/scheduler"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/andresuchdata/autopo-replenish/internal/tracing"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.App.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(db, cfg.Database.MigrationsPath); err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	forecastCache, err := cache.NewForecastCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Forecast cache unavailable, continuing without cache")
		forecastCache = cache.NewNoopForecastCache()
	}
	locker, err := cache.NewLocker(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Distributed lock unavailable, using process-local lock")
		locker = cache.NewLocalLocker()
	}

	objectStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Object storage unavailable, exports will be written locally")
		objectStore = nil
	}
	exporter := export.NewExporter(objectStore, cfg.Storage.Prefix, cfg.App.DataDir)

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize event publisher")
	}
	defer publisher.Close()

	// Initialize repositories
	products := postgres.NewProductRepository(db)
	demand := postgres.NewDemandRepository(db)
	forecasts := postgres.NewForecastRepository(db)
	alerts := postgres.NewAlertRepository(db)
	orders := postgres.NewPORepository(db)

	// Initialize services
	manager := alert.NewManager(alerts, products, cfg.Forecast.AlertCooldownDays)
	manager.SetPublisher(publisher)
	forecastService := service.NewForecastService(products, demand, forecasts, products, products, forecastCache, cfg.Forecast)
	optimizationService := service.NewOptimizationService(products, demand, forecasts, forecasts, forecastCache, cfg.Forecast)
	poService := service.NewPOService(products, orders, forecasts, orders, exporter, cfg.Forecast.PODefaultQuantity)

	pipelineCfg := pipeline.DefaultPipelineConfig()
	if cfg.Forecast.Workers > 0 {
		pipelineCfg.WorkerCount = cfg.Forecast.Workers
	}
	if cfg.Forecast.DefaultHorizon > 0 {
		pipelineCfg.DefaultHorizon = cfg.Forecast.DefaultHorizon
	}
	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Alerts:        alerts,
		Manager:       manager,
		Forecasts:     forecastService,
		Optimizations: optimizationService,
		Orders:        poService,
		Runs:          pipeline.NewRepository(db.DB.DB),
		Publisher:     publisher,
	}, pipelineCfg)

	scanService := service.NewScanService(manager, products, forecasts, orchestrator, cfg.Forecast, cfg.Scheduler.AutoBatch)
	scanScheduler := scheduler.New(scanService, locker, cfg.Scheduler)
	if cfg.Scheduler.Enabled {
		if err := scanScheduler.Start(ctx); err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to start scan scheduler")
		}
	}

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{
		Products:            products,
		Alerts:              alerts,
		AlertManager:        manager,
		ForecastService:     forecastService,
		OptimizationService: optimizationService,
		POService:           poService,
		Batches:             orchestrator,
		Scanner:             scanScheduler,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	// Give in-flight requests and the current scan time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scanScheduler.IsRunning() {
		if err := scanScheduler.Stop(shutdownCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Scan scheduler did not stop cleanly")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to flush traces")
	}

	logger.Log.Info().Msg("Server exiting")
}
