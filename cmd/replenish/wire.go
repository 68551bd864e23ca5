package main

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/export"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenish/internal/scheduler"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
)

// wiring holds the services a command needs. Close releases the database
// and the event publisher.
type wiring struct {
	db            *postgres.DB
	publisher     events.Publisher
	forecasts     *service.ForecastService
	optimizations *service.OptimizationService
	orchestrator  *pipeline.Orchestrator
	scheduler     *scheduler.Scheduler
}

func openDB() (*postgres.DB, error) {
	cfg := config.Load()
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func openForecastCache(cfg config.CacheConfig) cache.ForecastCache {
	fc, err := cache.NewForecastCache(cfg)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("forecast cache unavailable")
		return cache.NewNoopForecastCache()
	}
	return fc
}

// clearForecastCache drops every cached forecast and optimization. Cached
// entries may reference rows a schema rollback removed.
func clearForecastCache(ctx context.Context, fc cache.ForecastCache) error {
	if err := fc.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to clear forecast cache: %w", err)
	}
	logger.Log.Info().Msg("forecast cache cleared")
	return nil
}

func wire(ctx context.Context) (*wiring, error) {
	cfg := config.Load()

	db, err := openDB()
	if err != nil {
		return nil, err
	}

	forecastCache := openForecastCache(cfg.Cache)
	locker, err := cache.NewLocker(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("distributed lock unavailable, using process-local lock")
		locker = cache.NewLocalLocker()
	}
	objectStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("object storage unavailable, exports will be written locally")
		objectStore = nil
	}
	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		db.Close()
		return nil, err
	}

	products := postgres.NewProductRepository(db)
	demand := postgres.NewDemandRepository(db)
	forecasts := postgres.NewForecastRepository(db)
	alerts := postgres.NewAlertRepository(db)
	orders := postgres.NewPORepository(db)

	manager := alert.NewManager(alerts, products, cfg.Forecast.AlertCooldownDays)
	manager.SetPublisher(publisher)

	w := &wiring{db: db, publisher: publisher}
	w.forecasts = service.NewForecastService(products, demand, forecasts, products, products, forecastCache, cfg.Forecast)
	w.optimizations = service.NewOptimizationService(products, demand, forecasts, forecasts, forecastCache, cfg.Forecast)
	poService := service.NewPOService(products, orders, forecasts, orders,
		export.NewExporter(objectStore, cfg.Storage.Prefix, cfg.App.DataDir), cfg.Forecast.PODefaultQuantity)

	pipelineCfg := pipeline.DefaultPipelineConfig()
	if cfg.Forecast.Workers > 0 {
		pipelineCfg.WorkerCount = cfg.Forecast.Workers
	}
	if cfg.Forecast.DefaultHorizon > 0 {
		pipelineCfg.DefaultHorizon = cfg.Forecast.DefaultHorizon
	}
	w.orchestrator = pipeline.NewOrchestrator(pipeline.Dependencies{
		Alerts:        alerts,
		Manager:       manager,
		Forecasts:     w.forecasts,
		Optimizations: w.optimizations,
		Orders:        poService,
		Runs:          pipeline.NewRepository(db.DB.DB),
		Publisher:     publisher,
	}, pipelineCfg)

	scans := service.NewScanService(manager, products, forecasts, w.orchestrator, cfg.Forecast, cfg.Scheduler.AutoBatch)
	w.scheduler = scheduler.New(scans, locker, cfg.Scheduler)
	return w, nil
}

func (w *wiring) Close() {
	if err := w.publisher.Close(); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to close event publisher")
	}
	if err := w.db.Close(); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to close database")
	}
}
