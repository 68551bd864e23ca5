package repository

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error)
	ListStockLevels(ctx context.Context) ([]domain.StockLevel, error)
}

type DemandRepository interface {
	// GetDemandHistory returns observations ordered by date ascending.
	GetDemandHistory(ctx context.Context, productID int64) ([]domain.DemandObservation, error)
	GetDemandAggregate(ctx context.Context, productID int64, from, to time.Time) (*domain.DemandAggregate, error)
}

type ForecastRepository interface {
	// UpsertForecast replaces the row for (product, algorithm, horizon),
	// sets f.ID and prunes the product's history to the newest retain rows.
	UpsertForecast(ctx context.Context, f *domain.Forecast, retain int) error
	GetForecast(ctx context.Context, id int64) (*domain.Forecast, error)
	GetLatestForecast(ctx context.Context, productID int64) (*domain.Forecast, error)
	// ListStaleForecasts returns the latest forecast of every product whose
	// newest forecast was generated before cutoff.
	ListStaleForecasts(ctx context.Context, cutoff time.Time) ([]*domain.Forecast, error)
}

type OptimizationRepository interface {
	SaveOptimization(ctx context.Context, r *domain.OptimizationResult) error
	GetLatestOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, error)
}

type SeasonalityRepository interface {
	// GetActiveProfile returns nil without error when no active profile exists.
	GetActiveProfile(ctx context.Context, productID int64) (*domain.SeasonalityProfile, error)
}

// HyperParameterRepository serves per-algorithm numeric overrides.
type HyperParameterRepository interface {
	Param(ctx context.Context, algorithm domain.Algorithm, name string) (float64, bool, error)
}

type AlertRepository interface {
	GetAlert(ctx context.Context, id int64) (*domain.Alert, error)
	// GetLatestAlert returns the newest alert for (product, type) in any state.
	GetLatestAlert(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.Alert, error)
	CreateAlert(ctx context.Context, a *domain.Alert) error
	UpdateAlert(ctx context.Context, a *domain.Alert) error
	ListAlerts(ctx context.Context, state domain.AlertState, limit int) ([]*domain.Alert, error)
}
